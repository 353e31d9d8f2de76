package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
)

const (
	seoID  = "0b7b1a4e-5d1f-4c58-9a55-3f1b8f1f0001"
	heroID = "0b7b1a4e-5d1f-4c58-9a55-3f1b8f1f0002"
	tagID  = "0b7b1a4e-5d1f-4c58-9a55-3f1b8f1f0003"
)

type fakeTypes map[string]*catalog.ContentType

func (f fakeTypes) TypeByID(ctx context.Context, id string) (*catalog.ContentType, error) {
	if ct, ok := f[id]; ok {
		return ct, nil
	}
	return nil, core.ErrNotFound
}

type fakeUnique struct {
	taken  map[string]bool
	except string
}

func (f *fakeUnique) Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error) {
	f.except = exceptID
	s, _ := value.(string)
	return f.taken[table+"."+column+"="+s], nil
}

func components() fakeTypes {
	return fakeTypes{
		seoID: {ID: seoID, Name: "Seo", Slug: "seo", IsComponent: true, Fields: []*catalog.ContentField{
			{Name: "meta_title", Type: catalog.FieldText, Settings: catalog.Settings{Required: true}},
		}},
		heroID: {ID: heroID, Name: "Hero", Slug: "hero", IsComponent: true, Fields: []*catalog.ContentField{
			{Name: "headline", Type: catalog.FieldText, Settings: catalog.Settings{Required: true}},
		}},
	}
}

func articleType() *catalog.ContentType {
	return &catalog.ContentType{
		ID: "0b7b1a4e-5d1f-4c58-9a55-3f1b8f1f0010", Name: "Article", Slug: "article", Table: "articles",
		Fields: []*catalog.ContentField{
			{Name: "title", Type: catalog.FieldText, Settings: catalog.Settings{Required: true}},
			{Name: "slug", Type: catalog.FieldText, Settings: catalog.Settings{Unique: true}},
			{Name: "body", Type: catalog.FieldLongText},
			{Name: "views", Type: catalog.FieldInteger},
			{Name: "featured", Type: catalog.FieldBoolean},
			{Name: "starts", Type: catalog.FieldDatetime},
			{Name: "contact", Type: catalog.FieldEmail},
			{Name: "kind", Type: catalog.FieldEnum, Settings: catalog.Settings{Options: []string{"news", "blog"}}},
			{Name: "extra", Type: catalog.FieldJSON},
			{Name: "cover", Type: catalog.FieldMedia},
			{Name: "author", Type: catalog.FieldRelation, Settings: catalog.Settings{RelatedContentTypeID: tagID}},
			{Name: "tags", Type: catalog.FieldRelation, Settings: catalog.Settings{Multiple: true, RelatedContentTypeID: tagID}},
			{Name: "seo", Type: catalog.FieldComponent, Settings: catalog.Settings{RelatedContentTypeID: seoID}},
			{Name: "sections", Type: catalog.FieldDynamicZone, Settings: catalog.Settings{AllowedComponentIDs: []string{heroID}}},
		},
	}
}

func TestRules(t *testing.T) {
	rules := Rules(articleType(), "abc")
	byKey := map[string]FieldRules{}
	for _, r := range rules {
		byKey[r.Key] = r
	}

	assert.Equal(t, []Rule{RuleRequired, RuleString, RuleMax255}, byKey["title"].Rules)
	assert.Equal(t, []Rule{RuleNullable, RuleString, RuleMax255, RuleUnique}, byKey["slug"].Rules)
	assert.Equal(t, "articles", byKey["slug"].Table)
	assert.Equal(t, "abc", byKey["slug"].ExceptID)
	assert.Equal(t, []Rule{RuleNullable, RuleString}, byKey["body"].Rules)
	assert.Equal(t, []string{"news", "blog"}, byKey["kind"].Options)
	assert.Equal(t, []Rule{RuleNullable, RuleIdentifier}, byKey["cover_id"].Rules)
	assert.Equal(t, []Rule{RuleNullable, RuleIdentifier}, byKey["author_id"].Rules)
	assert.Equal(t, []Rule{RuleNullable, RuleArray, RuleIdentifiers}, byKey["tags"].Rules)
	assert.Equal(t, seoID, byKey["seo"].ComponentID)
	assert.Equal(t, []string{heroID}, byKey["sections"].AllowedComponentIDs)
	assert.True(t, byKey["status"].Has(RuleIn))
	assert.Contains(t, byKey, "published_at")
	assert.NotContains(t, byKey, "locale")

	ct := articleType()
	ct.IsLocalized = true
	localized := Rules(ct, "")
	assert.Len(t, localized, len(rules)+1)
	assert.Equal(t, "locale", localized[len(localized)-1].Key)
	assert.Equal(t, []Rule{RuleNullable, RuleString, RuleMaxLocale}, localized[len(localized)-1].Rules)
}

func TestValidate_Valid(t *testing.T) {
	v := New(components(), &fakeUnique{})
	in := map[string]any{
		"title":     "Hello",
		"views":     float64(3),
		"featured":  true,
		"starts":    "2024-05-01T10:00:00Z",
		"contact":   "a@example.com",
		"kind":      "news",
		"extra":     map[string]any{"a": 1},
		"cover_id":  tagID,
		"tags":      []any{tagID},
		"seo":       map[string]any{"meta_title": "Hi"},
		"sections":  []any{map[string]any{ComponentKey: "hero", "headline": "Big"}},
		"unrelated": "dropped",
	}
	out, err := v.Validate(context.Background(), articleType(), in, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out["title"])
	assert.Contains(t, out, "sections")
	assert.NotContains(t, out, "unrelated")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	v := New(components(), nil)
	in := map[string]any{
		"title":    "",
		"views":    "many",
		"featured": "maybe",
		"starts":   "yesterday",
		"contact":  "nope",
		"kind":     "poem",
		"cover_id": "x",
		"tags":     []any{tagID, "y"},
		"status":   "archived",
	}
	_, err := v.Validate(context.Background(), articleType(), in, "")
	require.ErrorIs(t, err, core.ErrValidationFailed)

	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, key := range []string{"title", "views", "featured", "starts", "contact", "kind", "cover_id", "tags.1", "status"} {
		assert.Contains(t, verr.Errors, key, key)
	}
	assert.Equal(t, []string{"is required"}, verr.Errors["title"])
	assert.NotContains(t, verr.Errors, "tags.0")
}

func TestValidate_TooLong(t *testing.T) {
	v := New(components(), nil)
	long := make([]rune, 256)
	for i := range long {
		long[i] = 'ä'
	}
	_, err := v.Validate(context.Background(), articleType(), map[string]any{"title": string(long)}, "")
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Errors, "title")

	_, err = v.Validate(context.Background(), articleType(), map[string]any{"title": string(long[:255])}, "")
	assert.NoError(t, err)
}

func TestValidate_LocaleLength(t *testing.T) {
	v := New(components(), nil)
	ct := articleType()
	ct.IsLocalized = true

	_, err := v.Validate(context.Background(), ct, map[string]any{"title": "a", "locale": "de-DE-x-12345"}, "")
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"may not be greater than 12 characters"}, verr.Errors["locale"])

	out, err := v.Validate(context.Background(), ct, map[string]any{"title": "a", "locale": "de-DE-x-1234"}, "")
	require.NoError(t, err)
	assert.Equal(t, "de-DE-x-1234", out["locale"])
}

func TestValidate_Unique(t *testing.T) {
	u := &fakeUnique{taken: map[string]bool{"articles.slug=taken": true}}
	v := New(components(), u)

	_, err := v.Validate(context.Background(), articleType(), map[string]any{"title": "a", "slug": "taken"}, "rec-1")
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"has already been taken"}, verr.Errors["slug"])
	assert.Equal(t, "rec-1", u.except)

	_, err = v.Validate(context.Background(), articleType(), map[string]any{"title": "a", "slug": "free"}, "")
	assert.NoError(t, err)
}

func TestValidate_Nested(t *testing.T) {
	v := New(components(), nil)
	in := map[string]any{
		"title": "a",
		"seo":   map[string]any{},
		"sections": []any{
			map[string]any{ComponentKey: "hero", "headline": "ok"},
			map[string]any{ComponentKey: "hero"},
			map[string]any{ComponentKey: "seo", "meta_title": "x"},
			map[string]any{"headline": "x"},
			"text",
		},
	}
	_, err := v.Validate(context.Background(), articleType(), in, "")
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Errors, "seo.meta_title")
	assert.NotContains(t, verr.Errors, "sections.0.headline")
	assert.Contains(t, verr.Errors, "sections.1.headline")
	assert.Contains(t, verr.Errors, "sections.2.__component")
	assert.Contains(t, verr.Errors, "sections.3.__component")
	assert.Contains(t, verr.Errors, "sections.4")
}

func TestValidate_MissingComponentType(t *testing.T) {
	v := New(fakeTypes{}, nil)
	_, err := v.Validate(context.Background(), articleType(), map[string]any{"title": "a", "seo": map[string]any{}}, "")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestValidate_NullClearsOptional(t *testing.T) {
	v := New(components(), nil)
	out, err := v.Validate(context.Background(), articleType(), map[string]any{"title": "a", "views": nil}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "views")
	assert.Nil(t, out["views"])
}

func TestApplyStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	attrs := map[string]any{"status": "published"}
	assert.True(t, ApplyStatus(attrs, nil, now))
	assert.Equal(t, now, attrs["published_at"])
	assert.NotContains(t, attrs, "status")

	attrs = map[string]any{"status": "published"}
	assert.False(t, ApplyStatus(attrs, &earlier, now))
	assert.NotContains(t, attrs, "published_at")

	attrs = map[string]any{"status": "draft"}
	assert.False(t, ApplyStatus(attrs, &earlier, now))
	assert.Contains(t, attrs, "published_at")
	assert.Nil(t, attrs["published_at"])

	attrs = map[string]any{"status": "draft", "published_at": "2024-04-01T00:00:00Z"}
	assert.False(t, ApplyStatus(attrs, nil, now))
	assert.Contains(t, attrs, "published_at")
	assert.Nil(t, attrs["published_at"])

	attrs = map[string]any{"published_at": "2024-04-01T00:00:00Z"}
	assert.True(t, ApplyStatus(attrs, nil, now))
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), attrs["published_at"])

	// an empty timestamp next to a status counts as absent
	for _, empty := range []any{nil, ""} {
		attrs = map[string]any{"status": "published", "published_at": empty}
		assert.True(t, ApplyStatus(attrs, nil, now))
		assert.Equal(t, now, attrs["published_at"])

		attrs = map[string]any{"status": "published", "published_at": empty}
		assert.False(t, ApplyStatus(attrs, &earlier, now))
		assert.NotContains(t, attrs, "published_at")
	}

	// without a status an empty timestamp unpublishes
	attrs = map[string]any{"published_at": nil}
	assert.False(t, ApplyStatus(attrs, &earlier, now))
	assert.Contains(t, attrs, "published_at")
	assert.Nil(t, attrs["published_at"])

	attrs = map[string]any{"published_at": "2030-01-01T00:00:00Z"}
	assert.False(t, ApplyStatus(attrs, nil, now))

	attrs = map[string]any{}
	assert.False(t, ApplyStatus(attrs, nil, now))
	assert.Empty(t, attrs)
}

func TestValidate_EmptyPublishedAtWithStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	v := New(components(), &fakeUnique{})
	out, err := v.Validate(context.Background(), articleType(),
		map[string]any{"title": "Hello", "status": "published", "published_at": ""}, "")
	require.NoError(t, err)
	assert.True(t, ApplyStatus(out, nil, now))
	assert.Equal(t, now, out["published_at"])
}
