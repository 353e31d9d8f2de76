package entity

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

func postType() *catalog.ContentType {
	return &catalog.ContentType{
		ID: "7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a001", Name: "Post", Slug: "post", Table: "posts",
		HasOwnership: true, IsLocalized: true,
		Fields: []*catalog.ContentField{
			{Name: "title", Type: catalog.FieldText},
			{Name: "views", Type: catalog.FieldInteger},
			{Name: "featured", Type: catalog.FieldBoolean},
			{Name: "starts", Type: catalog.FieldDatetime},
			{Name: "meta", Type: catalog.FieldJSON},
			{Name: "cover", Type: catalog.FieldMedia},
			{Name: "tags", Type: catalog.FieldRelation, Settings: catalog.Settings{Multiple: true, RelatedContentTypeID: "t"}},
		},
	}
}

func bindPost(t *testing.T) *Entity {
	repo := New(&csql.DB{Schema: "cms"}, nil)
	e, err := repo.BindType(context.Background(), postType())
	require.NoError(t, err)
	return e
}

func TestBind_ColumnsAndCasts(t *testing.T) {
	e := bindPost(t)
	assert.Equal(t, "posts", e.Table)
	assert.Equal(t, []string{"id", "user_id", "title", "views", "featured", "starts", "meta", "cover_id",
		"locale", "published_at", "created_at", "updated_at"}, e.Columns())

	casts := e.Casts()
	assert.Equal(t, CastString, casts["title"])
	assert.Equal(t, CastInteger, casts["views"])
	assert.Equal(t, CastBoolean, casts["featured"])
	assert.Equal(t, CastDatetime, casts["starts"])
	assert.Equal(t, CastJSON, casts["meta"])
	assert.Equal(t, CastID, casts["cover_id"])
	assert.NotContains(t, casts, "tags")
	assert.NotContains(t, casts, "deleted_at")

	repo := New(&csql.DB{Schema: "cms"}, nil)
	_, err := repo.BindType(context.Background(), &catalog.ContentType{Name: "Seo", Slug: "seo", IsComponent: true})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCast_Decode(t *testing.T) {
	v, err := CastInteger.decode(int64(1200))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), v)

	v, err = CastJSON.decode([]byte(`{"a":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, v)

	v, err = CastID.decode([]byte("7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a001"))
	require.NoError(t, err)
	assert.Equal(t, "7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a001", v)

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	v, err = CastDatetime.decode(ts)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, v.(time.Time).Location())

	v, err = CastBoolean.decode(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = CastBoolean.decode("yes")
	assert.Error(t, err)
}

func TestCast_Encode(t *testing.T) {
	tests := []struct {
		cast Cast
		in   any
		want any
	}{
		{CastInteger, float64(1200), int64(1200)},
		{CastInteger, "42", int64(42)},
		{CastBoolean, "true", true},
		{CastBoolean, float64(0), false},
		{CastString, "Laptop", "Laptop"},
		{CastJSON, map[string]any{"a": 1}, `{"a":1}`},
		{CastDatetime, "2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{CastID, "7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a001", "7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a001"},
		{CastString, nil, nil},
	}
	for _, tt := range tests {
		got, err := tt.cast.encode(tt.in)
		require.NoError(t, err, "%s %v", tt.cast, tt.in)
		assert.Equal(t, tt.want, got)
	}

	for _, bad := range []struct {
		cast Cast
		in   any
	}{
		{CastInteger, 1.5}, {CastInteger, "abc"}, {CastBoolean, "maybe"}, {CastString, 12.0},
		{CastDatetime, "yesterday"}, {CastID, "not-an-id"},
	} {
		_, err := bad.cast.encode(bad.in)
		assert.Error(t, err, "%s %v", bad.cast, bad.in)
	}
}

func TestPrepare_CollectsAllProblems(t *testing.T) {
	e := bindPost(t)
	w, err := e.prepare(map[string]any{
		"title":      "Hello",
		"views":      float64(3),
		"tags":       []any{"7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a002"},
		"id":         "ignored",
		"created_at": "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "views"}, w.columns)
	assert.Equal(t, []string{"7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a002"}, w.pivots["tags"])

	_, err = e.prepare(map[string]any{
		"views":   "many",
		"unknown": 1,
		"tags":    "x",
	})
	assert.ErrorIs(t, err, core.ErrValidationFailed)
	verr := err.(*core.ValidationError)
	assert.Contains(t, verr.Errors, "views")
	assert.Contains(t, verr.Errors, "unknown")
	assert.Contains(t, verr.Errors, "tags")
}

func TestPrepare_NullLocaleFallsBackToDefault(t *testing.T) {
	e := bindPost(t)
	w, err := e.prepare(map[string]any{"title": "Hallo", "locale": nil})
	require.NoError(t, err)
	assert.Equal(t, []string{"locale", "title"}, w.columns)
	assert.Equal(t, []any{DefaultLocale, "Hallo"}, w.values)

	w, err = e.prepare(map[string]any{"locale": "de"})
	require.NoError(t, err)
	assert.Equal(t, []any{"de"}, w.values)
}

func TestQuery_SQL(t *testing.T) {
	e := bindPost(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	sqlQuery, args, err := e.Query().
		Where("views", ">", "120").
		Where("title", "like", "%a%").
		WhereIn("locale", []any{"en", "de"}).
		WhereNull("cover_id").
		Published(now).
		OrderBy("views", true).
		OrderBy("title", false).
		Select("title").
		Limit(10).Offset(20).
		SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "title" FROM "cms"."posts" WHERE deleted_at IS NULL AND "views" > $1 AND CAST("title" AS text) LIKE $2 AND "locale" IN ($3, $4) AND "cover_id" IS NULL AND "published_at" IS NOT NULL AND "published_at" <= $5 ORDER BY "views" DESC, "title" ASC LIMIT 10 OFFSET 20;`, sqlQuery)
	assert.Equal(t, []any{"120", "%a%", "en", "de", now}, args)

	sqlQuery, _, err = e.Query().WhereIn("id", nil).SQL()
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, "WHERE deleted_at IS NULL AND FALSE")

	_, _, err = e.Query().Where("password", "=", "x").SQL()
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
	_, _, err = e.Query().Where("title", "~", "x").SQL()
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
	_, _, err = e.Query().OrderBy("tags", false).SQL()
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	// populating a to-one relation keeps its foreign column in the projection
	sqlQuery, _, err = e.Query().Select("title").With("cover").SQL()
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `SELECT "id", "title", "cover_id" FROM`)
}

func TestRecord_JSON(t *testing.T) {
	e := bindPost(t)
	const id = "7a0e3c4a-37f6-4c1c-8d3b-0fd1d1b1a0ff"
	r, err := e.NewRecord(map[string]any{"title": "Laptop", "views": int64(1200), "id": id, "nope": 1})
	require.NoError(t, err)
	assert.Same(t, e, r.Entity())
	assert.Equal(t, []string{"id", "title", "views"}, r.Keys())

	r.Set("cover_id", "c")
	r.Replace("cover_id", "cover", map[string]any{"id": "c"})
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"`+id+`","title":"Laptop","views":1200,"cover":{"id":"c"}}`, string(b))

	r.Delete("views")
	assert.Equal(t, []string{"id", "title", "cover"}, r.Keys())
	assert.Equal(t, id, r.ID())
	assert.Equal(t, "", r.OwnerID())
	assert.Nil(t, r.PublishedAt())
}

func TestNewRecord_CastsValues(t *testing.T) {
	e := bindPost(t)
	r, err := e.NewRecord(map[string]any{
		"views":    "1200",
		"featured": float64(1),
		"starts":   "2024-05-01 10:00:00",
		"meta":     map[string]any{"a": float64(1)},
	})
	require.NoError(t, err)
	views, _ := r.Get("views")
	assert.Equal(t, int64(1200), views)
	featured, _ := r.Get("featured")
	assert.Equal(t, true, featured)
	starts, _ := r.Get("starts")
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), starts)
	meta, _ := r.Get("meta")
	assert.Equal(t, map[string]any{"a": float64(1)}, meta)

	_, err = e.NewRecord(map[string]any{"views": "many", "cover_id": "x"})
	assert.ErrorIs(t, err, core.ErrValidationFailed)
	verr := err.(*core.ValidationError)
	assert.Contains(t, verr.Errors, "views")
	assert.Contains(t, verr.Errors, "cover_id")
}

func TestResolveRelation_WithoutCatalog(t *testing.T) {
	e := bindPost(t)
	ctx := context.Background()

	rel, err := e.ResolveRelation(ctx, "cover")
	require.NoError(t, err)
	assert.Equal(t, RelationToOne, rel.Kind)
	assert.Equal(t, "cover_id", rel.Column)
	assert.True(t, rel.Media)

	rel, err = e.ResolveRelation(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, RelationNone, rel.Kind)

	_, err = e.ResolveRelation(ctx, "comments")
	assert.ErrorIs(t, err, core.ErrMethodNotFound)
}
