package query

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/entity"
)

func articles(t *testing.T, localized bool) *entity.Entity {
	ct := &catalog.ContentType{
		ID: "a", Name: "Article", Slug: "article", Table: "articles", IsLocalized: localized,
		Fields: []*catalog.ContentField{
			{Name: "title", Type: catalog.FieldText},
			{Name: "views", Type: catalog.FieldInteger},
			{Name: "author", Type: catalog.FieldRelation, Settings: catalog.Settings{RelatedContentTypeID: "b"}},
			{Name: "tags", Type: catalog.FieldRelation, Settings: catalog.Settings{Multiple: true, RelatedContentTypeID: "c"}},
		},
	}
	e, err := entity.New(&csql.DB{Schema: "cms"}, nil).BindType(context.Background(), ct)
	require.NoError(t, err)
	return e
}

func parse(t *testing.T, raw string) Params {
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	p, err := ParseValues(values)
	require.NoError(t, err)
	return p
}

func TestParseValues(t *testing.T) {
	p := parse(t, "filters[views][$gt]=120&filters[title]=Hello&filters[views][$in][]=1&filters[views][$in][]=2,3"+
		"&sort[]=views:desc&sort[]=title&fields[]=title&populate[]=author&status=draft&locale=de&page=3&per_page=500")

	require.Len(t, p.Filters, 2)
	assert.Equal(t, "title", p.Filters[0].Field)
	assert.Equal(t, []Condition{{Operator: OpEq, Values: []string{"Hello"}}}, p.Filters[0].Conditions)
	assert.Equal(t, "views", p.Filters[1].Field)
	assert.Equal(t, []Condition{
		{Operator: OpGt, Values: []string{"120"}},
		{Operator: OpIn, Values: []string{"1", "2", "3"}},
	}, p.Filters[1].Conditions)

	assert.Equal(t, []string{"views:desc", "title"}, p.Sort)
	assert.Equal(t, []string{"title"}, p.Fields)
	assert.Equal(t, Populate{Relations: []string{"author"}}, p.Populate)
	assert.Equal(t, StatusDraft, p.Status)
	assert.Equal(t, "de", p.Locale)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, MaxPerPage, p.PerPage)
}

func TestParseValues_Defaults(t *testing.T) {
	p := parse(t, "sort=title:asc,views:desc&populate=*")
	assert.Equal(t, []string{"title:asc", "views:desc"}, p.Sort)
	assert.True(t, p.Populate.All)
	assert.Equal(t, DefaultLocale, p.Locale)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPerPage, p.PerPage)

	p = parse(t, "sort[1]=b&sort[0]=a")
	assert.Equal(t, []string{"a", "b"}, p.Sort)
}

func TestParseValues_IndexedOrder(t *testing.T) {
	raw := make([]string, 0, 12)
	want := make([]string, 0, 12)
	for i := 11; i >= 0; i-- {
		raw = append(raw, fmt.Sprintf("sort[%d]=f%d", i, i))
	}
	for i := 0; i < 12; i++ {
		want = append(want, fmt.Sprintf("f%d", i))
	}
	p := parse(t, strings.Join(raw, "&"))
	assert.Equal(t, want, p.Sort)

	p = parse(t, "fields[10]=c&fields[2]=b&fields[1]=a")
	assert.Equal(t, []string{"a", "b", "c"}, p.Fields)

	assert.True(t, keyLess("sort[2]", "sort[10]"))
	assert.False(t, keyLess("sort[10]", "sort[2]"))
	assert.True(t, keyLess("fields[0]", "sort[0]"))
	assert.True(t, keyLess("sort", "sort[0]"))
}

func TestParseValues_Errors(t *testing.T) {
	for _, raw := range []string{"status=archived", "page=x", "per_page=x", "filters[]=1", "filters[a=1"} {
		values, err := url.ParseQuery(raw)
		require.NoError(t, err)
		_, err = ParseValues(values)
		assert.ErrorIs(t, err, core.ErrInvalidQuery, raw)
	}
}

func sqlOf(t *testing.T, e *entity.Entity, raw string, opts Options) (string, []any) {
	q, err := Apply(context.Background(), e.Query(), parse(t, raw), opts)
	require.NoError(t, err)
	s, args, err := q.SQL()
	require.NoError(t, err)
	return s, args
}

func TestApply_Filters(t *testing.T) {
	e := articles(t, false)

	s, args := sqlOf(t, e, "filters[views][$gt]=120", Options{})
	assert.Contains(t, s, `WHERE deleted_at IS NULL AND "views" > $1`)
	assert.Equal(t, []any{"120"}, args)

	s, args = sqlOf(t, e, "filters[title][$contains]=50%_off", Options{})
	assert.Contains(t, s, `CAST("title" AS text) LIKE $1`)
	assert.Equal(t, []any{`%50\%\_off%`}, args)

	s, _ = sqlOf(t, e, "filters[title][$notContains]=x", Options{})
	assert.Contains(t, s, `CAST("title" AS text) NOT LIKE $1`)

	s, args = sqlOf(t, e, "filters[views][$notIn]=1,2", Options{})
	assert.Contains(t, s, `"views" NOT IN ($1, $2)`)
	assert.Len(t, args, 2)

	s, _ = sqlOf(t, e, "filters[author][$eq]=x", Options{})
	assert.Contains(t, s, `"author_id" = $1`)

	s, _ = sqlOf(t, e, "filters[title][$null]=true", Options{})
	assert.Contains(t, s, `"title" IS NULL`)
	s, _ = sqlOf(t, e, "filters[title][$null]=false", Options{})
	assert.Contains(t, s, `"title" IS NOT NULL`)
	s, _ = sqlOf(t, e, "filters[title][$notNull]=1", Options{})
	assert.Contains(t, s, `"title" IS NOT NULL`)
	s, _ = sqlOf(t, e, "filters[title][$notNull]=no", Options{})
	assert.Contains(t, s, `"title" IS NULL`)
}

func TestApply_UnknownOperator(t *testing.T) {
	e := articles(t, false)
	s, args := sqlOf(t, e, "filters[views][$between]=1", Options{})
	assert.NotContains(t, s, `"views"`)
	assert.Empty(t, args)

	_, err := Apply(context.Background(), e.Query(), parse(t, "filters[views][$between]=1"), Options{Strict: true})
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = Apply(context.Background(), e.Query(), parse(t, "filters[secret]=1"), Options{})
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
	_, err = Apply(context.Background(), e.Query(), parse(t, "filters[tags]=1"), Options{})
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestApply_SortFieldsPopulate(t *testing.T) {
	e := articles(t, false)
	s, _ := sqlOf(t, e, "sort[]=views:desc&sort[]=title&fields[]=title&fields[]=views", Options{})
	assert.Equal(t, `SELECT "id", "title", "views" FROM "cms"."articles" WHERE deleted_at IS NULL ORDER BY "views" DESC, "title" ASC;`, s)

	// filter columns stay usable when projected away, and the projection keeps the id
	s, _ = sqlOf(t, e, "filters[views][$gte]=5&fields[]=title", Options{})
	assert.Equal(t, `SELECT "id", "title" FROM "cms"."articles" WHERE deleted_at IS NULL AND "views" >= $1;`, s)

	s, _ = sqlOf(t, e, "fields[]=title&populate[]=author", Options{})
	assert.Contains(t, s, `SELECT "id", "title", "author_id" FROM`)

	s, _ = sqlOf(t, e, "fields[]=title&populate=*", Options{})
	assert.Contains(t, s, `SELECT "id", "title" FROM`)

	_, err := Apply(context.Background(), e.Query(), parse(t, "sort=title:sideways"), Options{})
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
}

func TestScope(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	e := articles(t, true)
	s, args, err := Scope(e.Query(), parse(t, ""), now).SQL()
	require.NoError(t, err)
	assert.Contains(t, s, `"published_at" IS NOT NULL AND "published_at" <= $1 AND "locale" = $2`)
	assert.Equal(t, []any{now, "en"}, args)

	s, _, err = Scope(e.Query(), parse(t, "status=draft&locale=fr"), now).SQL()
	require.NoError(t, err)
	assert.NotContains(t, s, "published_at")

	e = articles(t, false)
	s, _, err = Scope(e.Query(), parse(t, "status=published"), now).SQL()
	require.NoError(t, err)
	assert.NotContains(t, s, "locale")
}
