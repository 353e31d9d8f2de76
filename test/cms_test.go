package test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/backend"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

type record map[string]any

type recordBody struct {
	Data record `json:"data"`
}

type listBody struct {
	Data       []record           `json:"data"`
	Pagination backend.Pagination `json:"pagination"`
}

type typeBody struct {
	Data catalog.ContentType `json:"data"`
}

func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration tests need docker")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) createType(definition string) catalog.ContentType {
	var body typeBody
	_, err := s.admin.RawPost("/schema/types", []byte(definition), &body)
	s.Require().NoError(err)
	return body.Data
}

func (s *IntegrationTestSuite) hasTable(table string) bool {
	exists, err := csql.HasTable(context.Background(), s.dbConn, s.dbConn.Schema, table)
	s.Require().NoError(err)
	return exists
}

func (s *IntegrationTestSuite) TestProductRoundTrip() {
	s.createType(`{"name":"Product","is_public":true,"fields":[
		{"name":"name","type":"text","settings":{"required":true}},
		{"name":"price","type":"integer"},
		{"name":"in_stock","type":"boolean","settings":{"default":true}}
	]}`)
	s.True(s.hasTable("products"))

	products := s.admin.Content("product")
	var created recordBody
	status, err := products.Create(record{"name": "Lamp", "price": 40, "status": "published"}, &created)
	s.Require().NoError(err)
	s.Equal(http.StatusCreated, status)
	s.Equal("Lamp", created.Data["name"])
	s.Equal(true, created.Data["in_stock"])
	id, _ := created.Data["id"].(string)
	s.Require().NotEmpty(id)

	var read recordBody
	_, err = s.anonymous.Content("product").Read(id, &read)
	s.Require().NoError(err)
	s.Equal(float64(40), read.Data["price"])

	_, err = products.Update(id, record{"name": "Lamp", "price": 45}, &read)
	s.Require().NoError(err)
	s.Equal(float64(45), read.Data["price"])

	_, err = products.Create(record{"name": "Desk", "price": 300, "status": "published"}, nil)
	s.Require().NoError(err)

	var list listBody
	_, err = s.anonymous.Content("product").WithFilter("price", "$gt", "100").List(&list)
	s.Require().NoError(err)
	s.Require().Len(list.Data, 1)
	s.Equal("Desk", list.Data[0]["name"])

	status, err = products.Create(record{"price": "cheap"}, nil)
	s.Error(err)
	s.Equal(http.StatusUnprocessableEntity, status)

	status, err = products.Delete(id)
	s.Require().NoError(err)
	s.Equal(http.StatusNoContent, status)
	status, err = products.Read(id, &read)
	s.Error(err)
	s.Equal(http.StatusNotFound, status)

	s.Equal([]string{"content.create", "content.publish", "content.update", "content.delete"}, s.events.names(id))
}

func (s *IntegrationTestSuite) TestFailedCreateLeavesNothingBehind() {
	status, err := s.admin.RawPost("/schema/types", []byte(`{"name":"Broken","fields":[
		{"name":"title","type":"text"},
		{"name":"owner","type":"relation","settings":{"related_content_type_id":"00000000-0000-4000-8000-000000000000"}}
	]}`), nil)
	s.Error(err)
	s.Equal(http.StatusNotFound, status)

	status, err = s.admin.RawGet("/schema/types/broken", nil)
	s.Error(err)
	s.Equal(http.StatusNotFound, status)
	s.False(s.hasTable("brokens"))
}

func (s *IntegrationTestSuite) TestPivotIsSharedAndIdempotent() {
	tag := s.createType(`{"name":"Tag","is_public":true,"fields":[{"name":"label","type":"text"}]}`)
	post := s.createType(`{"name":"Post","is_public":true,"fields":[
		{"name":"title","type":"text"},
		{"name":"tags","type":"relation","settings":{"related_content_type_id":"` + tag.ID + `","multiple":true}}
	]}`)
	pivot := core.Pivot("post", "tag").Table
	s.True(s.hasTable(pivot))

	_, err := s.admin.RawPut("/schema/types/tag", []byte(`{"name":"Tag","is_public":true,"fields":[
		{"name":"label","type":"text"},
		{"name":"posts","type":"relation","settings":{"related_content_type_id":"`+post.ID+`","multiple":true}}
	]}`), nil)
	s.Require().NoError(err)
	s.True(s.hasTable(pivot))

	var red, blue recordBody
	_, err = s.admin.Content("tag").Create(record{"label": "red", "status": "published"}, &red)
	s.Require().NoError(err)
	_, err = s.admin.Content("tag").Create(record{"label": "blue", "status": "published"}, &blue)
	s.Require().NoError(err)

	var created recordBody
	_, err = s.admin.Content("post").Create(record{
		"title":  "Hello",
		"tags":   []any{red.Data["id"], blue.Data["id"], red.Data["id"]},
		"status": "published",
	}, &created)
	s.Require().NoError(err)

	var read recordBody
	_, err = s.anonymous.Content("post").WithParameter("populate", "tags").Read(created.Data["id"].(string), &read)
	s.Require().NoError(err)
	tags, ok := read.Data["tags"].([]any)
	s.Require().True(ok)
	s.Len(tags, 2)

	_, err = s.anonymous.Content("tag").WithParameter("populate", "posts").Read(red.Data["id"].(string), &read)
	s.Require().NoError(err)
	posts, ok := read.Data["posts"].([]any)
	s.Require().True(ok)
	s.Require().Len(posts, 1)
	s.Equal("Hello", posts[0].(map[string]any)["title"])
}

func (s *IntegrationTestSuite) TestDraftsNeedAnActor() {
	s.createType(`{"name":"Notice","is_public":true,"has_ownership":true,"fields":[{"name":"text","type":"text"}]}`)

	var draft recordBody
	_, err := s.user.Content("notice").Create(record{"text": "soon"}, &draft)
	s.Require().NoError(err)
	s.Equal(s.userID, draft.Data["user_id"])
	tomorrow := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	_, err = s.user.Content("notice").Create(record{"text": "later", "published_at": tomorrow}, nil)
	s.Require().NoError(err)
	_, err = s.user.Content("notice").Create(record{"text": "now", "status": "published"}, nil)
	s.Require().NoError(err)

	var list listBody
	_, err = s.anonymous.Content("notice").List(&list)
	s.Require().NoError(err)
	s.Require().Len(list.Data, 1)
	s.Equal("now", list.Data[0]["text"])

	status, err := s.anonymous.Content("notice").WithParameter("status", "draft").List(&list)
	s.Error(err)
	s.Equal(http.StatusUnauthorized, status)

	_, err = s.user.Content("notice").WithParameter("status", "draft").List(&list)
	s.Require().NoError(err)
	s.Len(list.Data, 3)

	status, err = s.anonymous.Content("notice").Read(draft.Data["id"].(string), nil)
	s.Error(err)
	s.Equal(http.StatusNotFound, status)

	status, err = s.admin.Content("notice").Delete(draft.Data["id"].(string))
	s.Require().NoError(err)
	s.Equal(http.StatusNoContent, status)
}

func (s *IntegrationTestSuite) TestSingleType() {
	s.createType(`{"name":"Homepage","is_public":true,"is_single":true,"fields":[{"name":"headline","type":"text"}]}`)

	var empty struct {
		Data *record `json:"data"`
	}
	_, err := s.anonymous.Content("homepage").List(&empty)
	s.Require().NoError(err)
	s.Nil(empty.Data)

	_, err = s.admin.Content("homepage").Create(record{"headline": "Welcome", "status": "published"}, nil)
	s.Require().NoError(err)
	status, err := s.admin.Content("homepage").Create(record{"headline": "Twice"}, nil)
	s.Error(err)
	s.Equal(http.StatusBadRequest, status)

	var single recordBody
	_, err = s.anonymous.Content("homepage").List(&single)
	s.Require().NoError(err)
	s.Equal("Welcome", single.Data["headline"])
}

func (s *IntegrationTestSuite) TestSchemaRoutesNeedAdmin() {
	status, err := s.anonymous.RawGet("/schema/types", nil)
	s.Error(err)
	s.Equal(http.StatusUnauthorized, status)

	status, err = s.user.RawGet("/schema/types", nil)
	s.Error(err)
	s.Equal(http.StatusForbidden, status)

	status, err = s.anonymous.WithToken("not-a-token").RawGet("/schema/types", nil)
	s.Error(err)
	s.Equal(http.StatusUnauthorized, status)

	var types struct {
		Data []catalog.ContentType `json:"data"`
	}
	_, err = s.admin.RawGet("/schema/types", &types)
	s.Require().NoError(err)
}
