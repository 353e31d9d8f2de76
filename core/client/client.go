// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to the content API

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is the tool of choice for unit tests. Created with NewWithURL, the same client talks
to a remote server.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	actor      *access.Actor
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithActor() adds an actor to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := make(map[string]string, len(c.defaultHeaders)+1)
	for k, v := range c.defaultHeaders {
		headers[k] = v
	}
	headers[key] = value
	c.defaultHeaders = headers
	return c
}

// WithToken returns a new client which sends token as bearer
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithActor returns a new client acting as actor
// (this works only directly against the mux router, for a normal client
//
//	use WithToken())
func (c Client) WithActor(actor *access.Actor) Client {
	c.actor = actor
	return c
}

// WithUser returns a new client acting as a plain user with id
func (c Client) WithUser(id string) Client {
	return c.WithActor(&access.Actor{ID: id})
}

// WithAdmin returns a new client acting as an admin
func (c Client) WithAdmin() Client {
	return c.WithActor(&access.Actor{ID: uuid.NewString(), Roles: []string{access.RoleAdmin}})
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.actor != nil {
		ctx = c.actor.ContextWithActor(ctx)
	}
	return ctx
}

// do executes a request and returns status, header and body
func (c Client) do(method, path string, header map[string]string, body interface{}) (int, http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			if j, err = json.Marshal(body); err != nil {
				return 0, nil, nil, err
			}
		}
		reader = bytes.NewReader(j)
	}
	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range header {
		r.Header.Add(key, value)
	}

	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}
	if c.token != "" {
		r.Header.Add("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	return res.StatusCode, res.Header, resBody, err
}

func decode(resBody []byte, result interface{}) error {
	if len(resBody) == 0 || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

func statusError(got, want int, resBody []byte) error {
	return fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
		got, want, strings.TrimSpace(string(resBody)))
}

// RawGet gets a resource from path. Expects http.StatusOK or http.StatusNoContent as valid
// response, otherwise it will flag an error. Returns the actual http status code.
//
// result can also be raw *[]byte.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	status, _, err := c.RawGetWithHeader(path, nil, result)
	return status, err
}

// RawGetWithHeader is RawGet with additional request headers. It also returns the response header.
func (c Client) RawGetWithHeader(path string, header map[string]string, result interface{}) (int, http.Header, error) {
	status, resHeader, resBody, err := c.do(http.MethodGet, path, header, nil)
	if err != nil {
		return status, resHeader, err
	}
	switch status {
	case http.StatusNoContent, http.StatusNotModified:
		return status, resHeader, nil
	case http.StatusOK:
		return status, resHeader, decode(resBody, result)
	}
	return status, resHeader, statusError(status, http.StatusOK, resBody)
}

// RawPost posts a resource to path. Expects http.StatusCreated as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	status, _, resBody, err := c.do(http.MethodPost, path, nil, body)
	if err != nil {
		return status, err
	}
	if status != http.StatusCreated {
		return status, statusError(status, http.StatusCreated, resBody)
	}
	return status, decode(resBody, result)
}

// RawPut puts a resource to path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	status, _, resBody, err := c.do(http.MethodPut, path, nil, body)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, statusError(status, http.StatusOK, resBody)
	}
	return status, decode(resBody, result)
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent as response, otherwise it will
// flag an error.
//
// Returns the actual http status code.
func (c Client) RawDelete(path string) (int, error) {
	status, _, resBody, err := c.do(http.MethodDelete, path, nil, nil)
	if err != nil {
		return status, err
	}
	if status != http.StatusNoContent {
		return status, statusError(status, http.StatusNoContent, resBody)
	}
	return status, nil
}

// Content represents the records of one content type
type Content struct {
	client     *Client
	slug       string
	parameters url.Values
}

// Content returns a client for the records of the content type with slug
func (c Client) Content(slug string) Content {
	return Content{client: &c, slug: slug, parameters: url.Values{}}
}

// WithParameter returns a new content client with an added query parameter
func (r Content) WithParameter(key, value string) Content {
	p := url.Values{}
	for k, v := range r.parameters {
		p[k] = append([]string{}, v...)
	}
	p.Add(key, value)
	r.parameters = p
	return r
}

// WithFilter adds filters[field][operator]=value. An empty operator means equality.
func (r Content) WithFilter(field, operator, value string) Content {
	key := "filters[" + field + "]"
	if operator != "" {
		key += "[" + operator + "]"
	}
	return r.WithParameter(key, value)
}

// WithPage selects a page of the list
func (r Content) WithPage(page, perPage int) Content {
	return r.WithParameter("page", strconv.Itoa(page)).WithParameter("per_page", strconv.Itoa(perPage))
}

// Path returns the path of the collection including query parameters
func (r Content) Path() string {
	path := "/content/" + r.slug
	if len(r.parameters) > 0 {
		path += "?" + r.parameters.Encode()
	}
	return path
}

// ItemPath returns the path of the record with id including query parameters
func (r Content) ItemPath(id string) string {
	path := "/content/" + r.slug + "/" + id
	if len(r.parameters) > 0 {
		path += "?" + r.parameters.Encode()
	}
	return path
}

// List reads the collection, or the record of a single type
func (r Content) List(result interface{}) (int, error) {
	return r.client.RawGet(r.Path(), result)
}

// Create creates a record
func (r Content) Create(body interface{}, result interface{}) (int, error) {
	return r.client.RawPost(r.Path(), body, result)
}

// Read reads the record with id
func (r Content) Read(id string, result interface{}) (int, error) {
	return r.client.RawGet(r.ItemPath(id), result)
}

// Update updates the record with id
func (r Content) Update(id string, body interface{}, result interface{}) (int, error) {
	return r.client.RawPut(r.ItemPath(id), body, result)
}

// Delete deletes the record with id
func (r Content) Delete(id string) (int, error) {
	return r.client.RawDelete(r.ItemPath(id))
}
