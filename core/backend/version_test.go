package backend_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/kurbisio-cms/core/backend"
)

func TestVersion(t *testing.T) {
	requireDB(t)
	var details backend.VersionDetails
	_, err := testService.admin.RawGet("/version", &details)
	require.NoError(t, err)
	assert.Equal(t, "unset", details.Version)
	assert.Equal(t, int64(1), details.CatalogVersion)
	assert.False(t, details.CatalogDirty)
	before := details.ContentTypes

	backend.Version = "1.4.2"
	defer func() { backend.Version = "unset" }()
	createType(t, `{"name":"Release","fields":[{"name":"tag","type":"text"}]}`)

	_, err = testService.admin.RawGet("/version", &details)
	require.NoError(t, err)
	assert.Equal(t, "1.4.2", details.Version)
	assert.Equal(t, before+1, details.ContentTypes)

	status, _ := testService.anonymous.RawGet("/version", &details)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = testService.anonymous.WithUser("9a0c3a6e-3cf5-4c59-8f5a-1f2b0f6f4a10").RawGet("/version", &details)
	assert.Equal(t, http.StatusForbidden, status)
}
