package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

var (
	// Version is the version of the curent build
	Version = "unset"
)

// VersionDetails is the body of GET /version
type VersionDetails struct {
	Version        string `json:"version"`
	CatalogVersion int64  `json:"catalog_version"`
	CatalogDirty   bool   `json:"catalog_dirty,omitempty"`
	ContentTypes   int    `json:"content_types"`
}

func (b *Backend) handleVersion(router *mux.Router) {
	logger.Default().Debugln("version")
	logger.Default().Debugln("  handle version route: /version GET")
	router.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		details := VersionDetails{Version: Version}
		var err error
		details.CatalogVersion, details.CatalogDirty, err = catalog.Version(r.Context(), b.db)
		if err != nil {
			writeError(w, r, "4030", err)
			return
		}
		types, err := b.catalog.Types(r.Context())
		if err != nil {
			writeError(w, r, "4031", err)
			return
		}
		details.ContentTypes = len(types)
		writeJSON(w, r, http.StatusOK, details)
	}).Methods(http.MethodOptions, http.MethodGet)
}
