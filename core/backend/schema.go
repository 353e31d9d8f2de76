package backend

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
	"github.com/relabs-tech/kurbisio-cms/core/manager"
	"github.com/relabs-tech/kurbisio-cms/core/validation"
)

// typesResponse is the body of GET /schema/types
type typesResponse struct {
	Data []*catalog.ContentType `json:"data"`
}

// typeResponse is the body of single type answers
type typeResponse struct {
	Data *catalog.ContentType `json:"data"`
}

// rulesResponse is the body of GET /schema/types/{slug}/rules
type rulesResponse struct {
	Data []validation.FieldRules `json:"data"`
}

func (b *Backend) handleSchema(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("schema")
	rlog.Debugln("  handle route: /schema/types GET,POST")
	rlog.Debugln("  handle route: /schema/types/{slug} GET,PUT,DELETE")
	rlog.Debugln("  handle route: /schema/types/{slug}/rules GET")

	router.HandleFunc("/schema/types", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		types, err := b.catalog.Types(r.Context())
		if err != nil {
			writeError(w, r, "4101", err)
			return
		}
		writeJSON(w, r, http.StatusOK, typesResponse{Data: types})
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/schema/types", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		var def manager.TypeDefinition
		if err := readBody(r, &def); err != nil {
			writeError(w, r, "4102", err)
			return
		}
		ct, err := b.manager.CreateType(r.Context(), def)
		if err != nil {
			writeError(w, r, "4103", err)
			return
		}
		writeJSON(w, r, http.StatusCreated, typeResponse{Data: ct})
	}).Methods(http.MethodPost)

	router.HandleFunc("/schema/types/{slug}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		ct, err := b.catalog.TypeBySlug(r.Context(), mux.Vars(r)["slug"])
		if err != nil {
			writeError(w, r, "4104", err)
			return
		}
		writeJSON(w, r, http.StatusOK, typeResponse{Data: ct})
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/schema/types/{slug}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		var def manager.TypeDefinition
		if err := readBody(r, &def); err != nil {
			writeError(w, r, "4105", err)
			return
		}
		ct, err := b.manager.UpdateType(r.Context(), mux.Vars(r)["slug"], def)
		if err != nil {
			writeError(w, r, "4106", err)
			return
		}
		writeJSON(w, r, http.StatusOK, typeResponse{Data: ct})
	}).Methods(http.MethodPut)

	router.HandleFunc("/schema/types/{slug}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		if err := b.manager.DeleteType(r.Context(), mux.Vars(r)["slug"]); err != nil {
			writeError(w, r, "4107", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	router.HandleFunc("/schema/types/{slug}/rules", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if !b.requireAdmin(w, r) {
			return
		}
		ct, err := b.catalog.TypeBySlug(r.Context(), mux.Vars(r)["slug"])
		if err != nil {
			writeError(w, r, "4108", err)
			return
		}
		writeJSON(w, r, http.StatusOK, rulesResponse{Data: validation.Rules(ct, "")})
	}).Methods(http.MethodOptions, http.MethodGet)
}
