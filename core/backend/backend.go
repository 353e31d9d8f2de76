package backend

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/access"
	"github.com/relabs-tech/kurbisio-cms/core/catalog"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
	"github.com/relabs-tech/kurbisio-cms/core/entity"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
	"github.com/relabs-tech/kurbisio-cms/core/manager"
	"github.com/relabs-tech/kurbisio-cms/core/query"
	"github.com/relabs-tech/kurbisio-cms/core/validation"
)

// Backend is the content backend
type Backend struct {
	db                   *csql.DB
	router               *mux.Router
	catalog              *catalog.Store
	manager              *manager.Manager
	repo                 *entity.Repository
	validator            *validation.Validator
	notifier             core.Notifier
	queryOptions         query.Options
	authorizationEnabled bool
	interceptors         map[string]requestHandler
	now                  func() time.Time
}

// Builder is a builder helper for the Backend
type Builder struct {
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Notifier receives content events. This is optional.
	Notifier core.Notifier
	// JWTSecret enables HS256 bearer authentication. Without it the backend
	// does not authorize requests. This is optional.
	JWTSecret []byte
	// AuthorizationEnabled enforces actors without installing the jwt middleware,
	// for routers where actors are put into the context by other means.
	AuthorizationEnabled bool
	// StrictFilters rejects unknown filter operators instead of ignoring them
	StrictFilters bool
	// CORS adds CORS headers to all responses
	CORS bool
	// CORSOrigins restricts the allowed origins, all origins are allowed if empty
	CORSOrigins []string
	// Media resolves populated media fields. This is optional.
	Media entity.MediaLookup
	// CompressionLevel is the gzip level of responses, 0 means gzip.DefaultCompression
	CompressionLevel int
}

// New realizes the actual backend. It migrates the catalog tables (if they
// do not exist) and adds routes to router
func New(bb *Builder) *Backend {
	if bb.DB == nil {
		panic("DB is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}

	if err := catalog.Migrate(context.Background(), bb.DB); err != nil {
		panic(fmt.Errorf("cannot migrate catalog: %w", err))
	}

	store := catalog.New(bb.DB)
	repo := entity.New(bb.DB, store)
	if bb.Media != nil {
		repo.WithMedia(bb.Media)
	}

	b := &Backend{
		db:                   bb.DB,
		router:               bb.Router,
		catalog:              store,
		manager:              manager.New(bb.DB, store),
		repo:                 repo,
		validator:            validation.New(store, repo),
		notifier:             bb.Notifier,
		queryOptions:         query.Options{Strict: bb.StrictFilters},
		authorizationEnabled: bb.AuthorizationEnabled || len(bb.JWTSecret) > 0,
		interceptors:         make(map[string]requestHandler),
		now:                  func() time.Time { return time.Now().UTC() },
	}

	logger.AddRequestID(b.router)
	if bb.CORS {
		b.handleCORS(bb.CORSOrigins)
	}
	b.handleCompression(bb.CompressionLevel)
	if len(bb.JWTSecret) > 0 {
		b.router.Use(access.NewJwtMiddelware(bb.JWTSecret))
	}

	access.HandleAuthorizationRoute(b.router)
	b.handleVersion(b.router)
	b.handleStatistics(b.router)
	b.handleSchema(b.router)
	b.handleContent(b.router)
	return b
}

// Manager returns the schema manager of the backend
func (b *Backend) Manager() *manager.Manager {
	return b.manager
}

// Repository returns the record repository of the backend
func (b *Backend) Repository() *entity.Repository {
	return b.repo
}

// requireActor answers 401 if authorization is enabled and the request has no actor
func (b *Backend) requireActor(w http.ResponseWriter, r *http.Request) (*access.Actor, bool) {
	actor := access.ActorFromContext(r.Context())
	if b.authorizationEnabled && actor == nil {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return nil, false
	}
	return actor, true
}

// requireAdmin answers 401 without actor and 403 for actors who are not admins
func (b *Backend) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := b.requireActor(w, r)
	if !ok {
		return false
	}
	if b.authorizationEnabled && !actor.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// errorResponse is the body of 4xx answers carrying details
type errorResponse struct {
	Error  string              `json:"error"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// writeError maps err to a status code. Server errors are logged with code and
// answered without details.
func writeError(w http.ResponseWriter, r *http.Request, code string, err error) {
	status := core.HTTPStatus(err)
	rlog := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		rlog.WithError(err).Errorf("Error %s", code)
		http.Error(w, "Error "+code, status)
		return
	}
	rlog.WithError(err).Debugf("Error %s", code)
	body := errorResponse{Error: err.Error()}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		body.Error = core.ErrValidationFailed.Error()
		body.Errors = verr.Errors
	}
	writeJSON(w, r, status, body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("Error 4001: cannot marshal response")
		http.Error(w, "Error 4001", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status == http.StatusOK {
		etag := bytesToEtag(jsonData)
		w.Header().Set("Etag", etag)
		if ifNoneMatchFound(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.WriteHeader(status)
	w.Write(jsonData)
}

func readBody(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return &core.ValidationError{Errors: map[string][]string{"body": {"invalid json: " + err.Error()}}}
	}
	return nil
}

func bytesToEtag(b []byte) string {
	return fmt.Sprintf("W/\"%x\"", md5.Sum(b))
}

func ifNoneMatchFound(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.Trim(ifNoneMatch, " ")
	if len(ifNoneMatch) == 0 {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	t := strings.TrimPrefix(strings.Trim(etag, " "), "W/")
	for _, s := range strings.Split(ifNoneMatch, ",") {
		s = strings.TrimPrefix(strings.Trim(s, " "), "W/")
		if strings.Trim(s, "\"") == strings.Trim(t, "\"") {
			return true
		}
	}
	return false
}
