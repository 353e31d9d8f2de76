package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/access"
	"github.com/relabs-tech/kurbisio-cms/core/entity"
	"github.com/relabs-tech/kurbisio-cms/core/logger"
	"github.com/relabs-tech/kurbisio-cms/core/query"
	"github.com/relabs-tech/kurbisio-cms/core/validation"
)

// Pagination describes the page of a list answer
type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalItems  int `json:"total_items"`
	PerPage     int `json:"per_page"`
}

type listResponse struct {
	Data       []*entity.Record `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

type recordResponse struct {
	Data *entity.Record `json:"data"`
}

type rawResponse struct {
	Data json.RawMessage `json:"data"`
}

func (b *Backend) handleContent(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("content")
	rlog.Debugln("  handle route: /content/{slug} GET,POST")
	rlog.Debugln("  handle route: /content/{slug}/{id} GET,PUT,DELETE")

	router.HandleFunc("/content/{slug}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.list(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/content/{slug}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.create(w, r)
	}).Methods(http.MethodPost)

	router.HandleFunc("/content/{slug}/{id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.read(w, r)
	}).Methods(http.MethodOptions, http.MethodGet)

	router.HandleFunc("/content/{slug}/{id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.update(w, r)
	}).Methods(http.MethodPut)

	router.HandleFunc("/content/{slug}/{id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		b.delete(w, r)
	}).Methods(http.MethodDelete)
}

// bindForRead binds the type of the request. Types which are not public require an actor.
func (b *Backend) bindForRead(w http.ResponseWriter, r *http.Request) (*entity.Entity, *access.Actor, bool) {
	ctx := r.Context()
	slug := mux.Vars(r)["slug"]
	actor := access.ActorFromContext(ctx)
	if b.authorizationEnabled && actor == nil {
		public, err := b.catalog.IsPublic(ctx, slug)
		if err != nil {
			writeError(w, r, "4201", err)
			return nil, nil, false
		}
		if !public {
			http.Error(w, "not authorized", http.StatusUnauthorized)
			return nil, nil, false
		}
	}
	e, err := b.repo.Bind(ctx, slug)
	if err != nil {
		writeError(w, r, "4202", err)
		return nil, nil, false
	}
	return e, actor, true
}

func (b *Backend) bindForWrite(w http.ResponseWriter, r *http.Request) (*entity.Entity, *access.Actor, bool) {
	actor, ok := b.requireActor(w, r)
	if !ok {
		return nil, nil, false
	}
	e, err := b.repo.Bind(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		writeError(w, r, "4203", err)
		return nil, nil, false
	}
	return e, actor, true
}

// params parses the query. Drafts are visible to actors only.
func (b *Backend) params(w http.ResponseWriter, r *http.Request, actor *access.Actor) (query.Params, bool) {
	p, err := query.ParseValues(r.URL.Query())
	if err != nil {
		writeError(w, r, "4204", err)
		return p, false
	}
	if p.Status == query.StatusDraft && b.authorizationEnabled && actor == nil {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return p, false
	}
	return p, true
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, actor, ok := b.bindForRead(w, r)
	if !ok {
		return
	}
	p, ok := b.params(w, r, actor)
	if !ok {
		return
	}
	q, err := query.Apply(ctx, query.Scope(e.Query(), p, b.now()), p, b.queryOptions)
	if err != nil {
		writeError(w, r, "4205", err)
		return
	}
	if len(p.Sort) == 0 {
		q.OrderBy("created_at", false).OrderBy("id", false)
	}

	if e.Type.IsSingle {
		record, err := q.First(ctx)
		if err != nil {
			writeError(w, r, "4206", err)
			return
		}
		writeJSON(w, r, http.StatusOK, recordResponse{Data: record})
		return
	}

	page, err := q.Paginate(ctx, p.Page, p.PerPage)
	if err != nil {
		writeError(w, r, "4207", err)
		return
	}
	body := listResponse{
		Data: page.Records,
		Pagination: Pagination{
			CurrentPage: page.CurrentPage,
			TotalPages:  page.TotalPages,
			TotalItems:  page.TotalItems,
			PerPage:     page.PerPage,
		},
	}
	if body.Data == nil {
		body.Data = []*entity.Record{}
	}
	if _, ok := b.interceptors[requestKey(e.Slug(), core.OperationList)]; ok {
		data, _ := json.Marshal(body)
		replaced, err := b.intercept(ctx, Request{Type: e.Slug(), Operation: core.OperationList, Parameters: parameters(r)}, data)
		if err != nil {
			writeError(w, r, "4208", err)
			return
		}
		if replaced != nil {
			writeJSON(w, r, http.StatusOK, json.RawMessage(replaced))
			return
		}
	}
	writeJSON(w, r, http.StatusOK, body)
}

func (b *Backend) read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, actor, ok := b.bindForRead(w, r)
	if !ok {
		return
	}
	p, ok := b.params(w, r, actor)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, r, "4209", fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound))
		return
	}
	q := e.Query().Where("id", "=", id)
	if p.Status != query.StatusDraft {
		q.Published(b.now())
	}
	if e.Type.IsLocalized && r.URL.Query().Get("locale") != "" {
		q.Where("locale", "=", p.Locale)
	}
	p.Filters = nil
	q, err := query.Apply(ctx, q, p, b.queryOptions)
	if err != nil {
		writeError(w, r, "4210", err)
		return
	}
	record, err := q.First(ctx)
	if err != nil {
		writeError(w, r, "4211", err)
		return
	}
	if record == nil {
		writeError(w, r, "4212", fmt.Errorf("%s %s: %w", e.Slug(), id, core.ErrNotFound))
		return
	}

	if _, ok := b.interceptors[requestKey(e.Slug(), core.OperationRead)]; ok {
		data, _ := json.Marshal(record)
		replaced, err := b.intercept(ctx, Request{Type: e.Slug(), ID: id, Operation: core.OperationRead, Parameters: parameters(r)}, data)
		if err != nil {
			writeError(w, r, "4213", err)
			return
		}
		if replaced != nil {
			writeJSON(w, r, http.StatusOK, rawResponse{Data: replaced})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, recordResponse{Data: record})
}

func (b *Backend) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, actor, ok := b.bindForWrite(w, r)
	if !ok {
		return
	}
	attributes := map[string]any{}
	if err := readBody(r, &attributes); err != nil {
		writeError(w, r, "4214", err)
		return
	}
	request := Request{Type: e.Slug(), Operation: core.OperationCreate, Parameters: parameters(r)}
	attributes, err := b.interceptAttributes(ctx, request, attributes)
	if err != nil {
		writeError(w, r, "4215", err)
		return
	}
	attributes, err = b.validator.Validate(ctx, e.Type, attributes, "")
	if err != nil {
		writeError(w, r, "4216", err)
		return
	}
	published := validation.ApplyStatus(attributes, nil, b.now())
	if e.Type.HasOwnership && actor != nil {
		attributes["user_id"] = actor.ID
	}

	record, err := e.Create(ctx, attributes)
	if err != nil {
		writeError(w, r, "4217", err)
		return
	}
	b.notify(ctx, core.OperationCreate, record)
	if published {
		b.notify(ctx, core.OperationPublish, record)
	}
	writeJSON(w, r, http.StatusCreated, recordResponse{Data: record})
}

// mayModify checks that actor owns record. Types without ownership are writable by every actor.
func (b *Backend) mayModify(w http.ResponseWriter, e *entity.Entity, actor *access.Actor, record *entity.Record) bool {
	if !b.authorizationEnabled || !e.Type.HasOwnership {
		return true
	}
	if !actor.Owns(record.OwnerID()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (b *Backend) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, actor, ok := b.bindForWrite(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	existing, err := e.FindOrFail(ctx, id)
	if err != nil {
		writeError(w, r, "4218", err)
		return
	}
	if !b.mayModify(w, e, actor, existing) {
		return
	}
	attributes := map[string]any{}
	if err := readBody(r, &attributes); err != nil {
		writeError(w, r, "4219", err)
		return
	}
	request := Request{Type: e.Slug(), ID: id, Operation: core.OperationUpdate, Parameters: parameters(r)}
	if attributes, err = b.interceptAttributes(ctx, request, attributes); err != nil {
		writeError(w, r, "4220", err)
		return
	}
	attributes, err = b.validator.Validate(ctx, e.Type, attributes, id)
	if err != nil {
		writeError(w, r, "4221", err)
		return
	}
	published := validation.ApplyStatus(attributes, existing.PublishedAt(), b.now())

	record, err := e.Update(ctx, id, attributes)
	if err != nil {
		writeError(w, r, "4222", err)
		return
	}
	b.notify(ctx, core.OperationUpdate, record)
	if published {
		b.notify(ctx, core.OperationPublish, record)
	}
	writeJSON(w, r, http.StatusOK, recordResponse{Data: record})
}

func (b *Backend) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, actor, ok := b.bindForWrite(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	existing, err := e.FindOrFail(ctx, id)
	if err != nil {
		writeError(w, r, "4223", err)
		return
	}
	if !b.mayModify(w, e, actor, existing) {
		return
	}
	if _, err := b.intercept(ctx, Request{Type: e.Slug(), ID: id, Operation: core.OperationDelete, Parameters: parameters(r)}, nil); err != nil {
		writeError(w, r, "4224", err)
		return
	}
	if err := e.Delete(ctx, id); err != nil {
		writeError(w, r, "4225", err)
		return
	}
	b.notify(ctx, core.OperationDelete, existing)
	w.WriteHeader(http.StatusNoContent)
}

// notify sends a content event. The write has committed, so failures are only logged.
func (b *Backend) notify(ctx context.Context, operation core.Operation, record *entity.Record) {
	if b.notifier == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("Error 4226: cannot marshal event payload")
		return
	}
	event := core.Event{
		Name:      operation.Event(),
		Type:      record.Entity().Slug(),
		Operation: operation,
		ID:        record.ID(),
		Payload:   payload,
	}
	if err := b.notifier.Notify(ctx, event); err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4227: cannot notify %s", event.Name)
	}
}

func parameters(r *http.Request) map[string]string {
	params := map[string]string{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}
