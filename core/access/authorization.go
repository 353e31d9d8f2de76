/*Package access provides utilities for access control

An Actor is the authenticated caller of a request. Actors are added to a
request context with

  ctx = actor.ContextWithActor(ctx)

and retrieved with

  actor := ActorFromContext(ctx)

Requests without a valid bearer token have no actor. Those may only read
content types which are public.
*/
package access

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyActor contextKey = "_actor_"
)

// RoleAdmin is the role which may manage schemas and bypass ownership
const RoleAdmin = "admin"

// Actor is the authenticated caller
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole returns true if the actor carries the requested role
func (a *Actor) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin returns true for actors with the admin role
func (a *Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin)
}

// Owns returns true if the actor may modify a record owned by ownerID.
// Admins own everything, records without owner are owned by admins only.
func (a *Actor) Owns(ownerID string) bool {
	if a == nil {
		return false
	}
	return a.IsAdmin() || (ownerID != "" && a.ID == ownerID)
}

// ContextWithActor returns a new context with this actor added to it
func (a *Actor) ContextWithActor(ctx context.Context) context.Context {
	ctx = logger.ContextWithActor(ctx, a.ID)
	return context.WithValue(ctx, contextKeyActor, a)
}

// ActorFromContext retrieves the actor from the context, or nil for anonymous requests
func ActorFromContext(ctx context.Context) *Actor {
	a, ok := ctx.Value(contextKeyActor).(*Actor)
	if ok {
		return a
	}
	return nil
}

// HandleAuthorizationRoute adds a route /authorization GET to the router
//
// The route returns the actor for the provided bearer token.
func HandleAuthorizationRoute(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("authorization")
	rlog.Debugln("  handle route: /authorization GET")
	router.HandleFunc("/authorization", func(w http.ResponseWriter, r *http.Request) {
		actor := ActorFromContext(r.Context())
		if actor == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonData, _ := json.MarshalIndent(actor, "", " ")
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	}).Methods(http.MethodGet)
}
