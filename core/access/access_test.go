package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

const actorID = "3f1c5a0e-6d2b-4e7a-9a51-2a8f5b6c7d01"

func TestActor_Roles(t *testing.T) {
	var anonymous *Actor
	assert.False(t, anonymous.IsAdmin())
	assert.False(t, anonymous.Owns(actorID))

	user := &Actor{ID: actorID}
	assert.True(t, user.Owns(actorID))
	assert.False(t, user.Owns("other"))
	assert.False(t, user.Owns(""))

	admin := &Actor{ID: "a", Roles: []string{RoleAdmin}}
	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.Owns(actorID))
}

func TestToken_RoundTrip(t *testing.T) {
	token, err := IssueToken(secret, Actor{ID: actorID, Roles: []string{RoleAdmin}}, time.Hour)
	require.NoError(t, err)

	actor, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, actorID, actor.ID)
	assert.True(t, actor.IsAdmin())

	_, err = ParseToken([]byte("other"), token)
	assert.Error(t, err)

	expired, err := IssueToken(secret, Actor{ID: actorID}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.Error(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(secret, noSubject)
	assert.Error(t, err)
}

func router() *mux.Router {
	r := mux.NewRouter()
	r.Use(NewJwtMiddelware(secret))
	HandleAuthorizationRoute(r)
	return r
}

func TestMiddleware(t *testing.T) {
	r := router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorization", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	token, err := IssueToken(secret, Actor{ID: actorID}, time.Hour)
	require.NoError(t, err)

	for i := 0; i < 2; i++ { // second round hits the token cache
		req := httptest.NewRequest(http.MethodGet, "/authorization", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var actor Actor
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &actor))
		assert.Equal(t, actorID, actor.ID)
	}

	req := httptest.NewRequest(http.MethodGet, "/authorization", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/authorization", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_CachedTokenExpires(t *testing.T) {
	r := router()
	token, err := IssueToken(secret, Actor{ID: actorID}, 2*time.Second)
	require.NoError(t, err)
	_, expiresAt, err := parseToken(secret, token)
	require.NoError(t, err)

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/authorization", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, get())

	time.Sleep(time.Until(expiresAt) + 50*time.Millisecond)
	assert.Equal(t, http.StatusUnauthorized, get())
}
