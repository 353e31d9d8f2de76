package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRequestID(t *testing.T) {
	router := mux.NewRouter()
	AddRequestID(router)
	var seen string
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "6f1c33f4-6f55-4f9c-a7f6-3a4d4c6b5d10")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "6f1c33f4-6f55-4f9c-a7f6-3a4d4c6b5d10", seen)
}

func TestSerializeLoggerContext(t *testing.T) {
	assert.Equal(t, "{}", string(SerializeLoggerContext(context.Background())))

	ctx, _ := ContextWithLogger(context.Background())
	ctx = ContextWithActor(ctx, "user-1")
	var values contextLoggerValues
	require.NoError(t, json.Unmarshal(SerializeLoggerContext(ctx), &values))
	assert.Equal(t, RequestIDFromContext(ctx), values.RequestID)
	assert.Equal(t, "user-1", values.Actor)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}
