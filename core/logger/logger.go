package logger

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader is the header carrying the request id in and out of the server
const RequestIDHeader = "X-Request-ID"

type contextLoggerValues struct {
	RequestID string `json:"requestID"`
	Actor     string `json:"actor,omitempty"`
}

type contextKeyRequestLoggerType struct{}

var contextKeyRequestLogger = &contextKeyRequestLoggerType{}

const (
	requestIDLoggerKey string = "requestID"
	actorLoggerKey     string = "actor"
)

// InitLogger sets up the custom time formatter for all log statements.
func InitLogger(logLevel logrus.Level) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02 15:04:05"
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(logLevel)
}

// ParseLevel parses a level name and falls back to info
func ParseLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

// AddRequestID installs a middleware which adds a request logger to every request context.
// An incoming X-Request-ID is reused, otherwise a new id is generated. The id is echoed in the response.
func AddRequestID(router *mux.Router) {
	reqID := func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			rlog := logrus.WithFields(logrus.Fields{
				requestIDLoggerKey: id,
				"method":           r.Method,
				"path":             r.URL.Path,
			})
			w.Header().Set(RequestIDHeader, id)
			ctx := context.WithValue(r.Context(), contextKeyRequestLogger, rlog)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	router.Use(reqID)
}

// Default returns a logger without a request ID.
func Default() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// ContextWithLogger returns a new context with a logger if the given context has no logger yet. If
// the context already has a logger the given context will be returned.
func ContextWithLogger(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	} else if rlog := loggerFromContext(ctx); rlog != nil {
		return ctx, rlog
	}
	rlog := logrus.WithField(requestIDLoggerKey, uuid.NewString())
	return context.WithValue(ctx, contextKeyRequestLogger, rlog), rlog
}

func loggerFromContext(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	rlog, _ := ctx.Value(contextKeyRequestLogger).(*logrus.Entry)
	return rlog
}

// FromContext returns the logger from the context. If the context does not have a logger
// the default logger is returned.
func FromContext(ctx context.Context) *logrus.Entry {
	if rlog := loggerFromContext(ctx); rlog != nil {
		return rlog
	}
	return Default()
}

// ContextWithActor returns a new context whose logger carries the acting user id
func ContextWithActor(ctx context.Context, actor string) context.Context {
	ctx, rlog := ContextWithLogger(ctx)
	return context.WithValue(ctx, contextKeyRequestLogger, rlog.WithField(actorLoggerKey, actor))
}

// RequestIDFromContext returns the request id for the given context.
func RequestIDFromContext(ctx context.Context) string {
	return loggerValues(ctx).RequestID
}

// SerializeLoggerContext returns a json representation of the request id and actor in ctx.
// Notifiers attach it to outgoing events so consumers can correlate them.
func SerializeLoggerContext(ctx context.Context) []byte {
	values := loggerValues(ctx)
	if values.RequestID == "" {
		return []byte("{}")
	}
	res, err := json.Marshal(values)
	if err != nil {
		return []byte("{}")
	}
	return res
}

func loggerValues(ctx context.Context) contextLoggerValues {
	var values contextLoggerValues
	rlog := loggerFromContext(ctx)
	if rlog == nil {
		return values
	}
	values.RequestID, _ = rlog.Data[requestIDLoggerKey].(string)
	values.Actor, _ = rlog.Data[actorLoggerKey].(string)
	return values
}
