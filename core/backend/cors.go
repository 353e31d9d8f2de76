// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/relabs-tech/kurbisio-cms/core/logger"
)

// handleCORS answers preflight requests and adds CORS headers. Without origins
// every origin is allowed.
func (b *Backend) handleCORS(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodPost, http.MethodGet, http.MethodOptions, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "If-None-Match", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"Etag", "X-Request-ID"}),
		handlers.MaxAge(86400), // 24 hours
	)
	corsMiddleware := func(h http.Handler) http.Handler {
		wrapped := cors(h)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method, " (handled by CORS middleware)")
			}
			wrapped.ServeHTTP(w, r)
		})
	}
	b.router.Use(corsMiddleware)
}
