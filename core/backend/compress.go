package backend

import (
	"compress/gzip"
	"net/http"

	"github.com/gorilla/handlers"
)

// handleCompression gzips or deflates responses for clients which accept it.
// Level 0 selects gzip.DefaultCompression.
func (b *Backend) handleCompression(level int) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	b.router.Use(func(h http.Handler) http.Handler {
		return handlers.CompressHandlerLevel(h, level)
	})
}
