package httpserver

import (
	"net/http"
	"time"
)

// New builds the operator-facing HTTP server. No WriteTimeout: bulk repair,
// merge, and wipe requests legitimately hold the response open for minutes
// once settle delays stack up, so the budget lives in the request context.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
