// Package httpserver exposes the exporter's Prometheus metrics and a small
// operator-facing homepage over HTTP (spec.md §4.5, §6).
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the chi.Router serving "/" (a static homepage) and
// "/metrics" (a promhttp handler against reg).
func NewRouter(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", handleIndex)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

// Server wraps the configured router and the net/http.Server bound to it.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr.
func New(addr string, reg *prometheus.Registry) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: NewRouter(reg),
		},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down, per
// http.Server's usual contract (returns http.ErrServerClosed on a clean
// Shutdown).
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>lmetrics-exporter</title></head>
<body>
<h1>lmetrics-exporter</h1>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`
