// Package web serves the responder's dashboard: the live session page, its
// JSON snapshot, a plain-text health check for supervisors and the
// Prometheus registry.
//
// Every response reflects the controller state of the moment, so none of
// them may be cached.
package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gregblast-bot/Micro-Speech-Server/internal/responder"
	"github.com/gregblast-bot/Micro-Speech-Server/internal/status"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes a status.Tracker over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New builds the dashboard for tracker on addr. /metrics is mounted only when
// gatherer is non-nil.
func New(addr string, tracker *status.Tracker, gatherer prometheus.Gatherer) *Server {
	s := &Server{tracker: tracker}

	routes := map[string]http.HandlerFunc{
		"/":           s.handlePage,
		"/index.html": s.handlePage,
		"/index.json": s.handleSnapshot,
		"/healthz":    s.handleHealth,
	}
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.Handle(path, liveOnly(h))
	}
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the router, for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// liveOnly restricts h to reads and marks the response uncacheable.
func liveOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		h(w, r)
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	// "/" is the mux's catch-all.
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// handleHealth answers 503 while the link session keeps failing to start,
// and 200 otherwise. A responder still waiting for its first YES is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	stats := snap.Responder

	code := http.StatusOK
	if stats.Session == responder.SessionUninitialized && stats.SessionFailures > 0 {
		code = http.StatusServiceUnavailable
	}
	linkState := "down"
	if snap.LinkConnected {
		linkState = "up"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintf(w, "session=%s link=%s failures=%d\n", stats.Session, linkState, stats.SessionFailures)
}
