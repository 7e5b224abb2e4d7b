package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rodgon/aegis/pkg/queue"
)

// HealthChecker reports per-component liveness, satisfied by
// supervisor.Supervisor's RestartCount (a component that keeps
// restarting but never stops is still "up" — restart storms are
// surfaced as a metric, not a failed health check).
type HealthChecker interface {
	RestartCount(name string) int
}

// QueueSnapshot is the subset of queue.Queue the debug endpoint needs.
type QueueSnapshot interface {
	Stats() queue.Stats
}

// Server exposes the operator-facing HTTP surface: /metrics
// (Prometheus), /healthz (liveness), and /debug/queue (a JSON queue
// snapshot).
// Built on the earlier MetricsServer, replacing its bare
// net/http.ListenAndServe with a chi.Router — the pack's own
// go-chi/chi/v5 dependency, used for exactly this kind of small
// JSON+metrics admin surface.
type Server struct {
	addr     string
	router   chi.Router
	srv      *http.Server
	health   HealthChecker
	watchers []string // component names probed by /healthz
	queue    QueueSnapshot
}

// NewServer builds the HTTP server. health and q may be nil: with no
// health, /healthz answers 200 with status "unknown"; with no q,
// /debug/queue answers 503 "queue unavailable".
func NewServer(addr string, exporter *Exporter, health HealthChecker, componentNames []string, q QueueSnapshot) *Server {
	s := &Server{addr: addr, health: health, watchers: componentNames, queue: q}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(exporter.Registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/debug/queue", s.handleDebugQueue)
	s.router = r
	return s
}

// Start runs the HTTP server, blocking until it errors or is shut
// down via Shutdown.
func (s *Server) Start() error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router}
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// StartAsync runs Start on its own goroutine, mirroring the earlier
// MetricsServer.StartAsync.
func (s *Server) StartAsync(onError func(error)) {
	go func() {
		if err := s.Start(); err != nil && onError != nil {
			onError(err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"unknown"}`))
		return
	}
	restarts := make(map[string]int, len(s.watchers))
	for _, name := range s.watchers {
		restarts[name] = s.health.RestartCount(name)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"restarts": restarts,
	})
}

func (s *Server) handleDebugQueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		http.Error(w, `{"error":"queue unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.queue.Stats())
}
