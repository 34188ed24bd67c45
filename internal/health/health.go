// ABOUTME: Liveness and readiness HTTP endpoints plus Prometheus metrics
// ABOUTME: Readiness probes the gateway directly; liveness reflects the shutdown flag

package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/gateway-sentry/internal/status"
)

// Prober is the read-only status poll the readiness endpoint performs.
type Prober interface {
	Status(ctx context.Context) status.Status
}

// Server exposes /livez, /readyz and /metrics. Liveness fails once a
// protective shutdown has been requested so orchestrators stop routing to a
// daemon that will not authenticate again. Readiness reflects the live
// gateway session state.
type Server struct {
	addr     string
	prober   Prober
	metrics  *Metrics
	logger   *slog.Logger
	shutdown atomic.Bool

	httpServer *http.Server
}

// NewServer builds the health server. metrics may be nil to serve without
// a /metrics endpoint.
func NewServer(addr string, prober Prober, metrics *Metrics, logger *slog.Logger) *Server {
	s := &Server{
		addr:    addr,
		prober:  prober,
		metrics: metrics,
		logger:  logger.With("component", "health"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", s.handleLivez)
	mux.HandleFunc("/readyz", s.handleReadyz)
	if metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// RequestShutdown flips liveness to failing. One-way; there is no reset.
func (s *Server) RequestShutdown() {
	s.shutdown.Store(true)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	if s.shutdown.Load() {
		http.Error(w, "shutdown requested", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	st := s.prober.Status(r.Context())
	if !st.Healthy() {
		http.Error(w, string(st.Classify()), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, string(st.Classify()))
}
