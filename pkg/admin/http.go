// Package admin exposes health, last-cycle status and metrics over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kelomina/ADGHRuleTool/pkg/cycle"
	"github.com/kelomina/ADGHRuleTool/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

// StatusSource provides the most recent cycle report.
type StatusSource interface {
	LastReport() (cycle.Report, bool)
}

type api struct {
	status StatusSource
}

type statusResponse struct {
	cycle.Report
	Errors []string `json:"errors"`
}

// BindRoutes registers the admin endpoints on r. m may be nil, in which case
// /metrics is not served.
func BindRoutes(r chi.Router, status StatusSource, m *metrics.Metrics) {
	a := &api{status: status}
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(10*time.Second))
	r.Get("/healthz", a.health)
	r.Get("/status", a.getStatus)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}
}

// NewHandler returns a router with every admin endpoint bound.
func NewHandler(status StatusSource, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	BindRoutes(r, status, m)
	return r
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (a *api) getStatus(w http.ResponseWriter, _ *http.Request) {
	report, ok := a.status.LastReport()
	if !ok {
		http.Error(w, "no cycle has run yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(statusResponse{Report: report, Errors: report.Errors()})
}

// Serve listens on addr and serves handler until ctx is done, then shuts
// the server down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, listener, handler, log)
}

// ServeListener is Serve on an existing listener.
func ServeListener(ctx context.Context, listener net.Listener, handler http.Handler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin server listening", "address", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("admin server stopped")
	return nil
}
