// Package status serves the outcome of the most recent pass over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/botzhub/botstatus/internal/logger"
	"github.com/botzhub/botstatus/internal/monitor"
)

// Holder keeps the latest pass summary. It is safe for concurrent use.
type Holder struct {
	mu      sync.RWMutex
	summary *monitor.Summary
}

// Set replaces the latest summary.
func (h *Holder) Set(s *monitor.Summary) {
	h.mu.Lock()
	h.summary = s
	h.mu.Unlock()
}

// Get returns the latest summary, or nil before the first pass.
func (h *Holder) Get() *monitor.Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.summary
}

// NewRouter returns the HTTP routes:
//
//	GET /healthz  liveness, always "ok"
//	GET /status   latest summary as JSON, 204 before the first pass
func NewRouter(h *Holder) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		s := h.Get()
		if s == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, s)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the status HTTP server.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer returns a server for h listening on addr.
func NewServer(addr string, h *Holder, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log.With("component", "status_server"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	s.logger.Info("Status server stopped")
	return nil
}
