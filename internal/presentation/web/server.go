// Package web exposes the REST management API and mounts the JSON-RPC
// endpoint at POST /. Everything here is a thin translation layer over the
// synchronizer service; no business rules live in handlers.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"smart-mcp/internal/domain"
	"smart-mcp/internal/presentation/mcp"
	"smart-mcp/internal/semsync"
)

type Server struct {
	svc    *semsync.Service
	rpc    *mcp.Dispatcher
	logger *slog.Logger
}

func New(svc *semsync.Service, rpc *mcp.Dispatcher) *Server {
	return &Server{
		svc:    svc,
		rpc:    rpc,
		logger: slog.Default().With("component", "web"),
	}
}

func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	for _, kind := range []domain.Kind{domain.KindPrompt, domain.KindResource, domain.KindTool} {
		prefix := "/api/v1/" + string(kind) + "s"
		mux.HandleFunc("GET "+prefix, s.handleList(kind))
		mux.HandleFunc("POST "+prefix, s.handleCreate(kind))
		mux.HandleFunc("GET "+prefix+"/{id}", s.handleGet(kind))
		mux.HandleFunc("PUT "+prefix+"/{id}", s.handleUpdate(kind))
		mux.HandleFunc("DELETE "+prefix+"/{id}", s.handleDelete(kind))
	}
	mux.HandleFunc("GET /api/v1/search", s.handleSearch)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.Handle("POST /{$}", s.rpc)

	return mux
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         "smart-mcp",
		"protocol":     "mcp",
		"version":      mcp.ProtocolVersion,
		"capabilities": map[string]any{"prompts": true, "resources": true, "tools": true},
		"endpoints": map[string]any{
			"json_rpc": "/",
			"api":      "/api/v1",
			"health":   "/health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"index_ready": s.svc.Ready(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps domain sentinels to HTTP statuses. Unknown errors are
// reported as 500 with a generic detail so internals stay out of responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": trimErrDetail(err)})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "not found"})
	case errors.Is(err, domain.ErrSearchNotReady):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"detail": "search index not ready"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "internal error"})
	}
}

func trimErrDetail(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
}
