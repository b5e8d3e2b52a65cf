// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Aman-CERP/codechat/internal/chat"
	cerrors "github.com/Aman-CERP/codechat/internal/errors"
	"github.com/Aman-CERP/codechat/internal/ratelimit"
)

// Routes.
const (
	PathAsk     = "/api/chat/ask"
	PathHealth  = "/api/chat/health"
	PathReindex = "/api/chat/reindex"
)

// maxBodyBytes bounds the ask request body.
const maxBodyBytes = 64 << 10

// Service is what the handlers need from the chat orchestrator.
type Service interface {
	Ask(ctx context.Context, q chat.Query) (*chat.Response, error)
	Health(ctx context.Context) chat.Health
	Reindex(ctx context.Context) (*chat.ReindexResult, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// Global guards every route except ask, whose limiting happens inside
	// the service. Nil disables it.
	Global ratelimit.Limiter
}

// Server serves the chat API.
type Server struct {
	svc    Service
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
	now    func() time.Time
}

// New creates a server for svc.
func New(svc Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: logger,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	s.mux.HandleFunc("POST "+PathAsk, s.handleAsk)
	s.mux.Handle("GET "+PathHealth, s.limited(http.HandlerFunc(s.handleHealth)))
	s.mux.Handle("POST "+PathReindex, s.limited(http.HandlerFunc(s.handleReindex)))
	return s
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// ListenAndServe serves on opts.Addr until ctx is cancelled, then drains
// in-flight requests for up to ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("server_shutdown", slog.Duration("timeout", s.opts.ShutdownTimeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, cerrors.ValidationError("Request body is too large or unreadable."))
		return
	}
	if err := validateAsk(body); err != nil {
		s.writeError(w, err)
		return
	}
	var req askRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, cerrors.ValidationError("Request body must be a JSON object."))
		return
	}

	resp, err := s.svc.Ask(r.Context(), chat.Query{
		Question: req.Question,
		Identity: Identity(r, s.opts.TrustProxy),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health(r.Context()))
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Reindex(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("reindexed",
		slog.Int("files", res.Files),
		slog.Int("chunks", res.Chunks),
		slog.String("version", res.Version))
	writeJSON(w, http.StatusOK, res)
}

// limited applies the global limiter.
func (s *Server) limited(next http.Handler) http.Handler {
	if s.opts.Global == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.opts.Global.TryAcquire(r.Context(), Identity(r, s.opts.TrustProxy))
		if err != nil {
			s.writeError(w, cerrors.New(cerrors.CodeRequestCancelled, "Request was cancelled.", err))
			return
		}
		if !d.Allowed() {
			s.writeError(w, cerrors.RateLimitError(d.RetryAfter).WithDetail("limiter", d.Limiter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := cerrors.HTTPStatus(err)
	body := cerrors.NewAPIError(err, s.now())
	if body.Error.RetryAfter != nil {
		w.Header().Set("Retry-After", strconv.Itoa(*body.Error.RetryAfter))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request_failed", cerrors.LogAttrs(err)...)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}
