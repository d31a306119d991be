package httpapi

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
	"sync"
	"time"

	"home-control/internal/domain"
)

const UserHeader = "X-User-ID"

type LightController interface {
	Toggle(ctx context.Context, owner int64, room, light string) (domain.ToggleResult, error)
}

type LightLister interface {
	ListLights(ctx context.Context, owner int64) ([]domain.Light, error)
}

type StatusReader interface {
	Get(userID int64) (online, known bool)
}

type AttributeHandler interface {
	Handle(ctx context.Context, req domain.AttributeRequest, callerID int64) domain.AttributeResult
}

type FirmwareTransfer interface {
	Receive(ctx context.Context, name string, r io.Reader) (domain.FirmwareArtifact, error)
	PushForUser(ctx context.Context, userID int64) (string, error)
}

type SessionToucher interface {
	Touch(userID int64)
	ActiveUsers() []int64
}

// Deps are the services the API exposes. Metrics is optional.
type Deps struct {
	Control    LightController
	Lights     LightLister
	Status     StatusReader
	Attributes AttributeHandler
	Firmware   FirmwareTransfer
	Sessions   SessionToucher
	Metrics    http.Handler
}

type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
	RateLimit    int
	RateWindow   time.Duration
	MaxUpload    int64

	// TrustedProxies lists the proxies whose forwarding headers identify
	// the client for rate limiting.
	TrustedProxies []string
}

type Server struct {
	opts        Options
	deps        Deps
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu      sync.Mutex
	server  *http.Server
	running bool
}

func NewServer(opts Options, deps Deps, logger *slog.Logger) (*Server, error) {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 16 << 20
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	s := &Server{
		opts:        opts,
		deps:        deps,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(opts.RateLimit, opts.RateWindow),
	}
	if err := s.rateLimiter.TrustProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	limit := s.rateLimiter.Middleware
	s.mux.HandleFunc("GET /api/status", limit(s.withUser(s.handleStatus)))
	s.mux.HandleFunc("GET /api/lights", limit(s.withUser(s.handleListLights)))
	s.mux.HandleFunc("POST /api/lights/{room}/{light}/toggle", limit(s.withUser(s.handleToggle)))
	s.mux.HandleFunc("POST /api/firmware/upload", limit(s.withUser(s.handleFirmwareUpload)))
	s.mux.HandleFunc("POST /api/firmware/push", limit(s.withUser(s.handleFirmwarePush)))
	s.mux.HandleFunc("GET /ws/attributes", limit(s.withUser(s.handleAttributes)))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Metrics != nil {
		s.mux.Handle("GET "+opts.MetricsPath, deps.Metrics)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.recoverer(s.mux)
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.running = true
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.setStopped()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.setStopped()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := srv.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID int64)

// withUser reads the caller from the auth header and marks their session
// as active.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserHeader)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid user id"})
			return
		}
		if s.deps.Sessions != nil {
			s.deps.Sessions.Touch(userID)
		}
		next(w, r, userID)
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic serving request", "path", r.URL.Path, "panic", rec)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "an internal error occurred"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
