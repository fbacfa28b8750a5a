// Package server exposes conversations over HTTP and WebSocket.
//
// REST routes manage sessions, their messages and uploaded documents. A
// WebSocket at /ws carries chat turns and the progress events they emit.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smallnest/researchchat/conversation"
	"github.com/smallnest/researchchat/log"
	"github.com/smallnest/researchchat/metrics"
)

// Settings are the model settings reported by /api/stats.
type Settings struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	RAGEnabled      bool    `json:"rag_enabled"`
	ConfirmResearch bool    `json:"confirm_research"`
}

// Server routes requests to a conversation registry.
type Server struct {
	registry *conversation.Registry
	metrics  *metrics.Metrics
	logger   log.Logger

	uploadDir      string
	maxUpload      int64
	eventBuffer    int
	allowedOrigins []string
	settings       Settings
	started        time.Time

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics sets the collectors and exposes them on /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(s *Server) { s.logger = l } }

// WithUploads sets where uploads are kept and their size limit.
func WithUploads(dir string, maxSize int64) Option {
	return func(s *Server) {
		s.uploadDir = dir
		s.maxUpload = maxSize
	}
}

// WithEventBuffer sets the per-connection event queue size.
func WithEventBuffer(n int) Option { return func(s *Server) { s.eventBuffer = n } }

// WithAllowedOrigins sets the accepted browser origins. "*" accepts all.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithSettings sets the settings reported by /api/stats.
func WithSettings(st Settings) Option { return func(s *Server) { s.settings = st } }

// New creates a server for registry.
func New(registry *conversation.Registry, opts ...Option) *Server {
	s := &Server{
		registry:       registry,
		logger:         log.GetDefaultLogger(),
		uploadDir:      "uploads",
		maxUpload:      50 << 20,
		eventBuffer:    256,
		allowedOrigins: []string{"*"},
		started:        time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Patch("/", s.handleRenameSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/messages", s.handleMessages)
			r.Get("/stats", s.handleSessionStats)
			r.Post("/documents", s.handleUpload)
			r.Get("/documents", s.handleListDocuments)
			r.Delete("/documents/{docID}", s.handleDeleteDocument)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// WebSocket turns can run for minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range s.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
