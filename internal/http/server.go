// Package http exposes sessions over a JSON API and streams ViewState
// publications over WebSocket.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/session"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// Deps are the collaborators of the server. Sheets and Health are optional.
type Deps struct {
	Sessions  *session.Registry
	Sheets    *export.SheetsExporter
	Health    func(context.Context) error
	Logger    *log.Logger
	RateLimit ratelimit.Config
	// TrustedProxies are CIDRs allowed to set forwarding headers, on top of
	// loopback and private networks.
	TrustedProxies []string
	// SyncTimeout bounds how long a request waits for a freshly resumed
	// session to load its transactions.
	SyncTimeout time.Duration
}

type Server struct {
	http.Server
	sessions    *session.Registry
	sheets      *export.SheetsExporter
	health      func(context.Context) error
	logger      *log.Logger
	limiter     *ratelimit.Limiter
	tracer      *trace.Middleware
	validate    *validator.Validate
	upgrader    websocket.Upgrader
	syncTimeout time.Duration

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	clientIP, err := security.NewClientIP(deps.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	if deps.SyncTimeout <= 0 {
		deps.SyncTimeout = 5 * time.Second
	}

	s := &Server{
		sessions:    deps.Sessions,
		sheets:      deps.Sheets,
		health:      deps.Health,
		logger:      logger,
		limiter:     ratelimit.NewLimiter(deps.RateLimit, logger),
		tracer:      trace.NewMiddleware(logger, clientIP.Extract),
		validate:    newValidator(),
		syncTimeout: deps.SyncTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Bearer tokens authenticate the stream, not cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	limited := s.limiter.Middleware(clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
	})

	mux.Handle("POST /auth/signup", limited(http.HandlerFunc(s.handleSignUp)))
	mux.Handle("POST /auth/signin", limited(http.HandlerFunc(s.handleSignIn)))
	mux.HandleFunc("POST /auth/signout", s.authed(s.handleSignOut))

	mux.HandleFunc("GET /view", s.authed(s.handleView))
	mux.HandleFunc("GET /view/stream", s.authed(s.handleViewStream))
	mux.HandleFunc("POST /view/retry", s.authed(s.handleRetry))

	mux.HandleFunc("POST /transactions", s.authed(s.handleAddTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.authed(s.handleEditTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.authed(s.handleDeleteTransaction))
	mux.HandleFunc("POST /transactions/{id}/edit", s.authed(s.handleBeginEdit))
	mux.HandleFunc("DELETE /edit", s.authed(s.handleCancelEdit))

	mux.HandleFunc("GET /export.csv", s.authed(s.handleExportCSV))
	mux.HandleFunc("GET /export.xlsx", s.authed(s.handleExportXLSX))
	mux.HandleFunc("POST /export/sheets", s.authed(s.handleExportSheets))

	mux.HandleFunc("GET /prefs", s.handleGetPrefs)
	mux.HandleFunc("PUT /prefs", s.handlePutPrefs)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = s.tracer.Handler(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Limiter is exposed so the caller can run its janitor.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// Shutdown stops accepting requests and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
		s.sessions.Close()
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(ctx, "Health check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Active(),
	})
}
