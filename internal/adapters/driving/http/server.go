package http

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/toolbridge/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Post-authorization landing page; empty means answer the callback with JSON
	postAuthRedirectURL string
	secureCookies       bool
	corsAllowedOrigins  []string

	// Services
	authService   driving.AuthService
	oauthService  driving.OAuthService
	tokenService  driving.TokenService
	toolService   driving.ToolService
	tenantService driving.TenantConfigService

	// Infrastructure
	metrics     http.Handler
	db          Pinger // PostgreSQL health check
	redisClient Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host                string
	Port                int
	Version             string
	PostAuthRedirectURL string
	SecureCookies       bool
	CORSAllowedOrigins  []string

	// Logger receives request and panic logs; nil uses slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Services groups the driving ports the server exposes.
type Services struct {
	Auth   driving.AuthService
	OAuth  driving.OAuthService
	Token  driving.TokenService
	Tools  driving.ToolService
	Tenant driving.TenantConfigService
}

// NewServer creates a new HTTP server.
// metrics, db and redisClient may be nil.
func NewServer(cfg Config, svc Services, metrics http.Handler, db Pinger, redisClient Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:              http.NewServeMux(),
		version:             cfg.Version,
		logger:              logger,
		postAuthRedirectURL: cfg.PostAuthRedirectURL,
		secureCookies:       cfg.SecureCookies,
		corsAllowedOrigins:  cfg.CORSAllowedOrigins,
		authService:         svc.Auth,
		oauthService:        svc.OAuth,
		tokenService:        svc.Token,
		toolService:         svc.Tools,
		tenantService:       svc.Tenant,
		metrics:             metrics,
		db:                  db,
		redisClient:         redisClient,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in recovery, logging and CORS middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if len(s.corsAllowedOrigins) > 0 {
		h = NewCORSMiddleware(s.corsAllowedOrigins).Handler(h)
	}
	h = NewLoggingMiddleware(s.logger).Handler(h)
	return NewRecoveryMiddleware(s.logger).Handler(h)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}

	// OAuth flow. The callback is reached by the user's browser from the
	// provider and carries no bearer token.
	s.router.Handle("POST /api/v1/oauth/authorize", protected(s.handleAuthorize))
	s.router.HandleFunc("GET /api/v1/oauth/callback", s.handleOAuthCallback)

	// Connection management
	s.router.Handle("GET /api/v1/connection", protected(s.handleGetConnection))
	s.router.Handle("DELETE /api/v1/connection", protected(s.handleDisconnect))
	s.router.Handle("GET /api/v1/connection/config", protected(s.handleGetTenantConfig))
	s.router.Handle("PUT /api/v1/connection/config", protected(s.handleSaveTenantConfig))
	s.router.Handle("DELETE /api/v1/connection/config", protected(s.handleDeleteTenantConfig))

	// Tools
	s.router.Handle("GET /api/v1/tools", protected(s.handleListTools))
	s.router.Handle("POST /api/v1/tools/{name}/invoke", protected(s.handleInvokeTool))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
