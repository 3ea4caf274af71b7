package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/secureai/privacy-shield/internal/audit"
	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/logger"
	"github.com/secureai/privacy-shield/internal/redaction"
	"github.com/secureai/privacy-shield/internal/store"
	"github.com/secureai/privacy-shield/internal/web"
	"github.com/secureai/privacy-shield/internal/websocket"
	"go.uber.org/zap"
)

// Server is the HTTP face of the redaction engine: the direct /v1 API, the
// redacting reverse proxy for LLM providers, and the monitoring surface.
type Server struct {
	config *config.Config
	logger *logger.Logger
	engine *redaction.Engine
	router *mux.Router
	server *http.Server
	wsHub  *websocket.Hub

	// Optional persistence; nil when disabled in config.
	scopeCache   *store.ScopeCache
	mappingStore *store.MappingStore
	auditWriter  *audit.Writer

	rateLimiter *clientRateLimiter
	startedAt   time.Time
}

// Options carries the optional backends the server wires in when configured.
type Options struct {
	ScopeCache   *store.ScopeCache
	MappingStore *store.MappingStore
	AuditWriter  *audit.Writer
}

// New creates a server around an existing redaction engine.
func New(cfg *config.Config, log *logger.Logger, engine *redaction.Engine, opts Options) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("redaction engine is required")
	}

	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastRedactions:  cfg.WebSocket.Events.BroadcastRedactions,
		BroadcastRequests:    cfg.WebSocket.Events.BroadcastRequests,
		BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
		MaxConnections:       cfg.WebSocket.MaxConnections,
	}, log.WithComponent("websocket").Logger)

	server := &Server{
		config:       cfg,
		logger:       log.WithComponent("server"),
		engine:       engine,
		router:       mux.NewRouter(),
		wsHub:        wsHub,
		scopeCache:   opts.ScopeCache,
		mappingStore: opts.MappingStore,
		auditWriter:  opts.AuditWriter,
		startedAt:    time.Now(),
	}

	if cfg.Security.RateLimit.Enabled {
		server.rateLimiter = newClientRateLimiter(cfg.Security.RateLimit)
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	if s.rateLimiter != nil {
		s.router.Use(s.rateLimitMiddleware)
	}

	// Direct redaction API
	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/redact", s.handleRedact).Methods("POST")
	api.HandleFunc("/scopes/{id}/mappings", s.handleScopeMappings).Methods("GET")
	api.HandleFunc("/scopes/{id}", s.handleCloseScope).Methods("DELETE")

	// Operational endpoints
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Dashboard and its event feed
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	// Redacting reverse proxies for LLM providers
	for prefix, handler := range map[string]http.HandlerFunc{
		"/openai":    s.handleOpenAIProxy,
		"/anthropic": s.handleAnthropicProxy,
		"/ollama":    s.handleOllamaProxy,
	} {
		sub := s.router.PathPrefix(prefix).Subrouter()
		sub.Use(s.redactionMiddleware)
		sub.PathPrefix("/").HandlerFunc(handler)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting privacy shield server",
		zap.Int("port", s.config.Server.Port),
		zap.String("upstream_openai", s.config.Upstream.OpenAI),
		zap.String("upstream_anthropic", s.config.Upstream.Anthropic),
		zap.String("upstream_ollama", s.config.Upstream.Ollama),
	)

	go s.wsHub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping privacy shield server")
	return s.server.Shutdown(ctx)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ensureScope hydrates a scope from the cache or the durable store when the
// engine has no memo table for it. Cache wins; the database is the fallback.
// Restore failures are logged and skipped, the scope then starts empty.
func (s *Server) ensureScope(ctx context.Context, scopeID string) {
	if _, ok := s.engine.LookupScope(scopeID); ok {
		return
	}

	if s.scopeCache != nil {
		snap, found, err := s.scopeCache.Load(ctx, scopeID)
		if err != nil {
			s.logger.Warn("Scope cache lookup failed",
				zap.String("scope_id", scopeID), zap.Error(err))
		} else if found {
			s.engine.RestoreScope(snap)
			return
		}
	}

	if s.mappingStore != nil {
		snap, found, err := s.mappingStore.LoadSnapshot(ctx, scopeID)
		if err != nil {
			s.logger.Warn("Scope store lookup failed",
				zap.String("scope_id", scopeID), zap.Error(err))
		} else if found {
			s.engine.RestoreScope(snap)
		}
	}
}

// persistScope writes the scope's current snapshot to the configured backends.
// Runs after redaction calls; failures never affect the response.
func (s *Server) persistScope(scopeID string) {
	if s.scopeCache == nil && s.mappingStore == nil {
		return
	}

	scope, ok := s.engine.LookupScope(scopeID)
	if !ok {
		return
	}
	snap := scope.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.scopeCache != nil {
		if err := s.scopeCache.Save(ctx, snap); err != nil {
			s.logger.Warn("Failed to cache scope snapshot",
				zap.String("scope_id", scopeID), zap.Error(err))
		}
	}
	if s.mappingStore != nil {
		if err := s.mappingStore.SaveSnapshot(ctx, snap); err != nil {
			s.logger.Warn("Failed to persist scope snapshot",
				zap.String("scope_id", scopeID), zap.Error(err))
		}
	}
}
