package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/secureai/privacy-shield/internal/audit"
	"github.com/secureai/privacy-shield/internal/redaction"
	"github.com/secureai/privacy-shield/internal/websocket"
	"go.uber.org/zap"
)

const version = "0.1.0"

// RedactRequest is the body of POST /v1/redact. UserID and OrganizationID
// are accepted for client compatibility and carried into logs only; scoping
// is by session.
type RedactRequest struct {
	Content        string `json:"content"`
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// RedactResponse is the success body of POST /v1/redact.
type RedactResponse struct {
	Success      bool               `json:"success"`
	Redacted     string             `json:"redacted_content"`
	Entities     []redaction.Entity `json:"detected_entities"`
	SessionID    string             `json:"session_id"`
	ProcessingMS float64            `json:"processing_ms"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleRedact redacts the submitted content within the request's session
// scope and returns the full entity report.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req RedactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.ensureScope(r.Context(), req.SessionID)

	report, err := s.engine.Redact(req.Content, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, redaction.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, "content is empty")
		case errors.Is(err, redaction.ErrInvalidScope):
			writeError(w, http.StatusBadRequest, "session_id is required")
		default:
			s.logger.Error("Redaction failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "redaction failed")
		}
		return
	}

	if len(report.Entities) > 0 {
		s.logger.Debug("API redaction served",
			zap.String("session_id", req.SessionID),
			zap.String("user_id", req.UserID),
			zap.String("organization_id", req.OrganizationID),
			zap.Int("entities", len(report.Entities)))
	}

	go s.persistScope(req.SessionID)
	s.broadcastRedaction(r, report, "api")
	s.recordAudit(r, report, "api")

	writeJSON(w, http.StatusOK, RedactResponse{
		Success:      true,
		Redacted:     report.Redacted,
		Entities:     report.Entities,
		SessionID:    report.ScopeID,
		ProcessingMS: report.ProcessingMS,
	})
}

// handleScopeMappings returns the memoized entity mappings of a scope. The
// mask keys it exposes are canonical entity values, so this endpoint is for
// operator debugging, not general consumption.
func (s *Server) handleScopeMappings(w http.ResponseWriter, r *http.Request) {
	scopeID := mux.Vars(r)["id"]

	s.ensureScope(r.Context(), scopeID)

	scope, ok := s.engine.LookupScope(scopeID)
	if !ok {
		writeError(w, http.StatusNotFound, "scope not found")
		return
	}

	writeJSON(w, http.StatusOK, scope.Snapshot())
}

// handleCloseScope discards a scope's memo table everywhere: engine, cache,
// and durable store. Tokens assigned in the scope are forgotten.
func (s *Server) handleCloseScope(w http.ResponseWriter, r *http.Request) {
	scopeID := mux.Vars(r)["id"]

	s.engine.CloseScope(scopeID)

	if s.scopeCache != nil {
		if err := s.scopeCache.Delete(r.Context(), scopeID); err != nil {
			s.logger.Warn("Failed to evict cached scope",
				zap.String("scope_id", scopeID), zap.Error(err))
		}
	}
	if s.mappingStore != nil {
		if err := s.mappingStore.DeleteScope(r.Context(), scopeID); err != nil {
			s.logger.Warn("Failed to delete persisted scope",
				zap.String("scope_id", scopeID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"scope_id": scopeID,
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "privacy-shield",
		"version":           version,
		"redaction_enabled": s.config.Redaction.Enabled,
		"detectors":         s.engine.Detector().EnabledTypes(),
		"cache_enabled":     s.scopeCache != nil,
		"store_enabled":     s.mappingStore != nil,
		"audit_enabled":     s.auditWriter != nil,
	})
}

// handleStats aggregates counters from the engine and every wired backend.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"engine":    s.engine.Stats(),
		"websocket": s.wsHub.GetStats(),
		"uptime":    time.Since(s.startedAt).String(),
	}

	if s.scopeCache != nil {
		if cacheStats, err := s.scopeCache.GetStats(r.Context()); err == nil {
			stats["cache"] = cacheStats
		}
	}
	if s.mappingStore != nil {
		if storeStats, err := s.mappingStore.GetStats(r.Context()); err == nil {
			stats["store"] = storeStats
		}
	}
	if s.auditWriter != nil {
		stats["audit"] = s.auditWriter.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleOpenAIProxy handles requests to the OpenAI API
func (s *Server) handleOpenAIProxy(w http.ResponseWriter, r *http.Request) {
	s.proxyTo(w, r, s.config.Upstream.OpenAI, "/openai", "openai")
}

// handleAnthropicProxy handles requests to the Anthropic API
func (s *Server) handleAnthropicProxy(w http.ResponseWriter, r *http.Request) {
	s.proxyTo(w, r, s.config.Upstream.Anthropic, "/anthropic", "anthropic")
}

// handleOllamaProxy handles requests to a local Ollama instance
func (s *Server) handleOllamaProxy(w http.ResponseWriter, r *http.Request) {
	s.proxyTo(w, r, s.config.Upstream.Ollama, "/ollama", "ollama")
}

// proxyTo strips the provider prefix and forwards the (already redacted)
// request to the upstream.
func (s *Server) proxyTo(w http.ResponseWriter, r *http.Request, upstream, prefix, provider string) {
	target, err := url.Parse(upstream)
	if err != nil {
		s.logger.Error("Failed to parse upstream URL",
			zap.String("provider", provider), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}

	requestID := getRequestID(r.Context())
	logger := s.logger.WithRequestID(requestID)

	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host

		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "Privacy-Shield/"+version)
		}

		logger.Debug("Proxying request",
			zap.String("provider", provider),
			zap.String("target_url", req.URL.String()),
			zap.String("method", req.Method),
		)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Proxy error",
			zap.String("provider", provider),
			zap.Error(err),
		)
		http.Error(w, fmt.Sprintf("Proxy error: %v", err), http.StatusBadGateway)
	}

	proxy.Transport = &http.Transport{
		ResponseHeaderTimeout: s.config.Upstream.Timeout,
	}

	start := time.Now()
	proxy.ServeHTTP(w, r)

	logger.Info("Request proxied",
		zap.String("provider", provider),
		zap.Duration("upstream_duration", time.Since(start)),
	)
}

// broadcastRedaction publishes a redaction event to monitoring clients. Only
// entity type counts and timing leave the engine; never the text.
func (s *Server) broadcastRedaction(r *http.Request, report *redaction.Report, source string) {
	if len(report.Entities) == 0 {
		return
	}

	counts := make(map[string]int)
	for _, e := range report.Entities {
		counts[string(e.Type)]++
	}

	requestID := getRequestID(r.Context())
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.RedactionEvent{
			RequestID:     requestID,
			ScopeID:       report.ScopeID,
			Source:        source,
			ClientIP:      getClientIP(r),
			EntityCounts:  counts,
			TotalEntities: len(report.Entities),
			ProcessingMS:  report.ProcessingMS,
		},
	})
}

// recordAudit appends one audit trail record for a redaction pass.
func (s *Server) recordAudit(r *http.Request, report *redaction.Report, source string) {
	if s.auditWriter == nil {
		return
	}

	types := make([]string, 0, 4)
	seen := make(map[string]bool)
	for _, e := range report.Entities {
		if !seen[string(e.Type)] {
			seen[string(e.Type)] = true
			types = append(types, string(e.Type))
		}
	}

	rec := audit.Record{
		Timestamp:    time.Now().UnixMilli(),
		RequestID:    getRequestID(r.Context()),
		ScopeID:      report.ScopeID,
		Source:       source,
		EntityCount:  int32(len(report.Entities)),
		EntityTypes:  strings.Join(types, ","),
		TextBytes:    int64(len(report.Original)),
		ProcessingMS: report.ProcessingMS,
	}
	if err := s.auditWriter.Append(rec); err != nil {
		s.logger.Warn("Failed to record audit entry", zap.Error(err))
	}
}

// BroadcastSystemStatus pushes a system status event to the dashboard feed.
// The main loop calls this on a timer.
func (s *Server) BroadcastSystemStatus() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	engineStats := s.engine.Stats()
	hubStats := s.wsHub.GetStats()

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data: websocket.SystemStatusEvent{
			Status:           "healthy",
			Uptime:           time.Since(s.startedAt).String(),
			TotalRedactions:  engineStats.TotalRedactions,
			TotalEntities:    engineStats.TotalEntities,
			ActiveScopes:     engineStats.ActiveScopes,
			EnabledRules:     engineStats.EnabledRules,
			ConnectedClients: int(hubStats.ActiveConnections),
			MemoryUsage:      fmt.Sprintf("%.1f MB", float64(mem.Alloc)/1024/1024),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}
