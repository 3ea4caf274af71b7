package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/redaction"
	"github.com/secureai/privacy-shield/internal/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		s.logger.WithRequestID(requestID).LogRequest(r.Method, r.URL.Path, r.Header, r.ContentLength)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.logger.WithRequestID(requestID).Info("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", rw.size),
		)

		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRequestLog,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: websocket.RequestLogEvent{
				RequestID:    requestID,
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   rw.statusCode,
				ClientIP:     getClientIP(r),
				UserAgent:    r.UserAgent(),
				Duration:     duration,
				RequestSize:  r.ContentLength,
				ResponseSize: int64(rw.size),
			},
		})
	})
}

// rateLimitMiddleware rejects clients that exceed the configured rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimiter.Allow(getClientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redactionMiddleware rewrites proxied request bodies through the engine
// before they leave for the upstream. The scope comes from the configured
// header, falling back to the client IP, so one conversation keeps one set of
// mask tokens across requests.
func (s *Server) redactionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Redaction.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		requestID := getRequestID(r.Context())
		logger := s.logger.WithRequestID(requestID)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Error("Failed to read request body", zap.Error(err))
			http.Error(w, "Failed to read request", http.StatusInternalServerError)
			return
		}
		r.Body.Close()

		scopeID := r.Header.Get(s.config.Redaction.ScopeHeader)
		if scopeID == "" {
			scopeID = getClientIP(r)
		}

		s.scrubHeaders(r)

		s.ensureScope(r.Context(), scopeID)

		report, err := s.engine.Redact(string(body), scopeID)
		if err != nil {
			if errors.Is(err, redaction.ErrEmptyInput) {
				// Nothing to redact, forward as-is
				r.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(w, r)
				return
			}
			logger.Error("Redaction failed, refusing to forward", zap.Error(err))
			http.Error(w, "Redaction failed", http.StatusInternalServerError)
			return
		}

		if len(report.Entities) > 0 {
			logger.Info("Sensitive content redacted",
				zap.String("scope_id", scopeID),
				zap.Int("entities", len(report.Entities)),
			)
			go s.persistScope(scopeID)
			s.broadcastRedaction(r, report, "proxy")
			s.recordAudit(r, report, "proxy")
		}

		r.Body = io.NopCloser(bytes.NewReader([]byte(report.Redacted)))
		r.ContentLength = int64(len(report.Redacted))

		next.ServeHTTP(w, r)
	})
}

// scrubHeaders removes configured sensitive headers from a proxied request.
// Upstream auth headers survive when preserve_upstream_auth is set, since the
// proxied provider call still has to authenticate.
func (s *Server) scrubHeaders(r *http.Request) {
	cfg := s.config.Redaction.HeaderScrubbing
	if !cfg.Enabled {
		return
	}

	for _, name := range cfg.Headers {
		if cfg.PreserveUpstreamAuth && isUpstreamAuthHeader(name) {
			continue
		}
		r.Header.Del(name)
	}
}

// isUpstreamAuthHeader reports whether a header carries the credentials the
// upstream provider itself requires.
func isUpstreamAuthHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "x-api-key":
		return true
	}
	return false
}

// clientRateLimiter keeps one token bucket per client IP. Idle entries are
// evicted so the map cannot grow without bound.
type clientRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	lastSeen time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientRateLimiter(cfg config.RateLimitConfig) *clientRateLimiter {
	rl := &clientRateLimiter{
		clients:  make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(cfg.RequestsPerMin) / 60.0),
		burst:    cfg.Burst,
		lastSeen: 10 * time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether the client may proceed, consuming one token.
func (rl *clientRateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[clientIP]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientIP] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

func (rl *clientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.lastSeen)
		for ip, entry := range rl.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	return time.Now().Format("20060102150405.000000000")
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
