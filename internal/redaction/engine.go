package redaction

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/logger"
	"go.uber.org/zap"
)

// Validation errors. These are the only failures Redact surfaces to callers;
// everything downstream of validation degrades to safe masked output instead
// of failing.
var (
	ErrEmptyInput   = errors.New("input text is empty or whitespace-only")
	ErrInvalidScope = errors.New("scope identifier is empty")
)

// Engine is the public redaction core: it owns the detection pipeline and the
// registry of per-scope memo tables. One engine serves all scopes; calls
// against different scopes never block each other.
type Engine struct {
	detector *Detector
	registry *Registry
	logger   *logger.Logger
	config   config.RedactionConfig

	mu     sync.RWMutex
	scopes map[string]*Scope

	totalRedactions int64
	totalEntities   int64
}

// Stats are the aggregate counters exposed to the health reporter. Reading
// them cannot mutate memo state.
type Stats struct {
	TotalRedactions int64 `json:"total_redactions"`
	TotalEntities   int64 `json:"total_entities"`
	ActiveScopes    int   `json:"active_scopes"`
	EnabledRules    int   `json:"enabled_rules"`
}

// New creates a redaction engine with the built-in rule set, enabling the
// detectors named in cfg.
func New(cfg config.RedactionConfig, log *logger.Logger) (*Engine, error) {
	registry, err := DefaultRegistry()
	if err != nil {
		return nil, err
	}
	return NewWithRegistry(registry, cfg, log)
}

// NewWithRegistry creates an engine over a caller-supplied registry, the
// extension point for custom detection rules.
func NewWithRegistry(registry *Registry, cfg config.RedactionConfig, log *logger.Logger) (*Engine, error) {
	detector, err := NewDetector(registry, cfg.Detectors, log.Logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		detector: detector,
		registry: registry,
		logger:   log,
		config:   cfg,
		scopes:   make(map[string]*Scope),
	}, nil
}

// Redact detects sensitive entities in text, replaces each with the stable
// mask token for the given scope, and returns the full report. The same
// entity value always receives the same token within a scope, however many
// calls it recurs across.
func (e *Engine) Redact(text, scopeID string) (*Report, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if strings.TrimSpace(scopeID) == "" {
		return nil, ErrInvalidScope
	}

	start := time.Now()

	if !e.config.Enabled {
		return &Report{Original: text, Redacted: text, ScopeID: scopeID}, nil
	}

	resolved := Resolve(e.detector.Detect(text), e.logger.Logger)
	scope := e.Scope(scopeID)

	entities := make([]Entity, 0, len(resolved))
	tokens := make([]string, len(resolved))
	for i, match := range resolved {
		token, _ := scope.GetOrCreate(match.Type, match.Text)
		tokens[i] = token
		entities = append(entities, Entity{
			Type:       match.Type,
			Start:      match.Start,
			End:        match.End,
			Masked:     token,
			Confidence: match.Confidence,
		})
	}

	// Substitute spans back-to-front so offsets into the original text stay
	// valid; replacements are never computed against mutated text.
	redacted := text
	for i := len(resolved) - 1; i >= 0; i-- {
		redacted = redacted[:resolved[i].Start] + tokens[i] + redacted[resolved[i].End:]
	}

	atomic.AddInt64(&e.totalRedactions, 1)
	atomic.AddInt64(&e.totalEntities, int64(len(entities)))

	if len(entities) > 0 {
		e.logger.Debug("Content redacted",
			zap.String("scope_id", scopeID),
			zap.Int("entities", len(entities)),
			zap.Int("scope_size", scope.Size()),
		)
	}

	return &Report{
		Original:     text,
		Redacted:     redacted,
		Entities:     entities,
		ScopeID:      scopeID,
		ProcessingMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// Scope returns the memo table for scopeID, creating it on first use.
func (e *Engine) Scope(scopeID string) *Scope {
	e.mu.RLock()
	scope, ok := e.scopes[scopeID]
	e.mu.RUnlock()
	if ok {
		return scope
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if scope, ok = e.scopes[scopeID]; ok {
		return scope
	}
	scope = NewScope(scopeID)
	e.scopes[scopeID] = scope
	return scope
}

// LookupScope returns the memo table for scopeID without creating one.
func (e *Engine) LookupScope(scopeID string) (*Scope, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	scope, ok := e.scopes[scopeID]
	return scope, ok
}

// RestoreScope loads a snapshot (from a durable store) into the scope's memo
// table before the engine resumes processing for it.
func (e *Engine) RestoreScope(snap Snapshot) {
	e.Scope(snap.ScopeID).Restore(snap)
}

// CloseScope discards a scope's memo table. Tokens assigned within the scope
// are forgotten; a recreated scope starts fresh.
func (e *Engine) CloseScope(scopeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scopes, scopeID)
}

// ScopeCount returns the number of live scopes.
func (e *Engine) ScopeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.scopes)
}

// Detector exposes the engine's detector for live rule reconfiguration.
func (e *Engine) Detector() *Detector { return e.detector }

// Stats returns aggregate counters for monitoring.
func (e *Engine) Stats() Stats {
	return Stats{
		TotalRedactions: atomic.LoadInt64(&e.totalRedactions),
		TotalEntities:   atomic.LoadInt64(&e.totalEntities),
		ActiveScopes:    e.ScopeCount(),
		EnabledRules:    len(e.detector.EnabledTypes()),
	}
}
