package redaction

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrUnknownRule reports a detector or rule name that no registered rule
// covers.
var ErrUnknownRule = errors.New("unknown rule")

// Detector runs registry rules against input text and emits raw matches.
// Safe for concurrent use; the only mutable state is the enabled-rule set,
// which supports live reconfiguration.
type Detector struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	enabled map[EntityType]bool
}

// NewDetector creates a detector over the given registry. detectors lists the
// entity types to enable; the single element "all" enables every registered
// rule. Unknown names are configuration errors.
func NewDetector(registry *Registry, detectors []string, logger *zap.Logger) (*Detector, error) {
	d := &Detector{
		registry: registry,
		logger:   logger,
		enabled:  make(map[EntityType]bool),
	}

	if err := d.Configure(detectors); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	logger.Info("Detector initialized",
		zap.Int("total_rules", len(registry.Rules())),
		zap.Int("enabled_rules", len(d.EnabledTypes())),
	)

	return d, nil
}

// Configure replaces the enabled-rule set. Used at startup and on config
// hot-reload.
func (d *Detector) Configure(detectors []string) error {
	enabled := make(map[EntityType]bool)
	for _, t := range d.registry.Types() {
		enabled[t] = false
	}

	for _, name := range detectors {
		if name == "all" {
			for _, t := range d.registry.Types() {
				enabled[t] = true
			}
			continue
		}

		if _, known := enabled[EntityType(name)]; !known {
			return fmt.Errorf("%w: %s", ErrUnknownRule, name)
		}
		enabled[EntityType(name)] = true
	}

	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
	return nil
}

// Detect scans the full text with every enabled rule and returns one RawMatch
// per non-empty hit. Overlapping matches are expected at this stage; the
// resolver decides between them. Each rule is a compiled RE2 pattern, so the
// scan is linear in len(text) per rule even on adversarial input.
func (d *Detector) Detect(text string) []RawMatch {
	d.mu.RLock()
	enabled := d.enabled
	d.mu.RUnlock()

	var matches []RawMatch

	for _, rule := range d.registry.Rules() {
		if !enabled[rule.Type] {
			continue
		}

		for _, span := range rule.pattern.FindAllStringIndex(text, -1) {
			if span[1] == span[0] {
				continue
			}
			matches = append(matches, RawMatch{
				Type:       rule.Type,
				Start:      span[0],
				End:        span[1],
				Text:       text[span[0]:span[1]],
				Confidence: rule.Confidence,
				ruleOrder:  rule.order,
			})
		}
	}

	if len(matches) > 0 {
		d.logger.Debug("Detection pass completed",
			zap.Int("raw_matches", len(matches)),
			zap.Int("text_len", len(text)),
		)
	}

	return matches
}

// EnabledTypes returns the entity types currently enabled.
func (d *Detector) EnabledTypes() []EntityType {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var enabled []EntityType
	for t, on := range d.enabled {
		if on {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// Enable turns on detection for a registered entity type.
func (d *Detector) Enable(t EntityType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.enabled[t]; !known {
		return fmt.Errorf("%w: %s", ErrUnknownRule, t)
	}
	d.enabled[t] = true
	d.logger.Info("Detection rule enabled", zap.String("rule", string(t)))
	return nil
}

// Disable turns off detection for a registered entity type.
func (d *Detector) Disable(t EntityType) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, known := d.enabled[t]; !known {
		return fmt.Errorf("%w: %s", ErrUnknownRule, t)
	}
	d.enabled[t] = false
	d.logger.Info("Detection rule disabled", zap.String("rule", string(t)))
	return nil
}
