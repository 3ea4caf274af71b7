package redaction

import (
	"fmt"
	"regexp"
)

// Registry holds the compiled detection rules. Rules are evaluated
// independently; the registry performs no cross-rule reasoning.
type Registry struct {
	rules []Rule
	byType map[EntityType][]int
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[EntityType][]int)}
}

// Register compiles and adds a rule. It fails fast on a malformed expression
// or when the entity type is already registered with the opposite case
// sensitivity; both are configuration errors, never request-time ones.
func (r *Registry) Register(rule Rule) error {
	if rule.Type == "" {
		return fmt.Errorf("rule has empty entity type")
	}
	if rule.Expr == "" {
		return fmt.Errorf("rule %q has empty pattern", rule.Type)
	}

	for _, idx := range r.byType[rule.Type] {
		if r.rules[idx].CaseSensitive != rule.CaseSensitive {
			return fmt.Errorf("rule %q registered with contradictory case sensitivity", rule.Type)
		}
	}

	expr := rule.Expr
	if !rule.CaseSensitive {
		expr = "(?i)" + expr
	}

	pattern, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("rule %q has invalid pattern: %w", rule.Type, err)
	}

	rule.pattern = pattern
	rule.order = len(r.rules)
	r.rules = append(r.rules, rule)
	r.byType[rule.Type] = append(r.byType[rule.Type], rule.order)
	return nil
}

// Rules returns the registered rules in registration order. The returned
// slice is a copy; registered rules are immutable.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Types returns the distinct entity types currently registered.
func (r *Registry) Types() []EntityType {
	seen := make(map[EntityType]bool, len(r.rules))
	var types []EntityType
	for _, rule := range r.rules {
		if !seen[rule.Type] {
			seen[rule.Type] = true
			types = append(types, rule.Type)
		}
	}
	return types
}
