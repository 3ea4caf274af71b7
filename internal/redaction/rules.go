package redaction

// defaultRuleSpecs defines the built-in detection rules. Confidence reflects
// how specifically the pattern identifies the target type: structured formats
// with unambiguous markers score high, broad numeric patterns score low.
var defaultRuleSpecs = []Rule{
	{
		Type:       EntityEmail,
		Expr:       `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		Confidence: 0.95,
	},
	{
		// Recognizable vendor prefixes followed by a long token. Prefixes are
		// case-significant (AKIA vs akia identifies different things).
		Type:          EntityAPIKey,
		Expr:          `\b(?:sk-|pk-|ghp_|gho_|ghu_|ghs_|ghr_)[A-Za-z0-9]{16,}\b`,
		CaseSensitive: true,
		Confidence:    0.90,
	},
	{
		Type:          EntityAWSKey,
		Expr:          `\bAKIA[0-9A-Z]{16}\b`,
		CaseSensitive: true,
		Confidence:    0.95,
	},
	{
		Type:          EntityJWT,
		Expr:          `\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-.+/=]+`,
		CaseSensitive: true,
		Confidence:    0.90,
	},
	{
		Type:       EntitySSN,
		Expr:       `\b\d{3}-\d{2}-\d{4}\b`,
		Confidence: 0.90,
	},
	{
		// 13-16 digits with optional group separators.
		Type:       EntityCreditCard,
		Expr:       `\b\d{4}[-. ]?\d{4}[-. ]?\d{4}[-. ]?\d{1,4}\b`,
		Confidence: 0.85,
	},
	{
		// Broad by design: optional country code, optional parens, common
		// separators. Low confidence; the resolver lets longer structured
		// matches (credit cards) win overlapping spans.
		Type:       EntityPhone,
		Expr:       `(?:\+\d{1,3}[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`,
		Confidence: 0.65,
	},
	{
		Type:       EntityIPAddress,
		Expr:       `\b(?:\d{1,3}\.){3}\d{1,3}\b`,
		Confidence: 0.70,
	},
	{
		// Two-capitalized-words heuristic. High false-positive risk; kept as
		// a default because referential identity for names matters most in
		// conversations, but deployments can disable or replace it.
		Type:          EntityPersonName,
		Expr:          `\b[A-Z][a-z]+ [A-Z][a-z]+\b`,
		CaseSensitive: true,
		Confidence:    0.50,
	},
}

// DefaultRegistry builds a registry with the built-in rule set.
func DefaultRegistry() (*Registry, error) {
	registry := NewRegistry()
	for _, rule := range defaultRuleSpecs {
		if err := registry.Register(rule); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// DefaultRuleNames returns the names of the built-in rules, for config
// validation and the info endpoint.
func DefaultRuleNames() []string {
	names := make([]string, len(defaultRuleSpecs))
	for i, rule := range defaultRuleSpecs {
		names[i] = string(rule.Type)
	}
	return names
}
