package redaction

import "regexp"

// EntityType tags the kind of sensitive data a rule detects. The set is open:
// callers may register rules for types this package has never heard of.
type EntityType string

// Entity types covered by the default rule set.
const (
	EntityEmail      EntityType = "email"
	EntityPhone      EntityType = "phone"
	EntitySSN        EntityType = "ssn"
	EntityCreditCard EntityType = "credit-card"
	EntityAPIKey     EntityType = "api-key"
	EntityPersonName EntityType = "person-name"
	EntityJWT        EntityType = "jwt-token"
	EntityIPAddress  EntityType = "ip-address"
	EntityAWSKey     EntityType = "aws-key"
)

// Rule is a single immutable detection rule. Pattern is compiled once at
// registration; case-insensitive matching is applied there unless
// CaseSensitive is set.
type Rule struct {
	Type          EntityType
	Expr          string
	CaseSensitive bool
	Confidence    float64

	pattern *regexp.Regexp
	order   int
}

// RawMatch is one detector hit before conflict resolution. Start/End are byte
// offsets into the scanned text, half-open [Start, End).
type RawMatch struct {
	Type       EntityType
	Start      int
	End        int
	Text       string
	Confidence float64

	ruleOrder int
}

// Len returns the matched span length in bytes.
func (m RawMatch) Len() int { return m.End - m.Start }

// overlaps reports whether two spans intersect.
func (m RawMatch) overlaps(o RawMatch) bool {
	return m.Start < o.End && o.Start < m.End
}

// ResolvedMatch is a RawMatch that survived conflict resolution. Within one
// detection pass no two resolved spans intersect.
type ResolvedMatch struct {
	RawMatch
}

// Entity is a resolved match together with the mask token assigned to it.
// Reports never carry the canonical key, only the replacement.
type Entity struct {
	Type       EntityType `json:"type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Masked     string     `json:"masked"`
	Confidence float64    `json:"confidence"`
}

// Report is the immutable result of one redaction call.
type Report struct {
	Original     string   `json:"-"` // never serialized
	Redacted     string   `json:"redacted_content"`
	Entities     []Entity `json:"detected_entities"`
	ScopeID      string   `json:"scope_id"`
	ProcessingMS float64  `json:"processing_ms"`
}
