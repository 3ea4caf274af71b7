package redaction

import "sync"

// maskKey is the normalized identity of an entity instance within a scope.
type maskKey struct {
	Type  EntityType
	Value string
}

// Scope is the per-session entity memo table: an append-only map from
// canonicalized entity identity to its assigned mask token, plus the ordinal
// counters that make person tokens human-readable. Entries are never removed
// or rewritten for the life of the scope, which is what guarantees the same
// real-world entity is rewritten identically across any number of calls.
//
// All methods are safe for concurrent use; GetOrCreate is a critical section
// so two concurrent calls seeing the same new value cannot allocate two
// different tokens.
type Scope struct {
	id string

	mu       sync.Mutex
	entries  map[maskKey]string
	ordinals map[EntityType]int
}

// NewScope creates an empty memo table for the given scope identifier.
func NewScope(id string) *Scope {
	return &Scope{
		id:       id,
		entries:  make(map[maskKey]string),
		ordinals: make(map[EntityType]int),
	}
}

// ID returns the scope identifier.
func (s *Scope) ID() string { return s.id }

// GetOrCreate returns the stable mask token for (entityType, rawValue),
// allocating the next ordinal and generating a fresh token on first sight.
// A value its canonicalizer cannot normalize degrades to the opaque [TYPE]
// token: redaction never fails open. created reports whether a new entry was
// added to the table.
func (s *Scope) GetOrCreate(t EntityType, rawValue string) (token string, created bool) {
	canonical, err := Canonicalize(t, rawValue)
	if err != nil {
		return FallbackMask(t), false
	}

	key := maskKey{Type: t, Value: canonical}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[key]; ok {
		return existing, false
	}

	s.ordinals[t]++
	token = GenerateMask(t, canonical, s.ordinals[t])
	s.entries[key] = token
	return token, true
}

// Size returns the number of memoized entities.
func (s *Scope) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SnapshotEntry is one memoized mapping in serializable form. Key is the
// canonicalized value; reports and logs never carry it, only stores do.
type SnapshotEntry struct {
	Type    EntityType `json:"type" db:"entity_type"`
	Key     string     `json:"key" db:"mask_key"`
	Token   string     `json:"token" db:"mask_token"`
	Ordinal int        `json:"-" db:"ordinal"`
}

// Snapshot is a point-in-time copy of a scope's memo table, suitable for
// inspection or for round-tripping through a durable store.
type Snapshot struct {
	ScopeID  string          `json:"scope_id"`
	Entries  []SnapshotEntry `json:"entries"`
	Ordinals map[string]int  `json:"ordinals"`
}

// Snapshot returns a deep copy of the table. Mutating the copy cannot touch
// scope state.
func (s *Scope) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ScopeID:  s.id,
		Entries:  make([]SnapshotEntry, 0, len(s.entries)),
		Ordinals: make(map[string]int, len(s.ordinals)),
	}
	for key, token := range s.entries {
		snap.Entries = append(snap.Entries, SnapshotEntry{
			Type:  key.Type,
			Key:   key.Value,
			Token: token,
		})
	}
	for t, n := range s.ordinals {
		snap.Ordinals[string(t)] = n
	}
	return snap
}

// Restore loads a snapshot into an empty scope, recovering both the mappings
// and the ordinal counters so newly seen entities continue the sequence.
// Existing entries are never overwritten: the table stays append-only even
// against a stale snapshot.
func (s *Scope) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range snap.Entries {
		key := maskKey{Type: entry.Type, Value: entry.Key}
		if _, exists := s.entries[key]; !exists {
			s.entries[key] = entry.Token
		}
	}
	for t, n := range snap.Ordinals {
		if n > s.ordinals[EntityType(t)] {
			s.ordinals[EntityType(t)] = n
		}
	}
}
