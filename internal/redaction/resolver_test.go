package redaction

import (
	"testing"

	"go.uber.org/zap"
)

func TestResolve(t *testing.T) {
	logger := zap.NewNop()

	t.Run("empty input", func(t *testing.T) {
		if got := Resolve(nil, logger); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("longer match wins overlap", func(t *testing.T) {
		// A card number with a phone-shaped substring inside it
		matches := []RawMatch{
			{Type: EntityPhone, Start: 5, End: 17, ruleOrder: 6},
			{Type: EntityCreditCard, Start: 0, End: 19, ruleOrder: 5},
		}

		resolved := Resolve(matches, logger)
		if len(resolved) != 1 {
			t.Fatalf("expected 1 resolved match, got %d", len(resolved))
		}
		if resolved[0].Type != EntityCreditCard {
			t.Errorf("winner = %s, want credit-card", resolved[0].Type)
		}
	})

	t.Run("identical span breaks tie by registration order", func(t *testing.T) {
		matches := []RawMatch{
			{Type: EntityPhone, Start: 0, End: 11, ruleOrder: 6},
			{Type: EntitySSN, Start: 0, End: 11, ruleOrder: 4},
		}

		resolved := Resolve(matches, logger)
		if len(resolved) != 1 {
			t.Fatalf("expected 1 resolved match, got %d", len(resolved))
		}
		if resolved[0].Type != EntitySSN {
			t.Errorf("winner = %s, want ssn (earlier registration)", resolved[0].Type)
		}
	})

	t.Run("equal length ties break by start offset", func(t *testing.T) {
		matches := []RawMatch{
			{Type: EntityEmail, Start: 10, End: 20, ruleOrder: 0},
			{Type: EntityPhone, Start: 5, End: 15, ruleOrder: 6},
		}

		resolved := Resolve(matches, logger)
		if len(resolved) != 1 {
			t.Fatalf("expected 1 resolved match, got %d", len(resolved))
		}
		if resolved[0].Type != EntityPhone {
			t.Errorf("winner = %s, want phone (earlier start)", resolved[0].Type)
		}
	})

	t.Run("disjoint matches all survive in text order", func(t *testing.T) {
		matches := []RawMatch{
			{Type: EntityEmail, Start: 40, End: 60},
			{Type: EntityPhone, Start: 0, End: 12},
			{Type: EntitySSN, Start: 20, End: 31},
		}

		resolved := Resolve(matches, logger)
		if len(resolved) != 3 {
			t.Fatalf("expected 3 resolved matches, got %d", len(resolved))
		}
		for i := 1; i < len(resolved); i++ {
			if resolved[i].Start < resolved[i-1].End {
				t.Errorf("result not in ascending non-overlapping order: %v", resolved)
			}
		}
		if resolved[0].Type != EntityPhone || resolved[1].Type != EntitySSN || resolved[2].Type != EntityEmail {
			t.Errorf("wrong order: %v, %v, %v", resolved[0].Type, resolved[1].Type, resolved[2].Type)
		}
	})

	t.Run("adjacent spans do not conflict", func(t *testing.T) {
		matches := []RawMatch{
			{Type: EntityEmail, Start: 0, End: 10},
			{Type: EntityPhone, Start: 10, End: 20},
		}

		resolved := Resolve(matches, logger)
		if len(resolved) != 2 {
			t.Fatalf("half-open spans sharing an endpoint must both survive, got %d", len(resolved))
		}
	})

	t.Run("chain of overlaps resolves greedily", func(t *testing.T) {
		// B overlaps A and C; A is longest. Accepting A kills B, C survives.
		matches := []RawMatch{
			{Type: EntityCreditCard, Start: 0, End: 19}, // A
			{Type: EntityPhone, Start: 15, End: 27},     // B
			{Type: EntitySSN, Start: 25, End: 36},       // C
		}

		resolved := Resolve(matches, logger)
		if len(resolved) != 2 {
			t.Fatalf("expected 2 resolved matches, got %d", len(resolved))
		}
		if resolved[0].Type != EntityCreditCard || resolved[1].Type != EntitySSN {
			t.Errorf("wrong winners: %v, %v", resolved[0].Type, resolved[1].Type)
		}
	})
}
