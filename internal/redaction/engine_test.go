package redaction

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/logger"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.RedactionConfig{
		Enabled:   true,
		Detectors: []string{"all"},
	}
	engine, err := New(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestRedactValidation(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("empty input", func(t *testing.T) {
		if _, err := engine.Redact("", "s1"); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("err = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("whitespace only input", func(t *testing.T) {
		if _, err := engine.Redact("   \n\t ", "s1"); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("err = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("empty scope", func(t *testing.T) {
		if _, err := engine.Redact("some text", ""); !errors.Is(err, ErrInvalidScope) {
			t.Errorf("err = %v, want ErrInvalidScope", err)
		}
	})
}

func TestRedactDisabled(t *testing.T) {
	cfg := config.RedactionConfig{
		Enabled:   false,
		Detectors: []string{"all"},
	}
	engine, err := New(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	text := "mail john@example.com"
	report, err := engine.Redact(text, "s1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if report.Redacted != text {
		t.Errorf("disabled engine mutated text: %q", report.Redacted)
	}
	if len(report.Entities) != 0 {
		t.Errorf("disabled engine reported entities: %v", report.Entities)
	}
}

func TestRedactSubstitution(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("single entity", func(t *testing.T) {
		report, err := engine.Redact("contact john.smith@example.com for details", "sub1")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}

		want := "contact jo********@ex*****.com for details"
		if report.Redacted != want {
			t.Errorf("redacted = %q, want %q", report.Redacted, want)
		}
		if len(report.Entities) != 1 {
			t.Fatalf("expected 1 entity, got %d", len(report.Entities))
		}
		e := report.Entities[0]
		if e.Type != EntityEmail || e.Start != 8 || e.End != 30 {
			t.Errorf("entity = %+v", e)
		}
	})

	t.Run("multiple entities preserve surrounding text", func(t *testing.T) {
		report, err := engine.Redact("ssn 123-45-6789 and phone 555-123-4567 end", "sub2")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}

		want := "ssn ***-**-**** and phone 55****4567 end"
		if report.Redacted != want {
			t.Errorf("redacted = %q, want %q", report.Redacted, want)
		}
	})

	t.Run("entities report in ascending text order", func(t *testing.T) {
		report, err := engine.Redact("a@b.co then 192.168.1.1 then John Smith", "sub3")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}
		for i := 1; i < len(report.Entities); i++ {
			if report.Entities[i].Start < report.Entities[i-1].End {
				t.Errorf("entities overlap or out of order: %+v", report.Entities)
			}
		}
	})
}

func TestRedactOverlapPrecedence(t *testing.T) {
	engine := newTestEngine(t)

	// The card digits contain phone-shaped substrings; the longer card match
	// must win and produce exactly one entity for the span.
	report, err := engine.Redact("card 4111-1111-1111-1111 on file", "overlap1")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}

	if len(report.Entities) != 1 {
		t.Fatalf("expected 1 entity, got %d: %+v", len(report.Entities), report.Entities)
	}
	if report.Entities[0].Type != EntityCreditCard {
		t.Errorf("type = %s, want credit-card", report.Entities[0].Type)
	}
	if report.Entities[0].Masked != "****-****-****-1111" {
		t.Errorf("mask = %q", report.Entities[0].Masked)
	}
	if strings.Contains(report.Redacted, "4111-1111") {
		t.Errorf("card digits leaked: %q", report.Redacted)
	}
}

func TestRedactEntityPersistence(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("same entity stable across calls", func(t *testing.T) {
		first, err := engine.Redact("John Smith called", "conv1")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}
		second, err := engine.Redact("then John Smith emailed again", "conv1")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}

		if first.Entities[0].Masked != "Person A" {
			t.Errorf("first token = %q", first.Entities[0].Masked)
		}
		if second.Entities[0].Masked != "Person A" {
			t.Errorf("recurring entity changed token: %q", second.Entities[0].Masked)
		}
	})

	t.Run("distinct entities get distinct tokens", func(t *testing.T) {
		report, err := engine.Redact("John Smith met Alice Jones", "conv2")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}
		if report.Redacted != "Person A met Person B" {
			t.Errorf("redacted = %q", report.Redacted)
		}
	})

	t.Run("scopes are independent", func(t *testing.T) {
		engine.Redact("Alice Jones first", "iso1")
		a, _ := engine.Redact("John Smith next", "iso1")
		b, _ := engine.Redact("John Smith next", "iso2")

		if a.Entities[0].Masked != "Person B" {
			t.Errorf("iso1 token = %q, want Person B", a.Entities[0].Masked)
		}
		if b.Entities[0].Masked != "Person A" {
			t.Errorf("iso2 token = %q, want Person A", b.Entities[0].Masked)
		}
	})

	t.Run("closing a scope forgets its tokens", func(t *testing.T) {
		engine.Redact("Alice Jones here", "gone1")
		engine.CloseScope("gone1")

		report, _ := engine.Redact("John Smith here", "gone1")
		if report.Entities[0].Masked != "Person A" {
			t.Errorf("recreated scope token = %q, want Person A", report.Entities[0].Masked)
		}
	})
}

func TestRedactIdempotence(t *testing.T) {
	engine := newTestEngine(t)

	text := "John Smith (john.smith@example.com, 555-123-4567) has ssn 123-45-6789, " +
		"card 4111-1111-1111-1111, key sk-abcdef1234567890ABCD, host 192.168.1.100"

	first, err := engine.Redact(text, "idem1")
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(first.Entities) == 0 {
		t.Fatal("first pass found nothing")
	}

	second, err := engine.Redact(first.Redacted, "idem1")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(second.Entities) != 0 {
		t.Errorf("second pass re-matched %d entities: %+v", len(second.Entities), second.Entities)
	}
	if second.Redacted != first.Redacted {
		t.Errorf("second pass mutated text:\n first: %q\nsecond: %q", first.Redacted, second.Redacted)
	}
}

func TestRedactConcurrent(t *testing.T) {
	engine := newTestEngine(t)

	const workers = 16
	var wg sync.WaitGroup
	tokens := make([]string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := engine.Redact("ping john@example.com now", "conc1")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			tokens[i] = report.Entities[0].Masked
		}(i)
	}

	// Different scopes concurrently with the shared one
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scope := fmt.Sprintf("conc-other-%d", i)
			if _, err := engine.Redact("Alice Jones spoke", scope); err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("concurrent callers saw different tokens: %q vs %q", tokens[i], tokens[0])
		}
	}
}

func TestEngineStats(t *testing.T) {
	engine := newTestEngine(t)

	engine.Redact("mail john@example.com", "stat1")
	engine.Redact("mail jane@example.com", "stat2")

	stats := engine.Stats()
	if stats.TotalRedactions != 2 {
		t.Errorf("TotalRedactions = %d, want 2", stats.TotalRedactions)
	}
	if stats.TotalEntities != 2 {
		t.Errorf("TotalEntities = %d, want 2", stats.TotalEntities)
	}
	if stats.ActiveScopes != 2 {
		t.Errorf("ActiveScopes = %d, want 2", stats.ActiveScopes)
	}
	if stats.EnabledRules == 0 {
		t.Error("EnabledRules = 0")
	}
}

func TestRedactConversations(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("email and phone in one message", func(t *testing.T) {
		report, err := engine.Redact("Email john@x.com call 555-123-4567", "msg1")
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}
		if len(report.Entities) != 2 {
			t.Fatalf("expected 2 entities, got %+v", report.Entities)
		}
		if report.Redacted != "Email jo**@x.com call 55****4567" {
			t.Errorf("redacted = %q", report.Redacted)
		}
	})

	t.Run("two people across two messages", func(t *testing.T) {
		first, err := engine.Redact("John Smith emailed Sarah Johnson", "msg2")
		if err != nil {
			t.Fatalf("first: %v", err)
		}
		if first.Redacted != "Person A emailed Person B" {
			t.Errorf("first redacted = %q", first.Redacted)
		}

		second, err := engine.Redact("Sarah Johnson replied to John Smith", "msg2")
		if err != nil {
			t.Fatalf("second: %v", err)
		}
		if second.Redacted != "Person B replied to Person A" {
			t.Errorf("second redacted = %q", second.Redacted)
		}
	})

	t.Run("ssn is fully opaque regardless of value", func(t *testing.T) {
		for _, ssn := range []string{"123-45-6789", "987-65-4321"} {
			report, err := engine.Redact("ssn "+ssn, "msg3")
			if err != nil {
				t.Fatalf("Redact: %v", err)
			}
			if report.Redacted != "ssn ***-**-****" {
				t.Errorf("redacted = %q", report.Redacted)
			}
		}
	})
}

func BenchmarkRedact(b *testing.B) {
	cfg := config.RedactionConfig{Enabled: true, Detectors: []string{"all"}}
	engine, err := New(cfg, logger.NewNop())
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}

	text := "John Smith (john.smith@example.com, 555-123-4567) paid with " +
		"4111-1111-1111-1111 from 192.168.1.100 using sk-abcdef1234567890ABCD"

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Redact(text, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}

func TestEngineRestoreScope(t *testing.T) {
	engine := newTestEngine(t)

	engine.Redact("Alice Jones and John Smith", "restore-src")
	scope, ok := engine.LookupScope("restore-src")
	if !ok {
		t.Fatal("source scope missing")
	}
	snap := scope.Snapshot()
	snap.ScopeID = "restore-dst"

	engine.RestoreScope(snap)

	report, err := engine.Redact("Alice Jones again", "restore-dst")
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if report.Entities[0].Masked != "Person A" {
		t.Errorf("restored token = %q, want Person A", report.Entities[0].Masked)
	}
}
