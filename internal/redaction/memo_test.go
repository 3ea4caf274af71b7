package redaction

import (
	"fmt"
	"sync"
	"testing"
)

func TestScopeGetOrCreate(t *testing.T) {
	t.Run("same value returns same token", func(t *testing.T) {
		scope := NewScope("s1")

		first, created := scope.GetOrCreate(EntityEmail, "john@example.com")
		if !created {
			t.Error("first sighting should create an entry")
		}
		second, created := scope.GetOrCreate(EntityEmail, "john@example.com")
		if created {
			t.Error("second sighting should reuse the entry")
		}
		if first != second {
			t.Errorf("token changed between calls: %q vs %q", first, second)
		}
		if scope.Size() != 1 {
			t.Errorf("expected 1 entry, got %d", scope.Size())
		}
	})

	t.Run("canonical variants share one token", func(t *testing.T) {
		scope := NewScope("s1")

		a, _ := scope.GetOrCreate(EntityPhone, "555-123-4567")
		b, _ := scope.GetOrCreate(EntityPhone, "(555) 123-4567")
		if a != b {
			t.Errorf("separator variants got different tokens: %q vs %q", a, b)
		}
		if scope.Size() != 1 {
			t.Errorf("expected 1 entry, got %d", scope.Size())
		}
	})

	t.Run("same value different types stay distinct", func(t *testing.T) {
		scope := NewScope("s1")

		a, _ := scope.GetOrCreate(EntitySSN, "123-45-6789")
		b, _ := scope.GetOrCreate(EntityPhone, "123-45-6789")
		if scope.Size() != 2 {
			t.Errorf("expected 2 entries, got %d", scope.Size())
		}
		_ = a
		_ = b
	})

	t.Run("person ordinals advance per first sighting", func(t *testing.T) {
		scope := NewScope("s1")

		first, _ := scope.GetOrCreate(EntityPersonName, "John Smith")
		second, _ := scope.GetOrCreate(EntityPersonName, "Alice Jones")
		again, _ := scope.GetOrCreate(EntityPersonName, "john  smith")

		if first != "Person A" {
			t.Errorf("first person = %q, want Person A", first)
		}
		if second != "Person B" {
			t.Errorf("second person = %q, want Person B", second)
		}
		if again != first {
			t.Errorf("case variant got new token: %q", again)
		}
	})

	t.Run("canonicalization failure degrades without memoizing", func(t *testing.T) {
		scope := NewScope("s1")

		token, created := scope.GetOrCreate(EntityEmail, "not-an-email")
		if token != "[EMAIL]" {
			t.Errorf("token = %q, want [EMAIL]", token)
		}
		if created {
			t.Error("fallback must not create an entry")
		}
		if scope.Size() != 0 {
			t.Errorf("expected empty table, got %d entries", scope.Size())
		}
	})
}

func TestScopeConcurrentGetOrCreate(t *testing.T) {
	scope := NewScope("s1")

	const workers = 32
	tokens := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = scope.GetOrCreate(EntityPersonName, "John Smith")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("worker %d got %q, worker 0 got %q", i, tokens[i], tokens[0])
		}
	}
	if scope.Size() != 1 {
		t.Errorf("expected 1 entry after concurrent access, got %d", scope.Size())
	}
}

func TestScopeSnapshotRestore(t *testing.T) {
	scope := NewScope("s1")
	scope.GetOrCreate(EntityPersonName, "John Smith")
	scope.GetOrCreate(EntityPersonName, "Alice Jones")
	scope.GetOrCreate(EntityEmail, "john@example.com")

	snap := scope.Snapshot()
	if snap.ScopeID != "s1" {
		t.Errorf("snapshot scope = %q", snap.ScopeID)
	}
	if len(snap.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap.Entries))
	}
	if snap.Ordinals["person-name"] != 2 {
		t.Errorf("person ordinal = %d, want 2", snap.Ordinals["person-name"])
	}

	t.Run("restore recovers mappings and ordinals", func(t *testing.T) {
		restored := NewScope("s1")
		restored.Restore(snap)

		token, created := restored.GetOrCreate(EntityPersonName, "John Smith")
		if created {
			t.Error("restored entity should not be re-created")
		}
		if token != "Person A" {
			t.Errorf("restored token = %q, want Person A", token)
		}

		// New entity continues the ordinal sequence instead of reusing B
		next, _ := restored.GetOrCreate(EntityPersonName, "Carol White")
		if next != "Person C" {
			t.Errorf("next person after restore = %q, want Person C", next)
		}
	})

	t.Run("restore never overwrites live entries", func(t *testing.T) {
		live := NewScope("s1")
		live.GetOrCreate(EntityPersonName, "John Smith") // Person A

		stale := Snapshot{
			ScopeID: "s1",
			Entries: []SnapshotEntry{
				{Type: EntityPersonName, Key: "john smith", Token: "Person Z"},
			},
			Ordinals: map[string]int{"person-name": 26},
		}
		live.Restore(stale)

		token, _ := live.GetOrCreate(EntityPersonName, "John Smith")
		if token != "Person A" {
			t.Errorf("live entry overwritten: %q", token)
		}
	})

	t.Run("snapshot is a deep copy", func(t *testing.T) {
		snap := scope.Snapshot()
		snap.Entries[0].Token = "tampered"
		snap.Ordinals["person-name"] = 99

		fresh := scope.Snapshot()
		for _, e := range fresh.Entries {
			if e.Token == "tampered" {
				t.Error("mutating a snapshot leaked into scope state")
			}
		}
		if fresh.Ordinals["person-name"] != 2 {
			t.Errorf("ordinal mutated through snapshot: %d", fresh.Ordinals["person-name"])
		}
	})
}

func TestScopeIsolation(t *testing.T) {
	a := NewScope("a")
	b := NewScope("b")

	// Fill scope a so its next ordinal differs from scope b's
	for i := 0; i < 3; i++ {
		a.GetOrCreate(EntityPersonName, fmt.Sprintf("Person%d Name%d", i, i))
	}

	tokenA, _ := a.GetOrCreate(EntityPersonName, "John Smith")
	tokenB, _ := b.GetOrCreate(EntityPersonName, "John Smith")

	if tokenA != "Person D" {
		t.Errorf("scope a token = %q, want Person D", tokenA)
	}
	if tokenB != "Person A" {
		t.Errorf("scope b token = %q, want Person A", tokenB)
	}
}
