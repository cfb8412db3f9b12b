package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Unique(t *testing.T) {
	// WHAT: Consecutive IDs are distinct and parse as UUIDs.
	// WHY: Entity primary keys must never collide.
	gen := UUIDv7()
	seen := make(map[string]bool)
	for range 1000 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
		if _, err := Parse(id); err != nil {
			t.Fatalf("generated ID does not parse: %v", err)
		}
	}
}

func TestUUIDv7_TimeSortable(t *testing.T) {
	// WHAT: IDs generated later sort lexicographically after earlier ones.
	// WHY: UUIDv7 ordering is what makes "ORDER BY id" usable as creation order.
	gen := UUIDv7()
	prev := gen()
	for range 100 {
		next := gen()
		if next < prev {
			t.Fatalf("IDs not monotonic: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestPrefixed(t *testing.T) {
	// WHAT: Prefixed prepends the prefix to every generated ID.
	// WHY: Type-scoped task IDs ("task_...") rely on this.
	gen := Prefixed("task_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "task_") {
		t.Errorf("expected task_ prefix, got %s", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "task_")); err != nil {
		t.Errorf("suffix does not parse as UUID: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	// WHAT: Parse rejects non-UUID strings.
	// WHY: IDs arriving over the API are validated before hitting SQL.
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error for invalid UUID")
	}
}
