package idgen

import (
	"strings"
	"testing"
)

func TestQuery_PrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := Query()
		if !strings.HasPrefix(id, "q_") {
			t.Fatalf("Query: expected q_ prefix, got %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("Query: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestQuery_UUIDBody(t *testing.T) {
	body := strings.TrimPrefix(Query(), "q_")
	if len(body) != 36 || strings.Count(body, "-") != 4 {
		t.Fatalf("Query: malformed uuid body %q", body)
	}
}

func TestQuery_SortsByTime(t *testing.T) {
	prev := Query()
	for i := 0; i < 50; i++ {
		id := Query()
		if id < prev {
			// Ids within one millisecond are ordered only by their
			// random tail. The timestamp prefix itself never regresses.
			if id[:10] < prev[:10] {
				t.Fatalf("Query: id %q sorts before earlier %q", id, prev)
			}
		}
		prev = id
	}
}
