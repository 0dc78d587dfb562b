package idgen

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	id, err := Generate(PrefixActivity)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !strings.HasPrefix(id, PrefixActivity) {
		t.Fatalf("expected prefix %q, got %q", PrefixActivity, id)
	}
	if len(id) != len(PrefixActivity)+Length {
		t.Fatalf("expected length %d, got %d (%q)", len(PrefixActivity)+Length, len(id), id)
	}
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := MustGenerate(PrefixEvent)
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
