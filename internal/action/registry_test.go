package action

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

func noop(context.Context, wallet.Provider, json.RawMessage) (string, error) { return "", nil }

func TestRegisteredUnknownOwner(t *testing.T) {
	r := NewRegistry()
	entries, ok := r.Registered("missing")
	if ok || entries != nil {
		t.Fatalf("expected absence, got %v %v", entries, ok)
	}
}

func TestRegisterKeepsDeclarationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("p", "b", Metadata{Name: "b", Handler: noop})
	r.Register("p", "a", Metadata{Name: "a", Handler: noop})
	r.Register("p", "c", Metadata{Name: "c", Handler: noop})

	entries, ok := r.Registered("p")
	if !ok {
		t.Fatalf("expected entries")
	}
	got := names(entries)
	if got != "b,a,c" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestRegisterOverwritesInPlace(t *testing.T) {
	r := NewRegistry()
	r.Register("p", "first", Metadata{Name: "first", Description: "old", Handler: noop})
	r.Register("p", "second", Metadata{Name: "second", Handler: noop})
	r.Register("p", "first", Metadata{Name: "first", Description: "new", Handler: noop})

	entries, _ := r.Registered("p")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "first" || entries[0].Description != "new" {
		t.Fatalf("overwrite should replace in place, got %+v", entries[0])
	}
}

func TestRegistryIsolatesOwners(t *testing.T) {
	r := NewRegistry()
	r.Register("a", "x", Metadata{Name: "x", Handler: noop})
	r.Register("b", "y", Metadata{Name: "y", Handler: noop})

	a, _ := r.Registered("a")
	b, _ := r.Registered("b")
	if names(a) != "x" || names(b) != "y" {
		t.Fatalf("owners leaked: %s / %s", names(a), names(b))
	}
}

func names(entries []Metadata) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e.Name
	}
	return out
}
