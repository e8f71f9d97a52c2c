package action

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

// Owner keys a provider type in a Registry.
type Owner string

// Handler runs an action. The wallet provider is nil unless the metadata
// declares RequiresWalletProvider.
type Handler func(ctx context.Context, wp wallet.Provider, args json.RawMessage) (string, error)

// Metadata is the static declaration of one action.
type Metadata struct {
	Name                   string
	Description            string
	Schema                 *Schema
	RequiresWalletProvider bool
	Handler                Handler
}

type ownerEntries struct {
	order []string
	byKey map[string]Metadata
}

// Registry stores action declarations per owner in declaration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[Owner]*ownerEntries
}

// DefaultRegistry is a process-wide registry providers opt into with
// WithRegistry.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Owner]*ownerEntries)}
}

// Register stores md under key. Registering an existing key replaces the
// metadata but keeps its original position.
func (r *Registry) Register(owner Owner, key string, md Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[owner]
	if !ok {
		e = &ownerEntries{byKey: make(map[string]Metadata)}
		r.entries[owner] = e
	}
	if _, exists := e.byKey[key]; !exists {
		e.order = append(e.order, key)
	}
	e.byKey[key] = md
}

// Registered returns the owner's metadata in declaration order. ok is false
// when nothing was registered for owner.
func (r *Registry) Registered(owner Owner) ([]Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[owner]
	if !ok {
		return nil, false
	}
	out := make([]Metadata, 0, len(e.order))
	for _, key := range e.order {
		out = append(out, e.byKey[key])
	}
	return out, true
}
