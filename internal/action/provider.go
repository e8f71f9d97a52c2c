package action

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

// Provider groups related actions and decides which networks it serves.
type Provider interface {
	Name() string
	SupportsNetwork(network wallet.Network) bool
	// Declarations returns the provider's own registered metadata.
	Declarations() ([]Metadata, bool)
	// GetActions binds the provider's and its direct children's
	// declarations to wp.
	GetActions(wp wallet.Provider) ([]Action, error)
}

// Base implements everything in Provider except SupportsNetwork. Concrete
// providers embed *Base and add the network policy.
type Base struct {
	name     string
	owner    Owner
	registry *Registry
	children []Provider
}

// BaseOption customises a Base.
type BaseOption func(*Base)

// WithRegistry makes the provider read declarations from r instead of its
// own private registry. Pass DefaultRegistry to share declarations.
func WithRegistry(r *Registry) BaseOption {
	return func(b *Base) {
		if r != nil {
			b.registry = r
		}
	}
}

// WithChildren composes other providers. Only their own declarations are
// used; grandchildren are ignored.
func WithChildren(children ...Provider) BaseOption {
	return func(b *Base) {
		b.children = append(b.children, children...)
	}
}

// NewBase validates name and returns a provider base reading owner's
// declarations from a registry private to this base unless WithRegistry is
// given.
func NewBase(name string, owner Owner, opts ...BaseOption) (*Base, error) {
	if strings.TrimSpace(name) == "" {
		return nil, providerError(name, nil, "action provider name must not be empty")
	}
	b := &Base{name: name, owner: owner, registry: NewRegistry()}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

func (b *Base) Name() string { return b.name }

// Registry returns the registry the provider reads declarations from.
func (b *Base) Registry() *Registry { return b.registry }

// Children returns the directly composed providers.
func (b *Base) Children() []Provider {
	out := make([]Provider, len(b.children))
	copy(out, b.children)
	return out
}

func (b *Base) Declarations() ([]Metadata, bool) {
	return b.registry.Registered(b.owner)
}

// GetActions builds fresh actions for b and each direct child. A source
// without declarations contributes nothing.
func (b *Base) GetActions(wp wallet.Provider) ([]Action, error) {
	actions := make([]Action, 0)

	own, _ := b.Declarations()
	bound, err := bindAll(b.name, own, wp)
	if err != nil {
		return nil, err
	}
	actions = append(actions, bound...)

	for _, child := range b.children {
		if child == nil {
			continue
		}
		decls, ok := child.Declarations()
		if !ok {
			continue
		}
		bound, err := bindAll(child.Name(), decls, wp)
		if err != nil {
			return nil, err
		}
		actions = append(actions, bound...)
	}
	return actions, nil
}

func bindAll(provider string, decls []Metadata, wp wallet.Provider) ([]Action, error) {
	out := make([]Action, 0, len(decls))
	for _, md := range decls {
		a, err := bind(md, wp)
		if err != nil {
			return nil, providerError(provider, err, "failed to build action "+md.Name)
		}
		out = append(out, a)
	}
	return out, nil
}

func bind(md Metadata, wp wallet.Provider) (Action, error) {
	if strings.TrimSpace(md.Name) == "" {
		return Action{}, xerrors.New(xerrors.CodeInvalidArgument, "action name is empty")
	}
	if md.Handler == nil {
		return Action{}, xerrors.New(xerrors.CodeInvalidArgument, "action has no handler")
	}
	var bound wallet.Provider
	if md.RequiresWalletProvider {
		if wp == nil {
			return Action{}, xerrors.New(xerrors.CodeInvalidArgument, "action requires a wallet provider")
		}
		bound = wp
	}

	handler := md.Handler
	name := md.Name
	schema := md.Schema
	return New(name, md.Description, schema, func(ctx context.Context, args json.RawMessage) (string, error) {
		args = normalizeArgs(args)
		if err := schema.Validate(args); err != nil {
			return "", actionError(name, err, "invalid arguments")
		}
		out, err := handler(ctx, bound, args)
		if err != nil {
			if _, ok := xerrors.From(err); ok {
				return "", err
			}
			return "", actionError(name, err, "action failed")
		}
		return out, nil
	}), nil
}

func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}
