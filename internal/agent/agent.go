package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/wallet"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// Capability is a marker a provider declares at registration time.
type Capability string

// CapabilityWallet marks providers whose actions need a wallet provider.
const CapabilityWallet Capability = "wallet"

type registration struct {
	provider     action.Provider
	capabilities []Capability
}

func (r registration) has(c Capability) bool {
	for _, have := range r.capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Agent aggregates actions from its providers.
type Agent struct {
	wallet        wallet.Provider
	mu            sync.RWMutex
	registrations []registration
	skipped       []string

	invokeTimeout time.Duration
	feed          event.Feed
	log           *slog.Logger
	audit         *slog.Logger
}

// Option customises an Agent.
type Option func(*Agent)

// WithProvider registers p at construction time.
func WithProvider(p action.Provider, caps ...Capability) Option {
	return func(a *Agent) {
		a.Register(p, caps...)
	}
}

// WithInvokeTimeout bounds each Invoke call. Zero disables the bound.
func WithInvokeTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.invokeTimeout = timeout
	}
}

// WithLogger overrides the application logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// WithAuditLogger overrides the audit logger.
func WithAuditLogger(log *slog.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.audit = log
		}
	}
}

// New creates an agent around wp.
func New(wp wallet.Provider, opts ...Option) *Agent {
	a := &Agent{
		wallet: wp,
		log:    logger.Named("agent"),
		audit:  logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Register appends p to the provider list.
func (a *Agent) Register(p action.Provider, caps ...Capability) {
	if p == nil {
		return
	}
	reg := registration{provider: p, capabilities: append([]Capability(nil), caps...)}
	if a.wallet == nil && reg.has(CapabilityWallet) {
		a.log.Warn("provider requires a wallet provider but none is configured", "provider", p.Name())
	}
	a.mu.Lock()
	a.registrations = append(a.registrations, reg)
	a.mu.Unlock()
}

// WalletProvider returns the agent's wallet.
func (a *Agent) WalletProvider() wallet.Provider { return a.wallet }

// Network is the wallet's network, or empty without a wallet.
func (a *Agent) Network() wallet.Network {
	if a.wallet == nil {
		return ""
	}
	return a.wallet.Network()
}

// GetActions rebuilds the action list. Providers that do not support the
// wallet's network are skipped and reported through Skipped. Two actions
// with the same name fail the whole call.
func (a *Agent) GetActions(ctx context.Context) ([]action.Action, error) {
	a.mu.RLock()
	regs := append([]registration(nil), a.registrations...)
	a.mu.RUnlock()

	network := a.Network()
	actions := make([]action.Action, 0)
	seen := make(map[string]string)
	var skipped []string

	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reg.provider
		if !p.SupportsNetwork(network) {
			if !contains(skipped, p.Name()) {
				skipped = append(skipped, p.Name())
				a.log.Warn("action provider does not support network, skipping",
					"provider", p.Name(), "network", network.String())
			}
			continue
		}

		list, err := p.GetActions(a.wallet)
		if err != nil {
			if _, ok := xerrors.From(err); ok {
				return nil, err
			}
			return nil, xerrors.Wrap(xerrors.CodeActionProvider, err, "failed to load actions",
				xerrors.WithMetadata("provider", p.Name()))
		}
		for _, act := range list {
			if owner, dup := seen[act.Name]; dup {
				return nil, xerrors.New(xerrors.CodeActionProvider, "duplicate action name "+act.Name,
					xerrors.WithMetadata("action", act.Name),
					xerrors.WithMetadata("provider", p.Name()),
					xerrors.WithMetadata("conflicts_with", owner))
			}
			seen[act.Name] = p.Name()
			actions = append(actions, act.Intercept(a.intercept))
		}
	}

	a.mu.Lock()
	a.skipped = skipped
	a.mu.Unlock()
	return actions, nil
}

// Skipped lists the providers left out by the last GetActions call.
func (a *Agent) Skipped() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.skipped...)
}

// Invoke resolves name against a fresh action list and runs it.
func (a *Agent) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	actions, err := a.GetActions(ctx)
	if err != nil {
		return "", err
	}
	for _, act := range actions {
		if act.Name != name {
			continue
		}
		if a.invokeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.invokeTimeout)
			defer cancel()
		}
		return act.Invoke(ctx, args)
	}
	return "", xerrors.New(xerrors.CodeAction, "unknown action "+name,
		xerrors.WithMetadata("action", name))
}

func (a *Agent) intercept(ctx context.Context, name string, args json.RawMessage, next action.InvokeFunc) (string, error) {
	started := time.Now()
	out, err := next(ctx, args)
	ev := InvocationEvent{
		Action:   name,
		Network:  a.Network(),
		Started:  started,
		Duration: time.Since(started),
		Err:      err,
	}
	a.record(ev)
	a.feed.Send(ev)
	return out, err
}

func (a *Agent) record(ev InvocationEvent) {
	attrs := []any{
		"action", ev.Action,
		"network", ev.Network.String(),
		"duration_ms", ev.Duration.Milliseconds(),
		"outcome", ev.Outcome(),
	}
	if ev.Err != nil {
		attrs = append(attrs, "error_code", string(xerrors.CodeOf(ev.Err)), "error", ev.Err.Error())
	}
	a.audit.Info("action invoked", attrs...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
