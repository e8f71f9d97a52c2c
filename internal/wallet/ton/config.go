package ton

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	walletpkg "github.com/DenzelPenzel/ton-agent/internal/wallet"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// Config carries everything needed to build a wallet provider.
type Config struct {
	// RPCEndpoint is the liteserver "host:port".
	RPCEndpoint string
	// RPCKey is the liteserver's base64 ed25519 public key.
	RPCKey         string
	Mnemonic       string
	MnemonicFormat MnemonicFormat
	Workchain      int8
	Network        walletpkg.Network

	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// Validate checks required fields in a fixed order.
func (c Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"rpc_endpoint", c.RPCEndpoint},
		{"rpc_key", c.RPCKey},
		{"mnemonic", c.Mnemonic},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return xerrors.New(xerrors.CodeConfiguration, r.field+" is required",
				xerrors.WithMetadata("field", r.field))
		}
	}
	if c.Workchain != 0 && c.Workchain != -1 {
		return xerrors.New(xerrors.CodeConfiguration, "workchain must be 0 or -1",
			xerrors.WithMetadata("field", "workchain"))
	}
	return nil
}

type factoryOptions struct {
	dialer Dialer
	log    *slog.Logger
}

// Option customises ConfigureWithWallet.
type Option func(*factoryOptions)

// WithDialer replaces the liteserver dialer.
func WithDialer(d Dialer) Option {
	return func(o *factoryOptions) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithFactoryLogger sets the logger handed to the provider.
func WithFactoryLogger(log *slog.Logger) Option {
	return func(o *factoryOptions) {
		o.log = log
	}
}

// ConfigureWithWallet validates cfg, derives the key, connects and returns a
// provider. Nothing touches the network until validation and key derivation
// have succeeded.
func ConfigureWithWallet(ctx context.Context, cfg Config, opts ...Option) (*Provider, func(), error) {
	options := factoryOptions{dialer: Dial, log: logger.Named("wallet")}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Network == "" {
		cfg.Network = walletpkg.Testnet
	}

	key, err := DeriveKey(cfg.Mnemonic, cfg.MnemonicFormat)
	if err != nil {
		return nil, nil, err
	}

	backend, err := options.dialer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if backend.Close != nil {
			backend.Close()
		}
	}

	account, err := backend.NewAccount(key, cfg.Workchain)
	if err != nil {
		closeFn()
		return nil, nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to build wallet")
	}

	provider, err := NewProvider(backend.Chain, account,
		WithNetwork(cfg.Network),
		WithLogger(options.log))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	options.log.Info("wallet configured",
		"address", provider.Address(),
		"network", provider.Network().String(),
		"workchain", cfg.Workchain)
	return provider, closeFn, nil
}
