// Package ton implements wallet.Provider for a v4r2 TON wallet reached
// through a liteserver.
package ton

import (
	"context"
	"encoding/hex"
	"log/slog"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	tonlib "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	walletpkg "github.com/DenzelPenzel/ton-agent/internal/wallet"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// ProviderName identifies this provider in reports.
const ProviderName = "ton_wallet_provider"

// AccountState is the slice of on-chain account data the provider reads.
type AccountState struct {
	Active  bool
	Status  string
	Balance *big.Int
}

// Chain reads account state from the network.
type Chain interface {
	AccountState(ctx context.Context, addr *address.Address) (AccountState, error)
}

// Account is the signing wallet. *wallet.Wallet satisfies it.
type Account interface {
	WalletAddress() *address.Address
	BuildTransfer(to *address.Address, amount tlb.Coins, bounce bool, comment string) (*wallet.Message, error)
	SendWaitTransaction(ctx context.Context, msg *wallet.Message) (*tlb.Transaction, *tonlib.BlockIDExt, error)
}

// Provider is a TON wallet bound to one network.
type Provider struct {
	chain   Chain
	account Account
	network walletpkg.Network
	address string
	log     *slog.Logger
}

var _ walletpkg.Provider = (*Provider)(nil)

// ProviderOption customises a Provider.
type ProviderOption func(*Provider)

// WithNetwork sets the network tag. Defaults to testnet.
func WithNetwork(network walletpkg.Network) ProviderOption {
	return func(p *Provider) {
		p.network = network
	}
}

// WithLogger overrides the component logger.
func WithLogger(log *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if log != nil {
			p.log = log
		}
	}
}

// NewProvider wraps a chain reader and a signing account.
func NewProvider(chain Chain, account Account, opts ...ProviderOption) (*Provider, error) {
	if chain == nil || account == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "chain and account are required")
	}
	addr := account.WalletAddress()
	if addr == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "account has no address")
	}
	p := &Provider{
		chain:   chain,
		account: account,
		network: walletpkg.Testnet,
		address: addr.String(),
		log:     logger.Named("wallet"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) Address() string { return p.address }

func (p *Provider) Network() walletpkg.Network { return p.network }

// Balance reads the balance from the chain on every call.
func (p *Provider) Balance(ctx context.Context) (*big.Int, error) {
	state, err := p.chain.AccountState(ctx, p.account.WalletAddress())
	if err != nil {
		return nil, p.providerError(err, "failed to read wallet balance")
	}
	if state.Balance == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(state.Balance), nil
}

// NativeTransfer signs and submits a transfer, waiting for the resulting
// transaction. It is never retried here.
func (p *Provider) NativeTransfer(ctx context.Context, destination string, amount *big.Int) (string, error) {
	to, err := ParseAddress(destination)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeWalletProvider, err, "invalid destination address",
			xerrors.WithRetryable(false),
			xerrors.WithAlert(false),
			xerrors.WithMetadata("destination", destination))
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", xerrors.New(xerrors.CodeWalletProvider, "transfer amount must be positive",
			xerrors.WithRetryable(false),
			xerrors.WithAlert(false))
	}

	msg, err := p.account.BuildTransfer(to, tlb.FromNanoTON(amount), to.IsBounceable(), "")
	if err != nil {
		return "", p.providerError(err, "failed to sign transfer", xerrors.WithRetryable(false))
	}
	tx, _, err := p.account.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", p.providerError(err, "failed to submit transfer", xerrors.WithRetryable(false))
	}

	hash := txHash(tx)
	p.log.Info("transfer submitted", "to", to.String(), "nanotons", amount.String(), "tx", hash)
	return hash, nil
}

// IsDeployed reports whether the wallet contract is active.
func (p *Provider) IsDeployed(ctx context.Context) (bool, error) {
	state, err := p.chain.AccountState(ctx, p.account.WalletAddress())
	if err != nil {
		return false, p.providerError(err, "failed to read account state")
	}
	return state.Active, nil
}

// Deploy publishes the wallet contract with a zero-value message to itself.
// The state init is attached by the wallet while the account is inactive.
// A failed submission is never retried here; the message may have landed.
func (p *Provider) Deploy(ctx context.Context) (string, error) {
	deployed, err := p.IsDeployed(ctx)
	if err != nil {
		return "", err
	}
	if deployed {
		return walletpkg.AlreadyDeployed, nil
	}

	msg, err := p.account.BuildTransfer(p.account.WalletAddress(), tlb.ZeroCoins, false, "")
	if err != nil {
		return "", p.providerError(err, "failed to sign deployment", xerrors.WithRetryable(false))
	}
	tx, _, err := p.account.SendWaitTransaction(ctx, msg)
	if err != nil {
		return "", p.providerError(err, "failed to submit deployment", xerrors.WithRetryable(false))
	}

	hash := txHash(tx)
	p.log.Info("wallet deployed", "address", p.address, "tx", hash)
	return hash, nil
}

func (p *Provider) providerError(cause error, message string, opts ...xerrors.Option) error {
	opts = append(opts,
		xerrors.WithMetadata("address", p.address),
		xerrors.WithMetadata("network", p.network.String()))
	return xerrors.Wrap(xerrors.CodeWalletProvider, cause, message, opts...)
}

// ParseAddress accepts user-friendly and raw ("0:<hex>") addresses.
func ParseAddress(value string) (*address.Address, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ":") {
		return address.ParseRawAddr(value)
	}
	return address.ParseAddr(value)
}

func txHash(tx *tlb.Transaction) string {
	if tx == nil {
		return ""
	}
	return hex.EncodeToString(tx.Hash)
}
