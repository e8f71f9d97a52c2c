package ton

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonlib "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

// Backend is what a dialer hands to the factory: read access to account
// state plus a way to build the signing wallet.
type Backend struct {
	Chain      Chain
	NewAccount func(key ed25519.PrivateKey, workchain int8) (Account, error)
	Close      func()
}

// Dialer connects to the chain described by cfg.
type Dialer func(ctx context.Context, cfg Config) (*Backend, error)

// Dial connects to one liteserver. The connection is retried with a fixed
// delay; queries issued afterwards are not.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	pool := liteclient.NewConnectionPool()
	log := logger.Named("ton")

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	err := retry.Do(
		func() error {
			return pool.AddConnection(ctx, cfg.RPCEndpoint, cfg.RPCKey)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("liteserver connection failed, retrying",
				"endpoint", cfg.RPCEndpoint, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeWalletProvider, err, "failed to connect to liteserver",
			xerrors.WithMetadata("endpoint", cfg.RPCEndpoint))
	}

	api := tonlib.NewAPIClient(pool, tonlib.ProofCheckPolicyFast)
	return &Backend{
		Chain: liteChain{api: api},
		NewAccount: func(key ed25519.PrivateKey, workchain int8) (Account, error) {
			return newWallet(api, key, workchain)
		},
		Close: pool.Stop,
	}, nil
}

// newWallet builds a v4r2 wallet. Construction only derives the address and
// never queries api.
func newWallet(api wallet.TonAPI, key ed25519.PrivateKey, workchain int8) (*wallet.Wallet, error) {
	return wallet.FromPrivateKeyWithOptions(api, key, wallet.V4R2, wallet.WithWorkchain(workchain))
}

type liteChain struct {
	api *tonlib.APIClient
}

func (c liteChain) AccountState(ctx context.Context, addr *address.Address) (AccountState, error) {
	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return AccountState{}, err
	}
	acc, err := c.api.GetAccount(ctx, block, addr)
	if err != nil {
		return AccountState{}, err
	}

	state := AccountState{Status: "nonexist", Balance: new(big.Int)}
	if acc.IsActive && acc.State != nil {
		state.Status = string(acc.State.Status)
		state.Active = acc.State.Status == tlb.AccountStatusActive
		state.Balance = acc.State.Balance.Nano()
	}
	return state, nil
}
