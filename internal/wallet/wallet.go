// Package wallet defines the chain-agnostic contract every wallet provider
// satisfies. Actions depend on this contract only.
package wallet

import (
	"context"
	"math/big"
	"strings"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// Network tags the chain a wallet lives on.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// AlreadyDeployed is returned by Deploy instead of a transaction hash when
// the wallet contract is already active.
const AlreadyDeployed = "already deployed"

// ParseNetwork accepts a case-insensitive network tag.
func ParseNetwork(value string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(value))) {
	case Mainnet:
		return Mainnet, nil
	case Testnet:
		return Testnet, nil
	}
	return "", xerrors.New(xerrors.CodeConfiguration, "unsupported network "+value,
		xerrors.WithMetadata("field", "network"))
}

func (n Network) String() string { return string(n) }

// Provider is a single signing wallet bound to one network.
type Provider interface {
	Name() string
	Address() string
	Network() Network
	// Balance returns the live balance in nanotons.
	Balance(ctx context.Context) (*big.Int, error)
	// NativeTransfer sends amount nanotons to destination and returns the
	// transaction hash.
	NativeTransfer(ctx context.Context, destination string, amount *big.Int) (string, error)
	IsDeployed(ctx context.Context) (bool, error)
	// Deploy returns the deployment transaction hash, or AlreadyDeployed.
	Deploy(ctx context.Context) (string, error)
}
