// Package walletaction exposes the wallet basics to agents: inspecting the
// wallet, sending TON and deploying the wallet contract.
package walletaction

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/xssnick/tonutils-go/tlb"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

// Owner keys the wallet actions in a registry.
const Owner action.Owner = "wallet_action_provider"

// ProviderName is the provider's display name.
const ProviderName = "wallet"

const (
	GetWalletDetails     = "get_wallet_details"
	TransferTON          = "transfer_ton"
	EnsureWalletDeployed = "ensure_wallet_deployed"
)

// Provider serves every network.
type Provider struct {
	*action.Base
}

// NewProvider registers the wallet actions and returns the provider.
func NewProvider(opts ...action.BaseOption) (*Provider, error) {
	base, err := action.NewBase(ProviderName, Owner, opts...)
	if err != nil {
		return nil, err
	}
	for _, md := range declarations() {
		base.Registry().Register(Owner, md.Name, md)
	}
	return &Provider{Base: base}, nil
}

func (p *Provider) SupportsNetwork(wallet.Network) bool { return true }

// GetWalletDetailsArgs takes no input.
type GetWalletDetailsArgs struct{}

// TransferArgs describes a native TON transfer.
type TransferArgs struct {
	To     string `json:"to" jsonschema:"description=Destination address in user-friendly or raw form"`
	Amount string `json:"amount" jsonschema:"description=Amount in TON as a decimal string such as 0.5"`
}

// EnsureDeployedArgs takes no input.
type EnsureDeployedArgs struct{}

func declarations() []action.Metadata {
	return []action.Metadata{
		action.Define[GetWalletDetailsArgs](GetWalletDetails,
			"Get details about the agent's wallet: provider, address, network, deployment state and native balance.",
			getWalletDetails),
		action.Define[TransferArgs](TransferTON,
			"Transfer native TON from the agent's wallet to a destination address. The amount is given in whole TON.",
			transferTON),
		action.Define[EnsureDeployedArgs](EnsureWalletDeployed,
			"Deploy the agent's wallet contract if it is not deployed yet.",
			ensureWalletDeployed),
	}
}

func getWalletDetails(ctx context.Context, wp wallet.Provider, _ GetWalletDetailsArgs) (string, error) {
	balance, err := wp.Balance(ctx)
	if err != nil {
		return "", err
	}
	deployed, err := wp.IsDeployed(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Wallet Details:\n")
	fmt.Fprintf(&b, "- Provider: %s\n", wp.Name())
	fmt.Fprintf(&b, "- Address: %s\n", wp.Address())
	fmt.Fprintf(&b, "- Network: %s\n", wp.Network())
	fmt.Fprintf(&b, "- Deployed: %t\n", deployed)
	fmt.Fprintf(&b, "- Native Balance: %s TON (%s nanotons)", formatTON(balance), balance.String())
	return b.String(), nil
}

func transferTON(ctx context.Context, wp wallet.Provider, args TransferArgs) (string, error) {
	amount, err := parseTON(args.Amount)
	if err != nil {
		return "", err
	}
	hash, err := wp.NativeTransfer(ctx, args.To, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transferred %s TON to %s.\nTransaction hash: %s", formatTON(amount), args.To, hash), nil
}

func ensureWalletDeployed(ctx context.Context, wp wallet.Provider, _ EnsureDeployedArgs) (string, error) {
	hash, err := wp.Deploy(ctx)
	if err != nil {
		return "", err
	}
	if hash == wallet.AlreadyDeployed {
		return fmt.Sprintf("Wallet %s is already deployed on %s.", wp.Address(), wp.Network()), nil
	}
	return fmt.Sprintf("Deployed wallet %s on %s.\nTransaction hash: %s", wp.Address(), wp.Network(), hash), nil
}

func parseTON(value string) (*big.Int, error) {
	coins, err := tlb.FromTON(strings.TrimSpace(value))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAction, err, "invalid TON amount "+value,
			xerrors.WithMetadata("action", TransferTON))
	}
	nano := coins.Nano()
	if nano.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeAction, "amount must be greater than zero",
			xerrors.WithMetadata("action", TransferTON))
	}
	return nano, nil
}

func formatTON(nano *big.Int) string {
	return tlb.FromNanoTON(nano).String()
}
