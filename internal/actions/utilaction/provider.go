// Package utilaction holds helper actions that make wallet output easier to
// act on: unit conversion and block explorer links.
package utilaction

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

const Owner action.Owner = "utility_action_provider"

const ProviderName = "utility"

const (
	ConvertTONUnits = "convert_ton_units"
	GetExplorerLink = "get_explorer_link"
)

// DefaultExplorers is used for networks missing from the configuration.
var DefaultExplorers = map[wallet.Network]string{
	wallet.Mainnet: "https://tonviewer.com",
	wallet.Testnet: "https://testnet.tonviewer.com",
}

// Provider serves the networks it has an explorer for.
type Provider struct {
	*action.Base
	explorers map[wallet.Network]string
}

// NewProvider registers the utility actions. explorers overrides DefaultExplorers per network.
func NewProvider(explorers map[string]string, opts ...action.BaseOption) (*Provider, error) {
	base, err := action.NewBase(ProviderName, Owner, opts...)
	if err != nil {
		return nil, err
	}
	p := &Provider{Base: base, explorers: make(map[wallet.Network]string)}
	for n, url := range DefaultExplorers {
		p.explorers[n] = url
	}
	for n, url := range explorers {
		if url = strings.TrimRight(strings.TrimSpace(url), "/"); url != "" {
			p.explorers[wallet.Network(strings.ToLower(n))] = url
		}
	}
	for _, md := range p.declarations() {
		base.Registry().Register(Owner, md.Name, md)
	}
	return p, nil
}

func (p *Provider) SupportsNetwork(n wallet.Network) bool {
	_, ok := p.explorers[n]
	return ok
}

// ConvertArgs converts between TON and nanotons.
type ConvertArgs struct {
	Value string `json:"value" jsonschema:"description=Amount to convert"`
	From  string `json:"from" jsonschema:"enum=ton,enum=nanoton,description=Unit of value"`
}

// ExplorerArgs selects what to link. With neither field set the wallet
// itself is linked.
type ExplorerArgs struct {
	Address     string `json:"address,omitempty" jsonschema:"description=Account address to open"`
	Transaction string `json:"transaction,omitempty" jsonschema:"description=Transaction hash to open"`
}

func (p *Provider) declarations() []action.Metadata {
	return []action.Metadata{
		action.DefineStatic[ConvertArgs](ConvertTONUnits,
			"Convert an amount between TON and nanotons (1 TON = 1000000000 nanotons).",
			convert),
		action.Define[ExplorerArgs](GetExplorerLink,
			"Build a block explorer link for the agent's wallet, another address or a transaction hash.",
			p.explorerLink),
	}
}

func convert(_ context.Context, args ConvertArgs) (string, error) {
	value := strings.TrimSpace(args.Value)
	var coins tlb.Coins
	var err error
	switch args.From {
	case "ton":
		coins, err = tlb.FromTON(value)
	case "nanoton":
		nano, ok := new(big.Int).SetString(value, 10)
		if !ok || nano.Sign() < 0 {
			err = fmt.Errorf("not a non-negative integer")
		}
		if err == nil {
			coins = tlb.FromNanoTON(nano)
		}
	}
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeAction, err, "invalid amount "+value,
			xerrors.WithMetadata("action", ConvertTONUnits))
	}
	return fmt.Sprintf("%s TON = %s nanotons", coins.String(), coins.Nano().String()), nil
}

func (p *Provider) explorerLink(_ context.Context, wp wallet.Provider, args ExplorerArgs) (string, error) {
	base, ok := p.explorers[wp.Network()]
	if !ok {
		return "", xerrors.New(xerrors.CodeAction, "no explorer configured for "+wp.Network().String(),
			xerrors.WithMetadata("action", GetExplorerLink))
	}
	if tx := strings.TrimSpace(args.Transaction); tx != "" {
		return fmt.Sprintf("Transaction: %s/transaction/%s", base, tx), nil
	}
	addr := strings.TrimSpace(args.Address)
	if addr == "" {
		addr = wp.Address()
	}
	return fmt.Sprintf("Account: %s/%s", base, addr), nil
}
