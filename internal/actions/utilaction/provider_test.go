package utilaction

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DenzelPenzel/ton-agent/internal/action"
	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
	"github.com/DenzelPenzel/ton-agent/internal/wallet"
	"github.com/DenzelPenzel/ton-agent/internal/wallet/wallettest"
)

func invoke(t *testing.T, p *Provider, wp wallet.Provider, name, args string) (string, error) {
	t.Helper()
	list, err := p.GetActions(wp)
	if err != nil {
		t.Fatalf("GetActions returned error: %v", err)
	}
	for _, a := range list {
		if a.Name == name {
			return a.Invoke(context.Background(), json.RawMessage(args))
		}
	}
	t.Fatalf("action %s not found", name)
	return "", nil
}

func TestConvert(t *testing.T) {
	p, err := NewProvider(nil, action.WithRegistry(action.NewRegistry()))
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	out, err := invoke(t, p, wallettest.New(0), ConvertTONUnits, `{"value":"2.5","from":"ton"}`)
	if err != nil || out != "2.5 TON = 2500000000 nanotons" {
		t.Fatalf("unexpected conversion %q %v", out, err)
	}
	out, err = invoke(t, p, wallettest.New(0), ConvertTONUnits, `{"value":"1000","from":"nanoton"}`)
	if err != nil || out != "0.000001 TON = 1000 nanotons" {
		t.Fatalf("unexpected conversion %q %v", out, err)
	}
	if _, err := invoke(t, p, wallettest.New(0), ConvertTONUnits, `{"value":"1","from":"gram"}`); !xerrors.Is(err, xerrors.CodeAction) {
		t.Fatalf("expected schema rejection, got %v", err)
	}
}

func TestExplorerLink(t *testing.T) {
	p, err := NewProvider(map[string]string{"testnet": "https://explorer.example/"}, action.WithRegistry(action.NewRegistry()))
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	wp := wallettest.New(0)

	out, err := invoke(t, p, wp, GetExplorerLink, `{}`)
	if err != nil || out != "Account: https://explorer.example/"+wp.Address() {
		t.Fatalf("unexpected link %q %v", out, err)
	}
	out, err = invoke(t, p, wp, GetExplorerLink, `{"transaction":"abcd"}`)
	if err != nil || out != "Transaction: https://explorer.example/transaction/abcd" {
		t.Fatalf("unexpected link %q %v", out, err)
	}
}

func TestSupportsNetwork(t *testing.T) {
	p, _ := NewProvider(nil, action.WithRegistry(action.NewRegistry()))
	if !p.SupportsNetwork(wallet.Mainnet) || !p.SupportsNetwork(wallet.Testnet) {
		t.Fatalf("default explorers should cover mainnet and testnet")
	}
	if p.SupportsNetwork(wallet.Network("devnet")) {
		t.Fatalf("unknown networks are unsupported")
	}
}

func TestProvidersKeepTheirOwnExplorers(t *testing.T) {
	a, err := NewProvider(map[string]string{"testnet": "https://a.example"})
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	b, err := NewProvider(map[string]string{"testnet": "https://b.example"})
	if err != nil {
		t.Fatalf("NewProvider returned error: %v", err)
	}
	wp := wallettest.New(0)

	out, err := invoke(t, a, wp, GetExplorerLink, `{"transaction":"ff"}`)
	if err != nil || out != "Transaction: https://a.example/transaction/ff" {
		t.Fatalf("first provider link %q %v", out, err)
	}
	out, err = invoke(t, b, wp, GetExplorerLink, `{"transaction":"ff"}`)
	if err != nil || out != "Transaction: https://b.example/transaction/ff" {
		t.Fatalf("second provider link %q %v", out, err)
	}
}
