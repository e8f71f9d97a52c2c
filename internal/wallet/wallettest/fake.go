// Package wallettest provides an in-memory wallet.Provider for tests.
package wallettest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

// Transfer records one NativeTransfer call.
type Transfer struct {
	Destination string
	Amount      *big.Int
}

// Wallet is a scriptable wallet.Provider.
type Wallet struct {
	mu sync.Mutex

	AddressValue string
	NetworkValue wallet.Network
	BalanceValue *big.Int
	Deployed     bool

	BalanceErr  error
	TransferErr error
	DeployErr   error

	Transfers   []Transfer
	DeployCalls int
	txCounter   int
}

var _ wallet.Provider = (*Wallet)(nil)

// New returns a deployed testnet wallet holding balance nanotons.
func New(balance int64) *Wallet {
	return &Wallet{
		AddressValue: "EQTestWalletAddress",
		NetworkValue: wallet.Testnet,
		BalanceValue: big.NewInt(balance),
		Deployed:     true,
	}
}

func (w *Wallet) Name() string { return "test_wallet" }

func (w *Wallet) Address() string { return w.AddressValue }

func (w *Wallet) Network() wallet.Network { return w.NetworkValue }

func (w *Wallet) Balance(context.Context) (*big.Int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.BalanceErr != nil {
		return nil, w.BalanceErr
	}
	if w.BalanceValue == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(w.BalanceValue), nil
}

func (w *Wallet) NativeTransfer(_ context.Context, destination string, amount *big.Int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.TransferErr != nil {
		return "", w.TransferErr
	}
	w.Transfers = append(w.Transfers, Transfer{Destination: destination, Amount: new(big.Int).Set(amount)})
	w.txCounter++
	return fmt.Sprintf("tx%04d", w.txCounter), nil
}

func (w *Wallet) IsDeployed(context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Deployed, nil
}

func (w *Wallet) Deploy(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.DeployErr != nil {
		return "", w.DeployErr
	}
	if w.Deployed {
		return wallet.AlreadyDeployed, nil
	}
	w.DeployCalls++
	w.Deployed = true
	w.txCounter++
	return fmt.Sprintf("tx%04d", w.txCounter), nil
}
