package action

import (
	"context"
	"encoding/json"

	"github.com/DenzelPenzel/ton-agent/internal/wallet"
)

// Define declares a wallet-bound action whose arguments decode into T. A nil
// fn leaves the handler unset so the owning provider fails at setup.
func Define[T any](name, description string, fn func(ctx context.Context, wp wallet.Provider, args T) (string, error)) Metadata {
	md := Metadata{
		Name:                   name,
		Description:            description,
		Schema:                 MustSchemaFor[T](),
		RequiresWalletProvider: true,
	}
	if fn == nil {
		return md
	}
	md.Handler = func(ctx context.Context, wp wallet.Provider, raw json.RawMessage) (string, error) {
		var args T
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", actionError(name, err, "failed to decode arguments")
		}
		return fn(ctx, wp, args)
	}
	return md
}

// DefineStatic declares an action that needs no wallet provider.
func DefineStatic[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) Metadata {
	md := Metadata{
		Name:        name,
		Description: description,
		Schema:      MustSchemaFor[T](),
	}
	if fn == nil {
		return md
	}
	md.Handler = func(ctx context.Context, _ wallet.Provider, raw json.RawMessage) (string, error) {
		var args T
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", actionError(name, err, "failed to decode arguments")
		}
		return fn(ctx, args)
	}
	return md
}
