package ton

import (
	"crypto/ed25519"
	"strings"

	"github.com/cosmos/go-bip39"
	"github.com/xssnick/tonutils-go/ton/wallet"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// MnemonicFormat selects how mnemonic words become an ed25519 key.
type MnemonicFormat string

const (
	// MnemonicTON is the native 24-word TON derivation.
	MnemonicTON MnemonicFormat = "ton"
	// MnemonicBIP39 accepts standard BIP39 phrases.
	MnemonicBIP39 MnemonicFormat = "bip39"
)

// DeriveKey turns a space separated mnemonic into the wallet's private key.
func DeriveKey(mnemonic string, format MnemonicFormat) (ed25519.PrivateKey, error) {
	words := strings.Fields(mnemonic)
	if len(words) == 0 {
		return nil, xerrors.New(xerrors.CodeConfiguration, "mnemonic is required",
			xerrors.WithMetadata("field", "mnemonic"))
	}

	switch format {
	case "", MnemonicTON:
		key, err := wallet.SeedToPrivateKey(words, "", false)
		if err != nil {
			return nil, invalidMnemonic(err, MnemonicTON)
		}
		return key, nil
	case MnemonicBIP39:
		if !bip39.IsMnemonicValid(strings.Join(words, " ")) {
			return nil, xerrors.New(xerrors.CodeConfiguration, "mnemonic is not a valid bip39 phrase",
				xerrors.WithMetadata("field", "mnemonic"))
		}
		key, err := wallet.SeedToPrivateKey(words, "", true)
		if err != nil {
			return nil, invalidMnemonic(err, MnemonicBIP39)
		}
		return key, nil
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "unsupported mnemonic format "+string(format),
			xerrors.WithMetadata("field", "mnemonic_format"))
	}
}

func invalidMnemonic(err error, format MnemonicFormat) error {
	return xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to derive key from mnemonic",
		xerrors.WithMetadata("field", "mnemonic"),
		xerrors.WithMetadata("format", string(format)))
}
