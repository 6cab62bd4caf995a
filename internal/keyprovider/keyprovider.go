// Package keyprovider implements the mnemonic/BIP32 boundary the wallet
// depends on: mnemonic generation and validation, and derivation of the
// account-level extended public key and receive/change addresses from it.
// The wallet never sees private key material — KeyProvider only ever hands
// back public keys and addresses; signing is delegated to the node.
package keyprovider

import (
	"fmt"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// KeyProvider is the boundary between the wallet and BIP-39/BIP-32 key
// material. Default is the concrete implementation; tests may supply a
// fake that returns deterministic addresses.
type KeyProvider interface {
	// GenerateMnemonic returns a fresh 24-word BIP-39 mnemonic.
	GenerateMnemonic() (string, error)

	// ValidateMnemonic reports whether mnemonic is a well-formed BIP-39
	// phrase (correct wordlist membership and checksum).
	ValidateMnemonic(mnemonic string) error

	// AccountXpub derives the account-level extended public key at
	// m/44'/<coin>'/0' for the given network, from mnemonic and optional
	// passphrase.
	AccountXpub(mnemonic, passphrase, network string) (string, error)

	// DeriveAddress derives the P2WPKH address at the given change/index
	// position below an account xpub produced by AccountXpub.
	DeriveAddress(xpub string, change bool, index uint32, network string) (string, error)
}

// coinType returns the BIP44 coin type for a network name.
func coinType(network string) (uint32, error) {
	switch network {
	case "mainnet":
		return 0, nil
	case "testnet", "signet", "regtest":
		return 1, nil
	default:
		return 0, daemonerr.New(daemonerr.Config, fmt.Sprintf("unsupported network %q", network), nil)
	}
}
