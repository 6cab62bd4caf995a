package keyprovider

import (
	"crypto/rand"

	"github.com/tyler-smith/go-bip39"
	"github.com/tyler-smith/go-bip39/wordlists"

	"github.com/brc721/brc721d/internal/daemonerr"
)

const mnemonicEntropyBits = 256 // 24 words

func init() {
	bip39.SetWordList(wordlists.English)
}

// GenerateMnemonic implements KeyProvider.
func (p *Default) GenerateMnemonic() (string, error) {
	entropy := make([]byte, mnemonicEntropyBits/8)
	if _, err := rand.Read(entropy); err != nil {
		return "", daemonerr.New(daemonerr.Config, "generate mnemonic entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", daemonerr.New(daemonerr.Config, "build mnemonic", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic implements KeyProvider.
func (p *Default) ValidateMnemonic(mnemonic string) error {
	if mnemonic == "" {
		return daemonerr.New(daemonerr.Config, "mnemonic must not be empty", nil)
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return daemonerr.New(daemonerr.Config, "mnemonic failed checksum or wordlist validation", nil)
	}
	return nil
}

func seedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, daemonerr.New(daemonerr.Config, "invalid mnemonic", nil)
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}
