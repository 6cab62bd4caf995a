package keyprovider

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// Default is the concrete KeyProvider: BIP-39 mnemonics over BIP-32
// hierarchical deterministic keys, deriving standard BIP-44 P2WPKH
// addresses (m/44'/<coin>'/0'/<change>/<index>).
type Default struct{}

// NewDefault builds the default KeyProvider.
func NewDefault() *Default {
	return &Default{}
}

func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, daemonerr.New(daemonerr.Config, "unsupported network "+network, nil)
	}
}

// AccountXpub implements KeyProvider. It derives m/44'/<coin>'/0' from the
// mnemonic's seed and returns the neutered (public-only) extended key.
func (p *Default) AccountXpub(mnemonic, passphrase, network string) (string, error) {
	if err := p.ValidateMnemonic(mnemonic); err != nil {
		return "", err
	}
	params, err := networkParams(network)
	if err != nil {
		return "", err
	}
	coin, err := coinType(network)
	if err != nil {
		return "", err
	}

	seed, err := seedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return "", err
	}

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return "", daemonerr.New(daemonerr.Config, "derive master key", err)
	}

	account, err := derivePath(master, []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + coin,
		hdkeychain.HardenedKeyStart + 0,
	})
	if err != nil {
		return "", err
	}

	pub, err := account.Neuter()
	if err != nil {
		return "", daemonerr.New(daemonerr.Config, "neuter account key", err)
	}
	return pub.String(), nil
}

// DeriveAddress implements KeyProvider. change selects the 0 (receive) or 1
// (change) branch below the account xpub; index is the address index.
func (p *Default) DeriveAddress(xpub string, change bool, index uint32, network string) (string, error) {
	params, err := networkParams(network)
	if err != nil {
		return "", err
	}

	account, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", daemonerr.New(daemonerr.Config, "parse account xpub", err)
	}
	account.SetNet(params)

	changeIdx := uint32(0)
	if change {
		changeIdx = 1
	}

	leaf, err := derivePath(account, []uint32{changeIdx, index})
	if err != nil {
		return "", err
	}

	pubKey, err := leaf.ECPubKey()
	if err != nil {
		return "", daemonerr.New(daemonerr.Config, "extract public key", err)
	}

	witnessProg := btcutil.Hash160(pubKey.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(witnessProg, params)
	if err != nil {
		return "", daemonerr.New(daemonerr.Config, "build P2WPKH address", err)
	}
	return addr.EncodeAddress(), nil
}

func derivePath(key *hdkeychain.ExtendedKey, indices []uint32) (*hdkeychain.ExtendedKey, error) {
	current := key
	for _, idx := range indices {
		child, err := current.Derive(idx)
		if err != nil {
			return nil, daemonerr.New(daemonerr.Config, "derive child key", err)
		}
		current = child
	}
	return current, nil
}
