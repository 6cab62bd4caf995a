// Package node provides the read-only facade over the Bitcoin Core JSON-RPC
// surface that the scanner and wallet builder depend on: tip height/hash,
// header lookup, block fetch, raw transaction fetch, fee estimation, and the
// watch-only wallet operations (import descriptor, next address, unspents,
// balances, rescan, sign-and-send). Any implementation of this capability
// set is a valid collaborator for the scanner and the builder.
package node

import (
	"context"
	"fmt"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// Adapter is the capability set the scanner and the wallet builder depend
// on. Failures surface as daemonerr.Node errors; the scanner retries them,
// the command path does not.
type Adapter interface {
	// Tip returns the current best height and hash.
	Tip(ctx context.Context) (height int64, hash string, err error)

	// Header returns the height and previous-block hash for a block hash.
	Header(ctx context.Context, hash string) (Header, error)

	// BlockAt returns the canonical block at height, with its transactions
	// and their output scripts in order.
	BlockAt(ctx context.Context, height int64) (BlockView, error)

	// RawTx returns the serialized bytes of a confirmed transaction.
	RawTx(ctx context.Context, txid string) ([]byte, error)

	// EstimateFeeRate returns the node's estimated fee rate in sat/vB.
	EstimateFeeRate(ctx context.Context) (int64, error)

	// ImportDescriptor imports a watch-only output descriptor covering
	// indices [0, rangeEnd] into the node's wallet.
	ImportDescriptor(ctx context.Context, descriptor string, rangeEnd int) error

	// NextAddress requests a fresh receive address from the node's wallet.
	NextAddress(ctx context.Context) (string, error)

	// ListUnspents returns spendable outputs with at least minConf
	// confirmations.
	ListUnspents(ctx context.Context, minConf int64) ([]UTXO, error)

	// Balances returns the watch-only wallet's confirmed and pending
	// balances.
	Balances(ctx context.Context) (Balances, error)

	// Rescan triggers a wallet rescan of the chain from fromHeight.
	Rescan(ctx context.Context, fromHeight int64) error

	// SignAndSend unlocks the node's wallet with passphrase, signs rawTx,
	// broadcasts it, and returns the resulting txid.
	SignAndSend(ctx context.Context, rawTx []byte, passphrase string) (string, error)

	// NetworkName reports the network the connected node serves
	// (mainnet|testnet|signet|regtest), for WalletState.network validation.
	NetworkName(ctx context.Context) (string, error)

	// Close releases the underlying RPC connection.
	Close() error
}

// BitcoinCoreAdapter implements Adapter over a single bitcoind node reached
// through an RPCClient.
type BitcoinCoreAdapter struct {
	client RPCClient

	// walletUnlockSecs bounds how long walletpassphrase keeps the wallet
	// unlocked before SignAndSend re-locks it explicitly.
	walletUnlockSecs int
}

// NewBitcoinCoreAdapter wraps client into a BitcoinCoreAdapter.
func NewBitcoinCoreAdapter(client RPCClient) *BitcoinCoreAdapter {
	return &BitcoinCoreAdapter{client: client, walletUnlockSecs: 30}
}

func (a *BitcoinCoreAdapter) Tip(ctx context.Context) (int64, string, error) {
	height, err := getBlockCount(ctx, a.client)
	if err != nil {
		return 0, "", err
	}
	hash, err := getBestBlockHash(ctx, a.client)
	if err != nil {
		return 0, "", err
	}
	return height, hash, nil
}

func (a *BitcoinCoreAdapter) Header(ctx context.Context, hash string) (Header, error) {
	return getBlockHeader(ctx, a.client, hash)
}

func (a *BitcoinCoreAdapter) BlockAt(ctx context.Context, height int64) (BlockView, error) {
	hash, err := getBlockHash(ctx, a.client, height)
	if err != nil {
		return BlockView{}, err
	}
	return getBlockVerbose2(ctx, a.client, hash)
}

func (a *BitcoinCoreAdapter) RawTx(ctx context.Context, txid string) ([]byte, error) {
	return getRawTransaction(ctx, a.client, txid)
}

func (a *BitcoinCoreAdapter) EstimateFeeRate(ctx context.Context) (int64, error) {
	const defaultConfTarget = 3
	return estimateSmartFee(ctx, a.client, defaultConfTarget)
}

func (a *BitcoinCoreAdapter) ImportDescriptor(ctx context.Context, descriptor string, rangeEnd int) error {
	return importDescriptor(ctx, a.client, descriptor, rangeEnd)
}

func (a *BitcoinCoreAdapter) NextAddress(ctx context.Context) (string, error) {
	return getNewAddress(ctx, a.client, "", "bech32")
}

func (a *BitcoinCoreAdapter) ListUnspents(ctx context.Context, minConf int64) ([]UTXO, error) {
	return listUnspent(ctx, a.client, minConf)
}

func (a *BitcoinCoreAdapter) Balances(ctx context.Context) (Balances, error) {
	return getBalances(ctx, a.client)
}

func (a *BitcoinCoreAdapter) Rescan(ctx context.Context, fromHeight int64) error {
	return rescanBlockchain(ctx, a.client, fromHeight)
}

func (a *BitcoinCoreAdapter) SignAndSend(ctx context.Context, rawTx []byte, passphrase string) (string, error) {
	if err := walletPassphrase(ctx, a.client, passphrase, a.walletUnlockSecs); err != nil {
		return "", err
	}
	defer func() { _ = walletLock(ctx, a.client) }()

	unsignedHex := fmt.Sprintf("%x", rawTx)
	signedHex, err := signRawTransactionWithWallet(ctx, a.client, unsignedHex)
	if err != nil {
		return "", err
	}
	txid, err := sendRawTransaction(ctx, a.client, signedHex)
	if err != nil {
		return "", err
	}
	return txid, nil
}

func (a *BitcoinCoreAdapter) NetworkName(ctx context.Context) (string, error) {
	info, err := getBlockchainInfo(ctx, a.client)
	if err != nil {
		return "", err
	}
	switch info.Chain {
	case "main":
		return "mainnet", nil
	case "test":
		return "testnet", nil
	case "signet":
		return "signet", nil
	case "regtest":
		return "regtest", nil
	default:
		return "", daemonerr.New(daemonerr.Node, "node reported unrecognized chain name "+info.Chain, nil)
	}
}

func (a *BitcoinCoreAdapter) Close() error {
	return a.client.Close()
}
