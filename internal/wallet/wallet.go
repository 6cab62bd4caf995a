package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/brc721/brc721d/internal/daemonerr"
	"github.com/brc721/brc721d/internal/keyprovider"
	"github.com/brc721/brc721d/internal/node"
	"github.com/brc721/brc721d/internal/obs"
	"github.com/brc721/brc721d/internal/store"
)

// descriptorRangeEnd bounds the initial descriptor import range handed to
// the node's watch-only wallet; next_address simply keeps advancing past
// it, and callers re-import with a wider range if they ever need to.
const descriptorRangeEnd = 1000

// Wallet implements the watch-only init/next_address/balance/rescan and the
// register_collection/send_amount transaction paths. It never touches
// private key material: KeyProvider only yields public data, and signing is
// delegated to the node's own wallet via Adapter.SignAndSend.
type Wallet struct {
	adapter node.Adapter
	store   *store.Store
	keys    keyprovider.KeyProvider
	log     *logrus.Logger
	metrics *obs.Metrics
	audit   *obs.AuditLog
}

// New builds a Wallet.
func New(adapter node.Adapter, st *store.Store, keys keyprovider.KeyProvider, log *logrus.Logger, metrics *obs.Metrics, audit *obs.AuditLog) *Wallet {
	return &Wallet{adapter: adapter, store: st, keys: keys, log: log, metrics: metrics, audit: audit}
}

func (w *Wallet) recordAudit(operation string, err error, detail string) {
	if w.audit == nil {
		return
	}
	entry := obs.AuditEntry{Operation: operation, Detail: detail}
	if err != nil {
		entry.Status = "failure"
		entry.FailureReason = err.Error()
	} else {
		entry.Status = "success"
	}
	if auditErr := w.audit.Record(entry); auditErr != nil {
		w.log.WithError(auditErr).Warn("wallet: failed to write audit entry")
	}
}

// Init derives the account xpub from mnemonic, persists WalletState,
// imports the corresponding receive/change descriptors into the node's
// watch-only wallet, and optionally rescans. Re-invoking with the same
// mnemonic is a no-op beyond re-importing the (idempotent) descriptors.
func (w *Wallet) Init(ctx context.Context, mnemonic, passphrase string, rescan bool) (err error) {
	defer func() { w.recordAudit("wallet_init", err, "") }()

	if err = w.keys.ValidateMnemonic(mnemonic); err != nil {
		return err
	}
	network, err := w.adapter.NetworkName(ctx)
	if err != nil {
		return err
	}
	xpub, err := w.keys.AccountXpub(mnemonic, passphrase, network)
	if err != nil {
		return err
	}

	existing, err := w.store.WalletLoad(ctx)
	if err != nil {
		return err
	}
	if existing != nil && existing.Network == network && existing.AccountXpub == xpub {
		w.log.Info("wallet: init is a no-op, wallet state already matches")
	} else {
		if err = w.store.WalletSave(ctx, store.WalletState{
			Network:     network,
			AccountXpub: xpub,
		}); err != nil {
			return err
		}
	}

	if err = w.adapter.ImportDescriptor(ctx, receiveDescriptor(xpub), descriptorRangeEnd); err != nil {
		return err
	}
	if err = w.adapter.ImportDescriptor(ctx, changeDescriptor(xpub), descriptorRangeEnd); err != nil {
		return err
	}

	if rescan {
		if err = w.adapter.Rescan(ctx, 0); err != nil {
			return err
		}
	}
	return nil
}

func receiveDescriptor(xpub string) string { return fmt.Sprintf("wpkh(%s/0/*)", xpub) }
func changeDescriptor(xpub string) string  { return fmt.Sprintf("wpkh(%s/1/*)", xpub) }

// NextAddress derives the address at next_receive_index and then persists
// the advanced counter before returning the address to the caller. The
// counter moves only after both succeed — a derivation error or a crash
// before the commit leaves it unchanged and re-issues the same address on
// retry.
func (w *Wallet) NextAddress(ctx context.Context) (addr string, err error) {
	defer func() { w.recordAudit("next_address", err, addr) }()

	ws, err := w.requireWallet(ctx)
	if err != nil {
		return "", err
	}
	derived, err := w.keys.DeriveAddress(ws.AccountXpub, false, ws.NextReceiveIndex, ws.Network)
	if err != nil {
		return "", err
	}
	if _, err = w.store.AdvanceReceiveIndex(ctx); err != nil {
		return "", err
	}
	return derived, nil
}

// Balance projects the node adapter's confirmed/pending balances.
func (w *Wallet) Balance(ctx context.Context) (store.WalletState, node.Balances, error) {
	ws, err := w.requireWallet(ctx)
	if err != nil {
		return store.WalletState{}, node.Balances{}, err
	}
	bal, err := w.adapter.Balances(ctx)
	return *ws, bal, err
}

// Rescan delegates a full rescan to the node's watch-only wallet.
func (w *Wallet) Rescan(ctx context.Context) (err error) {
	defer func() { w.recordAudit("rescan", err, "") }()
	if _, err = w.requireWallet(ctx); err != nil {
		return err
	}
	return w.adapter.Rescan(ctx, 0)
}

// RegisterCollection builds and submits a register_collection transaction:
// one funding input, one OP_RETURN output carrying the encoded payload, and
// a change output to the next change address. It does not insert into the
// Store directly — the scanner observes the confirmation and inserts it via
// the normal commit path.
func (w *Wallet) RegisterCollection(ctx context.Context, evmAddress [20]byte, rebaseable bool, userFeeRate int64, passphrase string) (txid string, err error) {
	defer func() {
		w.recordAudit("register_collection", err, txid)
		if w.metrics != nil {
			if err == nil {
				w.metrics.TxBuiltTotal.Inc()
				w.metrics.TxSentTotal.Inc()
			} else {
				w.metrics.TxSendFailures.Inc()
			}
		}
	}()

	ws, err := w.requireWallet(ctx)
	if err != nil {
		return "", err
	}
	feeRate, err := resolveFeeRate(ctx, w.adapter, userFeeRate)
	if err != nil {
		return "", err
	}
	utxos, err := w.adapter.ListUnspents(ctx, 1)
	if err != nil {
		return "", err
	}

	sel, err := selectUTXOs(utxos, 0, feeRate, 1)
	if err != nil {
		return "", err
	}

	opReturn, err := opReturnOutput(evmAddress, rebaseable)
	if err != nil {
		return "", err
	}

	txOuts := []*wire.TxOut{opReturn}
	if sel.change > 0 {
		changeAddr, err := w.nextChangeAddress(ctx, ws)
		if err != nil {
			return "", err
		}
		changeParsed, err := parseAddressForNetwork(changeAddr, ws.Network)
		if err != nil {
			return "", err
		}
		changeOut, err := payToAddrOutput(changeParsed, sel.change)
		if err != nil {
			return "", err
		}
		txOuts = append(txOuts, changeOut)
	}

	raw, err := buildTx(sel.inputs, txOuts)
	if err != nil {
		return "", err
	}

	txid, err = w.adapter.SignAndSend(ctx, raw, passphrase)
	return txid, err
}

// SendAmount builds and submits a value-transfer transaction to address,
// which must parse under the wallet's own network.
func (w *Wallet) SendAmount(ctx context.Context, address string, amountSat int64, userFeeRate int64, passphrase string) (txid string, err error) {
	defer func() {
		w.recordAudit("send_amount", err, txid)
		if w.metrics != nil {
			if err == nil {
				w.metrics.TxBuiltTotal.Inc()
				w.metrics.TxSentTotal.Inc()
			} else {
				w.metrics.TxSendFailures.Inc()
			}
		}
	}()

	ws, err := w.requireWallet(ctx)
	if err != nil {
		return "", err
	}

	destAddr, err := parseAddressForNetwork(address, ws.Network)
	if err != nil {
		return "", err
	}

	feeRate, err := resolveFeeRate(ctx, w.adapter, userFeeRate)
	if err != nil {
		return "", err
	}
	utxos, err := w.adapter.ListUnspents(ctx, 1)
	if err != nil {
		return "", err
	}

	sel, err := selectUTXOs(utxos, amountSat, feeRate, 0)
	if err != nil {
		return "", err
	}

	recipientOut, err := payToAddrOutput(destAddr, amountSat)
	if err != nil {
		return "", err
	}

	txOuts := []*wire.TxOut{recipientOut}
	if sel.change > 0 {
		changeAddr, err := w.nextChangeAddress(ctx, ws)
		if err != nil {
			return "", err
		}
		changeParsed, err := parseAddressForNetwork(changeAddr, ws.Network)
		if err != nil {
			return "", err
		}
		changeOut, err := payToAddrOutput(changeParsed, sel.change)
		if err != nil {
			return "", err
		}
		txOuts = append(txOuts, changeOut)
	}

	raw, err := buildTx(sel.inputs, txOuts)
	if err != nil {
		return "", err
	}

	txid, err = w.adapter.SignAndSend(ctx, raw, passphrase)
	return txid, err
}

func (w *Wallet) requireWallet(ctx context.Context) (*store.WalletState, error) {
	ws, err := w.store.WalletLoad(ctx)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, daemonerr.New(daemonerr.WalletUninitialized, "wallet has not been initialized", nil)
	}
	return ws, nil
}

func (w *Wallet) nextChangeAddress(ctx context.Context, ws *store.WalletState) (string, error) {
	idx, err := w.store.AdvanceChangeIndex(ctx)
	if err != nil {
		return "", err
	}
	return w.keys.DeriveAddress(ws.AccountXpub, true, idx, ws.Network)
}

func parseAddressForNetwork(address, network string) (btcutil.Address, error) {
	params, err := networkParamsForWallet(network)
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, daemonerr.New(daemonerr.WrongNetwork, fmt.Sprintf("address %s does not parse on network %s", address, network), err)
	}
	if !addr.IsForNet(params) {
		return nil, daemonerr.New(daemonerr.WrongNetwork, fmt.Sprintf("address %s is not valid for network %s", address, network), nil)
	}
	return addr, nil
}

func networkParamsForWallet(network string) (*chaincfg.Params, error) {
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
