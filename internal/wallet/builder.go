// Package wallet implements the watch-only wallet described in the builder
// design: the daemon holds only an account xpub and address counters, never
// a private key, and delegates signing to the node's own wallet, unlocked
// per call by an operator-supplied passphrase.
package wallet

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/brc721/brc721d/internal/codec"
	"github.com/brc721/brc721d/internal/daemonerr"
	"github.com/brc721/brc721d/internal/node"
)

// dustThreshold is the minimum economically spendable P2WPKH output, below
// which an output is refused as change and folded into the fee instead.
const dustThreshold = 546

// selection is the result of selectUTXOs: the chosen inputs, the fee they
// were selected against, and the change amount left for a change output
// (zero when the change would be dust and was swept into fee).
type selection struct {
	inputs []node.UTXO
	fee    int64
	change int64
}

// selectUTXOs picks inputs for amountOut sats at feeRateSatPerVB, preferring
// the smallest single UTXO that covers amount plus fee; failing that it
// accumulates smallest-first. It repeats the fee recomputation up to a
// bounded number of iterations, since adding inputs grows the estimated
// vsize and thus the fee itself. extraOutputs counts non-recipient outputs
// already planned (e.g. 1 for an OP_RETURN payload); a change output is
// assumed on top of that until proven dust.
func selectUTXOs(utxos []node.UTXO, amountOut int64, feeRateSatPerVB int64, extraOutputs int) (selection, error) {
	sorted := make([]node.UTXO, len(utxos))
	copy(sorted, utxos)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].AmountSat < sorted[j-1].AmountSat; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	const maxIterations = 8
	numInputs := 1
	for iter := 0; iter < maxIterations; iter++ {
		fee := estimateFee(numInputs, extraOutputs+1, feeRateSatPerVB)
		needed := amountOut + fee

		if single, ok := smallestCovering(sorted, needed); ok {
			return selection{inputs: []node.UTXO{single}, fee: fee, change: clampDust(single.AmountSat - needed, &fee)}, nil
		}

		chosen, total := accumulateSmallestFirst(sorted, needed)
		if total < needed {
			return selection{}, daemonerr.New(daemonerr.InsufficientFunds,
				fmt.Sprintf("have %d sat, need %d sat", total, needed), nil)
		}
		if len(chosen) == numInputs {
			change := total - needed
			return selection{inputs: chosen, fee: fee, change: clampDust(change, &fee)}, nil
		}
		numInputs = len(chosen)
	}
	return selection{}, daemonerr.New(daemonerr.InsufficientFunds,
		"fee recomputation did not converge", nil)
}

func smallestCovering(sorted []node.UTXO, needed int64) (node.UTXO, bool) {
	for _, u := range sorted {
		if u.AmountSat >= needed {
			return u, true
		}
	}
	return node.UTXO{}, false
}

func accumulateSmallestFirst(sorted []node.UTXO, needed int64) ([]node.UTXO, int64) {
	var chosen []node.UTXO
	var total int64
	for _, u := range sorted {
		chosen = append(chosen, u)
		total += u.AmountSat
		if total >= needed {
			break
		}
	}
	return chosen, total
}

// clampDust folds change below dustThreshold into fee and returns zero.
func clampDust(change int64, fee *int64) int64 {
	if change > 0 && change < dustThreshold {
		*fee += change
		return 0
	}
	if change < 0 {
		return 0
	}
	return change
}

// estimateFee approximates the vsize of a P2WPKH transaction with numInputs
// witness inputs and numOutputs outputs.
func estimateFee(numInputs, numOutputs int, feeRateSatPerVB int64) int64 {
	const overhead = 11
	const perInput = 68  // witness P2WPKH input, vbytes
	const perOutput = 31 // P2WPKH or OP_RETURN output, vbytes
	vsize := int64(overhead + numInputs*perInput + numOutputs*perOutput)
	return vsize * feeRateSatPerVB
}

// buildTx assembles an unsigned, witness-aware serialized transaction from
// the selected inputs and the given outputs, in the order the node's own
// signing wallet expects them.
func buildTx(inputs []node.UTXO, outputs []*wire.TxOut) ([]byte, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range inputs {
		hash, err := chainhash.NewHashFromStr(u.Txid)
		if err != nil {
			return nil, daemonerr.New(daemonerr.Config, fmt.Sprintf("invalid utxo txid %s", u.Txid), err)
		}
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil))
	}
	for _, out := range outputs {
		tx.AddTxOut(out)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, daemonerr.New(daemonerr.Config, "serialize transaction", err)
	}
	return buf.Bytes(), nil
}

// opReturnOutput wraps a BRC-721 register_collection payload in a
// zero-value OP_RETURN output.
func opReturnOutput(evmAddress [20]byte, rebaseable bool) (*wire.TxOut, error) {
	payload := codec.EncodeRegisterCollection(evmAddress, rebaseable)
	script, err := codec.ScriptPubKey(payload)
	if err != nil {
		return nil, err
	}
	return wire.NewTxOut(0, script), nil
}

// payToAddrOutput builds a standard value-transfer output to a parsed,
// network-checked address.
func payToAddrOutput(addr btcutil.Address, amountSat int64) (*wire.TxOut, error) {
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Config, "build pay-to-address script", err)
	}
	return wire.NewTxOut(amountSat, script), nil
}
