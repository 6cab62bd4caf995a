package wallet

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/brc721/brc721d/internal/daemonerr"
	"github.com/brc721/brc721d/internal/node"
)

func utxo(txid string, amount int64) node.UTXO {
	return node.UTXO{Txid: txid, Vout: 0, AmountSat: amount, Confirmations: 6}
}

func TestSelectUTXOsPrefersSmallestCoveringSingle(t *testing.T) {
	utxos := []node.UTXO{utxo("a", 5000), utxo("b", 50000), utxo("c", 20000)}
	sel, err := selectUTXOs(utxos, 10000, 1, 0)
	require.NoError(t, err)
	require.Len(t, sel.inputs, 1)
	require.Equal(t, int64(20000), sel.inputs[0].AmountSat)
}

func TestSelectUTXOsAccumulatesSmallestFirstWhenNoSingleCovers(t *testing.T) {
	utxos := []node.UTXO{utxo("a", 1000), utxo("b", 2000), utxo("c", 3000)}
	sel, err := selectUTXOs(utxos, 5000, 1, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(sel.inputs), 2)
	var total int64
	for _, in := range sel.inputs {
		total += in.AmountSat
	}
	require.GreaterOrEqual(t, total, 5000+sel.fee)
}

func TestSelectUTXOsInsufficientFunds(t *testing.T) {
	utxos := []node.UTXO{utxo("a", 100)}
	_, err := selectUTXOs(utxos, 10000, 1, 0)
	require.Error(t, err)
	require.True(t, daemonerr.Is(err, daemonerr.InsufficientFunds))
}

func TestClampDustFoldsSmallChangeIntoFee(t *testing.T) {
	fee := int64(100)
	change := clampDust(200, &fee)
	require.Equal(t, int64(0), change)
	require.Equal(t, int64(300), fee)
}

func TestClampDustLeavesLargeChangeAlone(t *testing.T) {
	fee := int64(100)
	change := clampDust(10000, &fee)
	require.Equal(t, int64(10000), change)
	require.Equal(t, int64(100), fee)
}

func TestEstimateFeeGrowsWithInputsAndOutputs(t *testing.T) {
	base := estimateFee(1, 1, 1)
	moreInputs := estimateFee(2, 1, 1)
	moreOutputs := estimateFee(1, 2, 1)
	require.Greater(t, moreInputs, base)
	require.Greater(t, moreOutputs, base)
}

func TestBuildTxSerializesInputsAndOutputs(t *testing.T) {
	var evmAddr [20]byte
	out, err := opReturnOutput(evmAddr, false)
	require.NoError(t, err)

	raw, err := buildTx([]node.UTXO{
		utxo("aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa1", 10000),
	}, []*wire.TxOut{out})
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}
