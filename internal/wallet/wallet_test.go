package wallet

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/brc721/brc721d/internal/daemonerr"
	"github.com/brc721/brc721d/internal/keyprovider"
	"github.com/brc721/brc721d/internal/node"
	"github.com/brc721/brc721d/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestWallet(t *testing.T, adapter node.Adapter) (*Wallet, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	w := New(adapter, st, keyprovider.NewDefault(), testLogger(), nil, nil)
	return w, st
}

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestInitPersistsWalletStateAndImportsDescriptors(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, st := newTestWallet(t, adapter)
	ctx := context.Background()

	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	ws, err := st.WalletLoad(ctx)
	require.NoError(t, err)
	require.NotNil(t, ws)
	require.Equal(t, "regtest", ws.Network)
	require.NotEmpty(t, ws.AccountXpub)
}

func TestInitIsIdempotentForSameMnemonic(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, st := newTestWallet(t, adapter)
	ctx := context.Background()

	require.NoError(t, w.Init(ctx, testMnemonic, "", false))
	first, err := st.WalletLoad(ctx)
	require.NoError(t, err)

	require.NoError(t, w.Init(ctx, testMnemonic, "", false))
	second, err := st.WalletLoad(ctx)
	require.NoError(t, err)

	require.Equal(t, first.AccountXpub, second.AccountXpub)
	require.Equal(t, uint32(0), second.NextReceiveIndex)
}

func TestInitRejectsInvalidMnemonic(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, _ := newTestWallet(t, adapter)
	err := w.Init(context.Background(), "not a real mnemonic", "", false)
	require.Error(t, err)
}

func TestNextAddressAdvancesCounterAndIsDeterministic(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, st := newTestWallet(t, adapter)
	ctx := context.Background()
	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	addr0, err := w.NextAddress(ctx)
	require.NoError(t, err)
	addr1, err := w.NextAddress(ctx)
	require.NoError(t, err)
	require.NotEqual(t, addr0, addr1)

	ws, err := st.WalletLoad(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), ws.NextReceiveIndex)
}

func TestNextAddressBeforeInitFails(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, _ := newTestWallet(t, adapter)
	_, err := w.NextAddress(context.Background())
	require.Error(t, err)
	require.True(t, daemonerr.Is(err, daemonerr.WalletUninitialized))
}

func TestBalanceProjectsAdapterBalances(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	adapter.SetBalances(node.Balances{ConfirmedSat: 5000, PendingSat: 100})
	w, _ := newTestWallet(t, adapter)
	ctx := context.Background()
	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	ws, bal, err := w.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, "regtest", ws.Network)
	require.Equal(t, int64(5000), bal.ConfirmedSat)
	require.Equal(t, int64(100), bal.PendingSat)
}

func TestRegisterCollectionBuildsAndSendsTransaction(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	adapter.SetUnspents([]node.UTXO{
		{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa1", Vout: 0, AmountSat: 100000, Confirmations: 6},
	})
	adapter.SetFeeRate(2)
	w, _ := newTestWallet(t, adapter)
	ctx := context.Background()
	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	var evmAddr [20]byte
	evmAddr[0] = 0xAB
	txid, err := w.RegisterCollection(ctx, evmAddr, true, 0, "correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, txid)
	require.NotEmpty(t, adapter.LastSentRaw())
}

func TestRegisterCollectionInsufficientFunds(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	adapter.SetUnspents([]node.UTXO{
		{Txid: "aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa11aa1", Vout: 0, AmountSat: 100, Confirmations: 6},
	})
	adapter.SetFeeRate(1000)
	w, _ := newTestWallet(t, adapter)
	ctx := context.Background()
	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	var evmAddr [20]byte
	_, err := w.RegisterCollection(ctx, evmAddr, false, 0, "secret")
	require.Error(t, err)
	require.True(t, daemonerr.Is(err, daemonerr.InsufficientFunds))
}

func TestSendAmountRejectsWrongNetworkBeforeAnyNodeCall(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, _ := newTestWallet(t, adapter)
	ctx := context.Background()
	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	// A mainnet bech32 address is never valid on regtest.
	_, err := w.SendAmount(ctx, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 1000, 0, "secret")
	require.Error(t, err)
	require.True(t, daemonerr.Is(err, daemonerr.WrongNetwork))
	require.Empty(t, adapter.LastSentRaw())
}

func TestSendAmountFoldsDustChangeIntoFee(t *testing.T) {
	adapter := node.NewFakeAdapter(1, "regtest")
	w, _ := newTestWallet(t, adapter)
	ctx := context.Background()
	require.NoError(t, w.Init(ctx, testMnemonic, "", false))

	destAddr, err := w.NextAddress(ctx)
	require.NoError(t, err)

	const amountSat = 100000
	const feeRate = 1
	fee := estimateFee(1, 1, feeRate)
	// Leftover of 200 sat is below dustThreshold (546): it must be folded
	// into the fee rather than produce a change output.
	adapter.SetUnspents([]node.UTXO{
		{Txid: "bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb22bb2", Vout: 0, AmountSat: amountSat + fee + 200, Confirmations: 6},
	})
	adapter.SetFeeRate(feeRate)

	txid, err := w.SendAmount(ctx, destAddr, amountSat, 0, "secret")
	require.NoError(t, err)
	require.NotEmpty(t, txid)
}
