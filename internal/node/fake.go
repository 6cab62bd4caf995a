package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// FakeAdapter is an in-memory Adapter used by scanner and wallet tests. It
// lets a test script a chain as a slice of blocks and flip reorgs by
// replacing the tail, mirroring the teacher's mock-over-interface pattern
// (compare rpc.MockRPCClient).
type FakeAdapter struct {
	mu sync.Mutex

	blocks       []BlockView // index i holds height startHeight+i
	startHeight  int64
	feeRateSat   int64
	network      string
	unspents     []UTXO
	balances     Balances
	descriptors  []string
	addressIndex int
	sendErr      error
	lastSentRaw  []byte
	lastTxid     string
}

// NewFakeAdapter builds a FakeAdapter whose chain starts at startHeight.
func NewFakeAdapter(startHeight int64, network string) *FakeAdapter {
	return &FakeAdapter{
		startHeight: startHeight,
		network:     network,
		feeRateSat:  2,
	}
}

// AppendBlock adds a new tip block built on the current chain's last hash.
func (f *FakeAdapter) AppendBlock(hash string, txs []Tx) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := "sentinel"
	if len(f.blocks) > 0 {
		prev = f.blocks[len(f.blocks)-1].Hash
	}
	f.blocks = append(f.blocks, BlockView{
		Height:   f.startHeight + int64(len(f.blocks)),
		Hash:     hash,
		PrevHash: prev,
		Txs:      txs,
	})
}

// Reorg truncates the chain to length keepLen and appends a divergent block.
func (f *FakeAdapter) Reorg(keepLen int, hash string, txs []Tx) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.blocks = f.blocks[:keepLen]
	prev := "sentinel"
	if len(f.blocks) > 0 {
		prev = f.blocks[len(f.blocks)-1].Hash
	}
	f.blocks = append(f.blocks, BlockView{
		Height:   f.startHeight + int64(len(f.blocks)),
		Hash:     hash,
		PrevHash: prev,
		Txs:      txs,
	})
}

func (f *FakeAdapter) SetUnspents(utxos []UTXO)   { f.mu.Lock(); f.unspents = utxos; f.mu.Unlock() }
func (f *FakeAdapter) SetBalances(b Balances)     { f.mu.Lock(); f.balances = b; f.mu.Unlock() }
func (f *FakeAdapter) SetFeeRate(rate int64)      { f.mu.Lock(); f.feeRateSat = rate; f.mu.Unlock() }
func (f *FakeAdapter) SetSendErr(err error)        { f.mu.Lock(); f.sendErr = err; f.mu.Unlock() }
func (f *FakeAdapter) LastSentRaw() []byte         { f.mu.Lock(); defer f.mu.Unlock(); return f.lastSentRaw }

func (f *FakeAdapter) Tip(ctx context.Context) (int64, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.blocks) == 0 {
		return f.startHeight - 1, "sentinel", nil
	}
	last := f.blocks[len(f.blocks)-1]
	return last.Height, last.Hash, nil
}

func (f *FakeAdapter) Header(ctx context.Context, hash string) (Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.Hash == hash {
			return Header{Height: b.Height, Hash: b.Hash, PrevHash: b.PrevHash}, nil
		}
	}
	return Header{}, daemonerr.New(daemonerr.Node, fmt.Sprintf("unknown hash %s", hash), nil)
}

func (f *FakeAdapter) BlockAt(ctx context.Context, height int64) (BlockView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := height - f.startHeight
	if idx < 0 || int(idx) >= len(f.blocks) {
		return BlockView{}, daemonerr.New(daemonerr.Node, fmt.Sprintf("no block at height %d", height), nil)
	}
	return f.blocks[idx], nil
}

func (f *FakeAdapter) RawTx(ctx context.Context, txid string) ([]byte, error) {
	return []byte(txid), nil
}

func (f *FakeAdapter) EstimateFeeRate(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeRateSat, nil
}

func (f *FakeAdapter) ImportDescriptor(ctx context.Context, descriptor string, rangeEnd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = append(f.descriptors, descriptor)
	return nil
}

func (f *FakeAdapter) NextAddress(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addressIndex++
	return fmt.Sprintf("fake1addr%d", f.addressIndex), nil
}

func (f *FakeAdapter) ListUnspents(ctx context.Context, minConf int64) ([]UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UTXO, 0, len(f.unspents))
	for _, u := range f.unspents {
		if u.Confirmations >= minConf {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *FakeAdapter) Balances(ctx context.Context) (Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances, nil
}

func (f *FakeAdapter) Rescan(ctx context.Context, fromHeight int64) error {
	return nil
}

func (f *FakeAdapter) SignAndSend(ctx context.Context, rawTx []byte, passphrase string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.lastSentRaw = rawTx
	f.lastTxid = fmt.Sprintf("%x", rawTx[:min(8, len(rawTx))])
	return f.lastTxid, nil
}

func (f *FakeAdapter) NetworkName(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.network, nil
}

func (f *FakeAdapter) Close() error { return nil }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
