// Package store is the embedded relational store: a single SQLite file per
// network holding the cursor, the collections registry, and wallet
// bookkeeping, with a transactional contract against the scanner and the
// command path. The Store is the only component that may fail with
// daemonerr.Durability.
package store

import "fmt"

// ChainCursor is the singleton marking the last block committed to the
// store. last_hash is the header hash at last_height on the canonical
// chain as last observed.
type ChainCursor struct {
	LastHeight int64
	LastHash   string
}

// Collection is one successfully decoded register-collection event.
// (BtcTxid, BtcVout) is unique.
type Collection struct {
	ID                   string
	EVMCollectionAddress [20]byte
	Rebaseable           bool
	BtcTxid              string
	BtcVout              uint32
	BlockHeight          int64
	BlockHash            string
}

// WalletState is the singleton wallet record per data directory.
type WalletState struct {
	Network           string
	AccountXpub       string
	NextReceiveIndex  uint32
	NextChangeIndex   uint32
	DescriptorChecksum string
}

// CollectionRange bounds a list_collections query by block height,
// inclusive on both ends. A zero value on either side means unbounded.
type CollectionRange struct {
	FromHeight int64
	ToHeight   int64
}

// CommitEvent is a decoded RegisterCollection event paired with the
// transaction location it was observed at, ready for insertion by
// CommitBlock.
type CommitEvent struct {
	Txid       string
	Vout       uint32
	EVMAddress [20]byte
	Rebaseable bool
}

// AncestorHash is one entry of the scanner's per-height ancestor hash
// history, persisted so it survives a process restart.
type AncestorHash struct {
	Height int64
	Hash   string
}

// CollectionID computes the deterministic content hash Collection.ID uses:
// the transaction id concatenated with the output index.
func CollectionID(txid string, vout uint32) string {
	return fmt.Sprintf("%s%08x", txid, vout)
}
