package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// sentinelHash marks the cursor hash before any block has been committed.
const sentinelHash = "sentinel"

// Store is the embedded relational store. It serializes all access through
// a single *sql.DB connection: the scanner is the only writer of the cursor,
// collections and ancestors rows, the command path writes only wallet_state,
// the HTTP API only reads, and SQLite's own locking gives every transaction a
// consistent snapshot.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and applies
// the fixed schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Durability, "open store", err)
	}
	// One physical connection: the scanner is a single writer and SQLite
	// serializes writers regardless, so a pool only adds lock contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, daemonerr.New(daemonerr.Durability, "enable WAL", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, daemonerr.New(daemonerr.Durability, "enable foreign keys", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, daemonerr.New(daemonerr.Durability, "migrate schema", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCursor returns the current cursor, or (nil, nil) if the store has
// never been initialized with one.
func (s *Store) GetCursor(ctx context.Context) (*ChainCursor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_height, last_hash FROM cursor WHERE id = 0`)
	var c ChainCursor
	if err := row.Scan(&c.LastHeight, &c.LastHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, daemonerr.New(daemonerr.Durability, "read cursor", err)
	}
	return &c, nil
}

// InitCursor creates the cursor row on first scanner start, at
// (startHeight-1, sentinel). It is a no-op if a cursor already exists.
func (s *Store) InitCursor(ctx context.Context, startHeight int64) error {
	existing, err := s.GetCursor(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cursor (id, last_height, last_hash) VALUES (0, ?, ?)`,
		startHeight-1, sentinelHash)
	if err != nil {
		return daemonerr.New(daemonerr.Durability, "init cursor", err)
	}
	return nil
}

// CommitBlock atomically advances the cursor from expectedPrevHeight to
// height and inserts events, iff the store's current cursor height is
// still expectedPrevHeight. Mismatch means another writer moved the cursor
// (only possible via an operator reset) and the call fails with StaleCursor
// without side effects.
func (s *Store) CommitBlock(ctx context.Context, expectedPrevHeight int64, height int64, hash string, events []CommitEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return daemonerr.New(daemonerr.Durability, "begin commit_block", err)
	}
	defer tx.Rollback()

	var currentHeight int64
	row := tx.QueryRowContext(ctx, `SELECT last_height FROM cursor WHERE id = 0`)
	if err := row.Scan(&currentHeight); err != nil {
		return daemonerr.New(daemonerr.Durability, "read cursor for commit", err)
	}
	if currentHeight != expectedPrevHeight {
		return daemonerr.New(daemonerr.StaleCursor,
			fmt.Sprintf("cursor at %d, expected %d", currentHeight, expectedPrevHeight), nil)
	}

	for _, ev := range events {
		id := CollectionID(ev.Txid, ev.Vout)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO collections
				(id, evm_collection_address, rebaseable, btc_txid, btc_vout, block_height, block_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, ev.EVMAddress[:], ev.Rebaseable, ev.Txid, ev.Vout, height, hash)
		if err != nil {
			return daemonerr.New(daemonerr.Durability, "insert collection", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE cursor SET last_height = ?, last_hash = ? WHERE id = 0`,
		height, hash); err != nil {
		return daemonerr.New(daemonerr.Durability, "advance cursor", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ancestors (height, hash) VALUES (?, ?)
		ON CONFLICT(height) DO UPDATE SET hash = excluded.hash`,
		height, hash); err != nil {
		return daemonerr.New(daemonerr.Durability, "record ancestor hash", err)
	}

	if err := tx.Commit(); err != nil {
		return daemonerr.New(daemonerr.Durability, "commit commit_block tx", err)
	}
	return nil
}

// RollbackTo removes every collection recorded above height and resets the
// cursor to (height, hash), atomically. Used by the scanner's reorg
// protocol once it has located the common ancestor.
func (s *Store) RollbackTo(ctx context.Context, height int64, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return daemonerr.New(daemonerr.Durability, "begin rollback_to", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE block_height > ?`, height); err != nil {
		return daemonerr.New(daemonerr.Durability, "delete rolled-back collections", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ancestors WHERE height > ?`, height); err != nil {
		return daemonerr.New(daemonerr.Durability, "delete rolled-back ancestor hashes", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE cursor SET last_height = ?, last_hash = ? WHERE id = 0`,
		height, hash); err != nil {
		return daemonerr.New(daemonerr.Durability, "reset cursor on rollback", err)
	}

	if err := tx.Commit(); err != nil {
		return daemonerr.New(daemonerr.Durability, "commit rollback_to tx", err)
	}
	return nil
}

// LoadAncestors returns every persisted ancestor hash entry, ordered by
// ascending height, for the scanner to rebuild its in-memory reorg-walk
// history across a process restart.
func (s *Store) LoadAncestors(ctx context.Context) ([]AncestorHash, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT height, hash FROM ancestors ORDER BY height ASC`)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Durability, "load ancestor hashes", err)
	}
	defer rows.Close()

	var out []AncestorHash
	for rows.Next() {
		var a AncestorHash
		if err := rows.Scan(&a.Height, &a.Hash); err != nil {
			return nil, daemonerr.New(daemonerr.Durability, "scan ancestor hash row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, daemonerr.New(daemonerr.Durability, "iterate ancestor hashes", err)
	}
	return out, nil
}

// PruneAncestors deletes every ancestor hash entry at or below keepAbove,
// bounding the table to the scanner's max_reorg_depth window. Best-effort
// housekeeping: a failed prune leaves stale rows but never affects
// correctness, since LoadAncestors only uses them as a lookup cache.
func (s *Store) PruneAncestors(ctx context.Context, keepAbove int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ancestors WHERE height <= ?`, keepAbove)
	if err != nil {
		return daemonerr.New(daemonerr.Durability, "prune ancestor hashes", err)
	}
	return nil
}

// ListCollections returns collections ordered by (block_height, btc_txid,
// btc_vout), optionally bounded by rng.
func (s *Store) ListCollections(ctx context.Context, rng *CollectionRange) ([]Collection, error) {
	query := `SELECT id, evm_collection_address, rebaseable, btc_txid, btc_vout, block_height, block_hash
		FROM collections`
	var args []interface{}
	if rng != nil {
		var clauses []string
		if rng.FromHeight > 0 {
			clauses = append(clauses, "block_height >= ?")
			args = append(args, rng.FromHeight)
		}
		if rng.ToHeight > 0 {
			clauses = append(clauses, "block_height <= ?")
			args = append(args, rng.ToHeight)
		}
		if len(clauses) > 0 {
			query += " WHERE " + clauses[0]
			for _, c := range clauses[1:] {
				query += " AND " + c
			}
		}
	}
	query += " ORDER BY block_height, btc_txid, btc_vout"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Durability, "list_collections", err)
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		var c Collection
		var addr []byte
		if err := rows.Scan(&c.ID, &addr, &c.Rebaseable, &c.BtcTxid, &c.BtcVout, &c.BlockHeight, &c.BlockHash); err != nil {
			return nil, daemonerr.New(daemonerr.Durability, "scan collection row", err)
		}
		copy(c.EVMCollectionAddress[:], addr)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, daemonerr.New(daemonerr.Durability, "iterate collections", err)
	}
	return out, nil
}

// WalletLoad returns the wallet state, or (nil, nil) if the wallet has
// never been initialized.
func (s *Store) WalletLoad(ctx context.Context) (*WalletState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT network, account_xpub, next_receive_index, next_change_index, descriptor_checksum
		FROM wallet_state WHERE id = 0`)
	var w WalletState
	if err := row.Scan(&w.Network, &w.AccountXpub, &w.NextReceiveIndex, &w.NextChangeIndex, &w.DescriptorChecksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, daemonerr.New(daemonerr.Durability, "wallet_load", err)
	}
	return &w, nil
}

// WalletSave is a single-row upsert of the wallet state.
func (s *Store) WalletSave(ctx context.Context, w WalletState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_state (id, network, account_xpub, next_receive_index, next_change_index, descriptor_checksum)
		VALUES (0, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network = excluded.network,
			account_xpub = excluded.account_xpub,
			next_receive_index = excluded.next_receive_index,
			next_change_index = excluded.next_change_index,
			descriptor_checksum = excluded.descriptor_checksum`,
		w.Network, w.AccountXpub, w.NextReceiveIndex, w.NextChangeIndex, w.DescriptorChecksum)
	if err != nil {
		return daemonerr.New(daemonerr.Durability, "wallet_save", err)
	}
	return nil
}

// AdvanceReceiveIndex increments next_receive_index in one transaction and
// returns the index it held before: the counter only moves when that commit
// succeeds.
func (s *Store) AdvanceReceiveIndex(ctx context.Context) (uint32, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, daemonerr.New(daemonerr.Durability, "begin advance receive index", err)
	}
	defer tx.Rollback()

	var idx uint32
	row := tx.QueryRowContext(ctx, `SELECT next_receive_index FROM wallet_state WHERE id = 0`)
	if err := row.Scan(&idx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, daemonerr.New(daemonerr.WalletUninitialized, "wallet not initialized", nil)
		}
		return 0, daemonerr.New(daemonerr.Durability, "read receive index", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallet_state SET next_receive_index = ? WHERE id = 0`, idx+1); err != nil {
		return 0, daemonerr.New(daemonerr.Durability, "advance receive index", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, daemonerr.New(daemonerr.Durability, "commit advance receive index", err)
	}
	return idx, nil
}

// AdvanceChangeIndex is AdvanceReceiveIndex's counterpart for change
// addresses used internally by the builder.
func (s *Store) AdvanceChangeIndex(ctx context.Context) (uint32, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, daemonerr.New(daemonerr.Durability, "begin advance change index", err)
	}
	defer tx.Rollback()

	var idx uint32
	row := tx.QueryRowContext(ctx, `SELECT next_change_index FROM wallet_state WHERE id = 0`)
	if err := row.Scan(&idx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, daemonerr.New(daemonerr.WalletUninitialized, "wallet not initialized", nil)
		}
		return 0, daemonerr.New(daemonerr.Durability, "read change index", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallet_state SET next_change_index = ? WHERE id = 0`, idx+1); err != nil {
		return 0, daemonerr.New(daemonerr.Durability, "advance change index", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, daemonerr.New(daemonerr.Durability, "commit advance change index", err)
	}
	return idx, nil
}

// Reset wipes every table. Destructive; only invoked from the startup path
// when --reset is given.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return daemonerr.New(daemonerr.Durability, "begin reset", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"collections", "cursor", "ancestors", "wallet_state"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return daemonerr.New(daemonerr.Durability, "reset "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return daemonerr.New(daemonerr.Durability, "commit reset", err)
	}
	return nil
}
