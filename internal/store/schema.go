package store

import (
	"database/sql"
	"fmt"
)

// schema is the fixed initial schema. Migrations are out of scope — the
// store always runs this exact schema.
const schema = `
CREATE TABLE IF NOT EXISTS cursor (
	id          INTEGER PRIMARY KEY CHECK (id = 0),
	last_height INTEGER NOT NULL,
	last_hash   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
	id                     TEXT PRIMARY KEY,
	evm_collection_address BLOB NOT NULL,
	rebaseable             INTEGER NOT NULL,
	btc_txid               TEXT NOT NULL,
	btc_vout               INTEGER NOT NULL,
	block_height           INTEGER NOT NULL,
	block_hash             TEXT NOT NULL,
	UNIQUE (btc_txid, btc_vout)
);
CREATE INDEX IF NOT EXISTS idx_collections_order
	ON collections (block_height, btc_txid, btc_vout);
CREATE INDEX IF NOT EXISTS idx_collections_height
	ON collections (block_height);

CREATE TABLE IF NOT EXISTS ancestors (
	height INTEGER PRIMARY KEY,
	hash   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS wallet_state (
	id                  INTEGER PRIMARY KEY CHECK (id = 0),
	network             TEXT NOT NULL,
	account_xpub        TEXT NOT NULL,
	next_receive_index  INTEGER NOT NULL,
	next_change_index   INTEGER NOT NULL,
	descriptor_checksum TEXT NOT NULL
);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
