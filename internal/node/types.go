package node

// Header is the subset of a Bitcoin block header the scanner's parent check
// needs.
type Header struct {
	Height   int64
	Hash     string
	PrevHash string
}

// TxOutput is one output of a transaction as seen by the scanner: its value
// and raw script bytes, which the codec inspects for an OP_RETURN payload.
type TxOutput struct {
	Value        int64
	ScriptPubKey []byte
}

// Tx is a transaction as surfaced by block_at: its id and outputs in order.
// Inputs are not modeled beyond what the scanner needs (it never walks them).
type Tx struct {
	Txid    string
	Outputs []TxOutput
}

// BlockView is the transient per-tick view the scanner decodes and commits.
type BlockView struct {
	Height   int64
	Hash     string
	PrevHash string
	Txs      []Tx
}

// UTXO is one unspent output reported by the node's watch-only wallet.
type UTXO struct {
	Txid          string
	Vout          uint32
	Address       string
	ScriptPubKey  []byte
	AmountSat     int64
	Confirmations int64
}

// Balances is the watch-only wallet's confirmed/pending balance in satoshis.
type Balances struct {
	ConfirmedSat int64
	PendingSat   int64
}
