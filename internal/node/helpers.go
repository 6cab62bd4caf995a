package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/brc721/brc721d/internal/daemonerr"
)

// wire response shapes for the bitcoind JSON-RPC methods this package calls.
// Only the fields the adapter needs are decoded; everything else is dropped.

type rpcBlockchainInfo struct {
	Blocks int64  `json:"blocks"`
	Chain  string `json:"chain"`
}

type rpcBlockHeader struct {
	Hash              string `json:"hash"`
	Height            int64  `json:"height"`
	PreviousBlockHash string `json:"previousblockhash"`
}

type rpcVout struct {
	Value        float64 `json:"value"`
	ScriptPubKey struct {
		Hex string `json:"hex"`
	} `json:"scriptPubKey"`
}

type rpcTx struct {
	Txid string    `json:"txid"`
	Vout []rpcVout `json:"vout"`
}

type rpcBlockVerbose2 struct {
	Hash              string  `json:"hash"`
	Height            int64   `json:"height"`
	PreviousBlockHash string  `json:"previousblockhash"`
	Tx                []rpcTx `json:"tx"`
}

type rpcEstimateSmartFee struct {
	FeeRate float64  `json:"feerate"`
	Errors  []string `json:"errors,omitempty"`
}

type rpcListUnspentEntry struct {
	Txid          string  `json:"txid"`
	Vout          uint32  `json:"vout"`
	Address       string  `json:"address"`
	ScriptPubKey  string  `json:"scriptPubKey"`
	Amount        float64 `json:"amount"`
	Confirmations int64   `json:"confirmations"`
	Spendable     bool    `json:"spendable"`
}

type rpcBalances struct {
	Mine struct {
		Trusted          float64 `json:"trusted"`
		UntrustedPending float64 `json:"untrusted_pending"`
	} `json:"mine"`
}

// rpcCall invokes method on client and wraps any transport/auth/semantic
// failure as a Node error, per the node adapter design: failures surface
// verbatim so the scanner can retry and command mode can fail fast.
func rpcCall(ctx context.Context, client RPCClient, method string, params ...interface{}) (json.RawMessage, error) {
	result, err := client.Call(ctx, method, params...)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Node, fmt.Sprintf("rpc %s failed", method), err)
	}
	return result, nil
}

func decodeRPCResult(method string, raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return daemonerr.New(daemonerr.Node, fmt.Sprintf("decode %s result", method), err)
	}
	return nil
}

func btcToSat(btc float64) int64 {
	return int64(btc*1e8 + 0.5)
}

func getBlockCount(ctx context.Context, client RPCClient) (int64, error) {
	raw, err := rpcCall(ctx, client, "getblockcount")
	if err != nil {
		return 0, err
	}
	var height int64
	if err := decodeRPCResult("getblockcount", raw, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func getBestBlockHash(ctx context.Context, client RPCClient) (string, error) {
	raw, err := rpcCall(ctx, client, "getbestblockhash")
	if err != nil {
		return "", err
	}
	var hash string
	if err := decodeRPCResult("getbestblockhash", raw, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

func getBlockHash(ctx context.Context, client RPCClient, height int64) (string, error) {
	raw, err := rpcCall(ctx, client, "getblockhash", height)
	if err != nil {
		return "", err
	}
	var hash string
	if err := decodeRPCResult("getblockhash", raw, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

func getBlockHeader(ctx context.Context, client RPCClient, hash string) (Header, error) {
	raw, err := rpcCall(ctx, client, "getblockheader", hash, true)
	if err != nil {
		return Header{}, err
	}
	var h rpcBlockHeader
	if err := decodeRPCResult("getblockheader", raw, &h); err != nil {
		return Header{}, err
	}
	return Header{Height: h.Height, Hash: h.Hash, PrevHash: h.PreviousBlockHash}, nil
}

func getBlockVerbose2(ctx context.Context, client RPCClient, hash string) (BlockView, error) {
	raw, err := rpcCall(ctx, client, "getblock", hash, 2)
	if err != nil {
		return BlockView{}, err
	}
	var b rpcBlockVerbose2
	if err := decodeRPCResult("getblock", raw, &b); err != nil {
		return BlockView{}, err
	}

	txs := make([]Tx, 0, len(b.Tx))
	for _, rt := range b.Tx {
		outputs := make([]TxOutput, 0, len(rt.Vout))
		for _, v := range rt.Vout {
			script, err := hex.DecodeString(v.ScriptPubKey.Hex)
			if err != nil {
				return BlockView{}, daemonerr.New(daemonerr.Node, "decode scriptPubKey hex", err)
			}
			outputs = append(outputs, TxOutput{Value: btcToSat(v.Value), ScriptPubKey: script})
		}
		txs = append(txs, Tx{Txid: rt.Txid, Outputs: outputs})
	}

	return BlockView{
		Height:   b.Height,
		Hash:     b.Hash,
		PrevHash: b.PreviousBlockHash,
		Txs:      txs,
	}, nil
}

func getRawTransaction(ctx context.Context, client RPCClient, txid string) ([]byte, error) {
	raw, err := rpcCall(ctx, client, "getrawtransaction", txid, false)
	if err != nil {
		return nil, err
	}
	var hexStr string
	if err := decodeRPCResult("getrawtransaction", raw, &hexStr); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, daemonerr.New(daemonerr.Node, "decode raw transaction hex", err)
	}
	return b, nil
}

func estimateSmartFee(ctx context.Context, client RPCClient, confTarget int) (int64, error) {
	raw, err := rpcCall(ctx, client, "estimatesmartfee", confTarget)
	if err != nil {
		return 0, err
	}
	var res rpcEstimateSmartFee
	if err := decodeRPCResult("estimatesmartfee", raw, &res); err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, daemonerr.New(daemonerr.Node, fmt.Sprintf("estimatesmartfee: %v", res.Errors), nil)
	}
	satPerKvb := btcToSat(res.FeeRate)
	satPerVbyte := satPerKvb / 1000
	if satPerVbyte < 1 {
		satPerVbyte = 1
	}
	return satPerVbyte, nil
}

func importDescriptor(ctx context.Context, client RPCClient, descriptor string, rangeEnd int) error {
	req := map[string]interface{}{
		"desc":      descriptor,
		"active":    true,
		"range":     []int{0, rangeEnd},
		"timestamp": "now",
	}
	raw, err := rpcCall(ctx, client, "importdescriptors", []interface{}{req})
	if err != nil {
		return err
	}
	var results []struct {
		Success bool `json:"success"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := decodeRPCResult("importdescriptors", raw, &results); err != nil {
		return err
	}
	for _, r := range results {
		if !r.Success {
			msg := "rejected"
			if r.Error != nil {
				msg = r.Error.Message
			}
			return daemonerr.New(daemonerr.Node, fmt.Sprintf("importdescriptors: %s", msg), nil)
		}
	}
	return nil
}

func getNewAddress(ctx context.Context, client RPCClient, label, addressType string) (string, error) {
	raw, err := rpcCall(ctx, client, "getnewaddress", label, addressType)
	if err != nil {
		return "", err
	}
	var addr string
	if err := decodeRPCResult("getnewaddress", raw, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

func listUnspent(ctx context.Context, client RPCClient, minConf int64) ([]UTXO, error) {
	raw, err := rpcCall(ctx, client, "listunspent", minConf)
	if err != nil {
		return nil, err
	}
	var entries []rpcListUnspentEntry
	if err := decodeRPCResult("listunspent", raw, &entries); err != nil {
		return nil, err
	}
	utxos := make([]UTXO, 0, len(entries))
	for _, e := range entries {
		if !e.Spendable {
			continue
		}
		script, err := hex.DecodeString(e.ScriptPubKey)
		if err != nil {
			return nil, daemonerr.New(daemonerr.Node, "decode listunspent scriptPubKey", err)
		}
		utxos = append(utxos, UTXO{
			Txid:          e.Txid,
			Vout:          e.Vout,
			Address:       e.Address,
			ScriptPubKey:  script,
			AmountSat:     btcToSat(e.Amount),
			Confirmations: e.Confirmations,
		})
	}
	return utxos, nil
}

func getBalances(ctx context.Context, client RPCClient) (Balances, error) {
	raw, err := rpcCall(ctx, client, "getbalances")
	if err != nil {
		return Balances{}, err
	}
	var b rpcBalances
	if err := decodeRPCResult("getbalances", raw, &b); err != nil {
		return Balances{}, err
	}
	return Balances{
		ConfirmedSat: btcToSat(b.Mine.Trusted),
		PendingSat:   btcToSat(b.Mine.UntrustedPending),
	}, nil
}

func rescanBlockchain(ctx context.Context, client RPCClient, fromHeight int64) error {
	_, err := rpcCall(ctx, client, "rescanblockchain", fromHeight)
	return err
}

func walletPassphrase(ctx context.Context, client RPCClient, passphrase string, timeoutSecs int) error {
	_, err := rpcCall(ctx, client, "walletpassphrase", passphrase, timeoutSecs)
	return err
}

func walletLock(ctx context.Context, client RPCClient) error {
	_, err := rpcCall(ctx, client, "walletlock")
	return err
}

type rpcSignRawTransactionResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
	Errors   []struct {
		Error string `json:"error"`
	} `json:"errors,omitempty"`
}

func signRawTransactionWithWallet(ctx context.Context, client RPCClient, rawTxHex string) (string, error) {
	raw, err := rpcCall(ctx, client, "signrawtransactionwithwallet", rawTxHex)
	if err != nil {
		return "", err
	}
	var res rpcSignRawTransactionResult
	if err := decodeRPCResult("signrawtransactionwithwallet", raw, &res); err != nil {
		return "", err
	}
	if !res.Complete {
		msg := "incomplete signature"
		if len(res.Errors) > 0 {
			msg = res.Errors[0].Error
		}
		return "", daemonerr.New(daemonerr.Node, fmt.Sprintf("signrawtransactionwithwallet: %s", msg), nil)
	}
	return res.Hex, nil
}

func sendRawTransaction(ctx context.Context, client RPCClient, rawTxHex string) (string, error) {
	raw, err := rpcCall(ctx, client, "sendrawtransaction", rawTxHex)
	if err != nil {
		return "", err
	}
	var txid string
	if err := decodeRPCResult("sendrawtransaction", raw, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

func getBlockchainInfo(ctx context.Context, client RPCClient) (rpcBlockchainInfo, error) {
	raw, err := rpcCall(ctx, client, "getblockchaininfo")
	if err != nil {
		return rpcBlockchainInfo{}, err
	}
	var info rpcBlockchainInfo
	if err := decodeRPCResult("getblockchaininfo", raw, &info); err != nil {
		return rpcBlockchainInfo{}, err
	}
	return info, nil
}
