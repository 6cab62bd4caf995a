package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// rpcStub answers a fixed JSON-RPC method/result table, mirroring bitcoind's
// HTTP JSON-RPC 1.0 wire format closely enough to exercise HTTPRPCClient.
func rpcStub(t *testing.T, results map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, ok := results[req.Method]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(rpcResponse{
				ID:    req.ID,
				Error: &RPCError{Code: -32601, Message: "method not found: " + req.Method},
			})
			return
		}

		raw, err := json.Marshal(result)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: raw})
	}))
}

func TestHTTPRPCClientCall(t *testing.T) {
	srv := rpcStub(t, map[string]interface{}{"getblockcount": 923583})
	defer srv.Close()

	client := NewHTTPRPCClient(srv.URL, "dev", "dev", 5*time.Second)
	defer client.Close()

	raw, err := client.Call(context.Background(), "getblockcount")
	require.NoError(t, err)

	var height int64
	require.NoError(t, json.Unmarshal(raw, &height))
	require.EqualValues(t, 923583, height)
}

func TestHTTPRPCClientMethodNotFound(t *testing.T) {
	srv := rpcStub(t, map[string]interface{}{})
	defer srv.Close()

	client := NewHTTPRPCClient(srv.URL, "dev", "dev", 5*time.Second)
	defer client.Close()

	_, err := client.Call(context.Background(), "getblockcount")
	require.Error(t, err)
}

func TestBitcoinCoreAdapterTip(t *testing.T) {
	srv := rpcStub(t, map[string]interface{}{
		"getblockcount":    int64(923583),
		"getbestblockhash": "hash923583",
	})
	defer srv.Close()

	client := NewHTTPRPCClient(srv.URL, "dev", "dev", 5*time.Second)
	adapter := NewBitcoinCoreAdapter(client)
	defer adapter.Close()

	height, hash, err := adapter.Tip(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 923583, height)
	require.Equal(t, "hash923583", hash)
}

func TestBitcoinCoreAdapterBlockAtDecodesOpReturn(t *testing.T) {
	srv := rpcStub(t, map[string]interface{}{
		"getblockhash": "hashAt8",
		"getblock": map[string]interface{}{
			"hash":              "hashAt8",
			"height":            8,
			"previousblockhash": "hashAt7",
			"tx": []map[string]interface{}{
				{
					"txid": "deadbeef",
					"vout": []map[string]interface{}{
						{
							"value": 0,
							"scriptPubKey": map[string]interface{}{
								"hex": "6a1a4252430001" + "01" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
							},
						},
					},
				},
			},
		},
	})
	defer srv.Close()

	client := NewHTTPRPCClient(srv.URL, "dev", "dev", 5*time.Second)
	adapter := NewBitcoinCoreAdapter(client)
	defer adapter.Close()

	view, err := adapter.BlockAt(context.Background(), 8)
	require.NoError(t, err)
	require.Equal(t, "hashAt7", view.PrevHash)
	require.Len(t, view.Txs, 1)
	require.Equal(t, "deadbeef", view.Txs[0].Txid)
	require.Len(t, view.Txs[0].Outputs, 1)
	script := view.Txs[0].Outputs[0].ScriptPubKey
	require.Equal(t, byte(0x6a), script[0])
	require.Equal(t, []byte("BRC"), script[2:5])
}

func TestBitcoinCoreAdapterSignAndSendSignsBeforeBroadcasting(t *testing.T) {
	var sentHex string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result interface{}
		switch req.Method {
		case "walletpassphrase", "walletlock":
			result = nil
		case "signrawtransactionwithwallet":
			require.Equal(t, "dead", req.Params[0])
			result = map[string]interface{}{"hex": "signedhex", "complete": true}
		case "sendrawtransaction":
			sentHex, _ = req.Params[0].(string)
			result = "txid123"
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Error: &RPCError{Code: -32601, Message: "unexpected method " + req.Method}})
			return
		}

		raw, err := json.Marshal(result)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(rpcResponse{ID: req.ID, Result: raw})
	}))
	defer srv.Close()

	client := NewHTTPRPCClient(srv.URL, "dev", "dev", 5*time.Second)
	adapter := NewBitcoinCoreAdapter(client)
	defer adapter.Close()

	txid, err := adapter.SignAndSend(context.Background(), []byte{0xde, 0xad}, "hunter2")
	require.NoError(t, err)
	require.Equal(t, "txid123", txid)
	require.Equal(t, "signedhex", sentHex)
}

func TestBitcoinCoreAdapterSignAndSendFailsOnIncompleteSignature(t *testing.T) {
	srv := rpcStub(t, map[string]interface{}{
		"walletpassphrase": nil,
		"walletlock":       nil,
		"signrawtransactionwithwallet": map[string]interface{}{
			"hex":      "",
			"complete": false,
			"errors": []map[string]interface{}{
				{"error": "Unable to sign input, invalid stack size"},
			},
		},
	})
	defer srv.Close()

	client := NewHTTPRPCClient(srv.URL, "dev", "dev", 5*time.Second)
	adapter := NewBitcoinCoreAdapter(client)
	defer adapter.Close()

	_, err := adapter.SignAndSend(context.Background(), []byte{0xde, 0xad}, "hunter2")
	require.Error(t, err)
}

func TestFakeAdapterReorg(t *testing.T) {
	fake := NewFakeAdapter(100, "regtest")
	fake.AppendBlock("h100", nil)
	fake.AppendBlock("h101", nil)
	fake.AppendBlock("h102", nil)

	height, hash, err := fake.Tip(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 102, height)
	require.Equal(t, "h102", hash)

	fake.Reorg(1, "h101b", nil)
	height, hash, err = fake.Tip(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 101, height)
	require.Equal(t, "h101b", hash)
}
