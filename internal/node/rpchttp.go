package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPRPCClient implements RPCClient over bitcoind's HTTP JSON-RPC server,
// authenticating with HTTP basic auth per BITCOIN_RPC_USER/BITCOIN_RPC_PASS.
type HTTPRPCClient struct {
	endpoint   string
	user       string
	pass       string
	httpClient *http.Client
	requestID  atomic.Int64
}

// NewHTTPRPCClient creates an HTTP RPC client bound to a single node.
func NewHTTPRPCClient(endpoint, user, pass string, timeout time.Duration) *HTTPRPCClient {
	return &HTTPRPCClient{
		endpoint: endpoint,
		user:     user,
		pass:     pass,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Call executes a single JSON-RPC call against the node.
func (c *HTTPRPCClient) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.user != "" || c.pass != "" {
		httpReq.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc transport: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rpc response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("rpc authentication rejected")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return nil, fmt.Errorf("rpc http status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc method %q: %w", method, rpcResp.Error)
	}

	return rpcResp.Result, nil
}

// Close releases idle HTTP connections held by the client.
func (c *HTTPRPCClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
