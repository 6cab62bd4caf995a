package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brc721/brc721d/internal/ratelimit"
)

// RateLimitedClient wraps an RPCClient so every method call is throttled
// through a shared ratelimit.Limiter before it reaches the node, per the
// concurrency design's "node RPC connection (rate-limited by the adapter)".
type RateLimitedClient struct {
	inner   RPCClient
	limiter *ratelimit.Limiter
}

// NewRateLimitedClient wraps inner with a limiter allowing maxCalls calls
// per RPC method within window.
func NewRateLimitedClient(inner RPCClient, maxCalls int, window time.Duration) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, limiter: ratelimit.New(maxCalls, window)}
}

// Call blocks until the limiter admits method, then forwards the call.
func (c *RateLimitedClient) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx, method); err != nil {
		return nil, err
	}
	return c.inner.Call(ctx, method, params...)
}

// Close releases the wrapped client's resources.
func (c *RateLimitedClient) Close() error {
	return c.inner.Close()
}
