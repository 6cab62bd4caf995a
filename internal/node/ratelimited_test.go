package node

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls int
}

func (c *countingClient) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	c.calls++
	return json.RawMessage(`0`), nil
}

func (c *countingClient) Close() error { return nil }

func TestRateLimitedClientThrottlesPerMethod(t *testing.T) {
	inner := &countingClient{}
	client := NewRateLimitedClient(inner, 1, time.Hour)

	_, err := client.Call(context.Background(), "getblockcount")
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "getblockcount")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, inner.calls)
}

func TestRateLimitedClientForwardsClose(t *testing.T) {
	inner := &countingClient{}
	client := NewRateLimitedClient(inner, 1, time.Hour)
	require.NoError(t, client.Close())
}
