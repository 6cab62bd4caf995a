package wallet

import (
	"context"

	"github.com/brc721/brc721d/internal/node"
)

// resolveFeeRate implements the fee rate rule: a user-supplied rate always
// wins; otherwise it falls back to the node adapter's own estimate.
func resolveFeeRate(ctx context.Context, adapter node.Adapter, userRate int64) (int64, error) {
	if userRate > 0 {
		return userRate, nil
	}
	return adapter.EstimateFeeRate(ctx)
}
