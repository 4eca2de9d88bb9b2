package custody

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrTransferRejected means the counterparty never authorized the
	// movement (missing or insufficient allowance, unknown holder).
	ErrTransferRejected = errors.New("transfer rejected")
	// ErrTransferFailed covers transport-level denials of an otherwise
	// authorized movement.
	ErrTransferFailed = errors.New("transfer failed")
)

// Transferer moves actual token holdings between external accounts and the
// exchange custody pool. Both calls are remote operations that can fail;
// the engine never treats them as infallible local calls.
type Transferer interface {
	// Pull moves amount of asset from the holder's external holdings into
	// exchange custody. Requires prior authorization by the holder.
	Pull(ctx context.Context, asset string, from uuid.UUID, amount uint64) error
	// Push releases amount of asset from exchange custody back to the
	// holder's external holdings.
	Push(ctx context.Context, asset string, to uuid.UUID, amount uint64) error
}
