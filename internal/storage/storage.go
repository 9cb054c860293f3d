package storage

import (
	"context"

	"bridgeRelay/internal/model"
)

// DeadLetter defines a durable sink for events that exhausted their
// delivery attempts.
type DeadLetter interface {
	PutFailedRelay(ctx context.Context, record model.FailedRelay) error
}
