package listener

import (
	"context"
	"time"
)

// withRetry runs fn up to maxAttempts times, sleeping between attempts with
// a doubling delay starting at baseDelay. No delay is inserted before the
// first attempt or after the last. fn receives the zero-based attempt index.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func(context.Context, int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts-1 {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
