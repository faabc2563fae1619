// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// BackoffPolicy retries an operation with exponential backoff. The zero
// value performs a single attempt with no delay.
type BackoffPolicy struct {
	// MaxAttempts caps the number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Each further retry
	// doubles it.
	BaseDelay time.Duration
}

// Retry runs op until it succeeds, fails permanently, or the attempt budget
// is spent. op reports (retry, err): with retry false, err is returned
// as-is (nil on success). On exhaustion the last error is returned. Waits
// between attempts are cut short by ctx cancellation.
func (p BackoffPolicy) Retry(ctx context.Context, op func(attempt int) (retry bool, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(p.BaseDelay * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-timer.C:
			}
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}
