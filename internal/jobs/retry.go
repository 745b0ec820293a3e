package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

// ErrPermanent marks an error that must not be retried
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so RetryLinear gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// RetryLinear wraps job so a failed attempt is retried up to attempts times,
// waiting step, 2*step, 3*step... between attempts.
func RetryLinear(name string, attempts int, step time.Duration, job Job) Job {
	if attempts < 1 {
		attempts = 1
	}
	return func(ctx context.Context) error {
		var err error
		for attempt := 1; attempt <= attempts; attempt++ {
			if err = job(ctx); err == nil {
				return nil
			}
			if errors.Is(err, ErrPermanent) || attempt == attempts {
				break
			}

			wait := time.Duration(attempt) * step
			logger.Warn("[Retry] attempt failed",
				"job", name,
				"attempt", attempt,
				"of", attempts,
				"retry_in", wait,
				"error", err)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
			case <-timer.C:
			}
		}
		return fmt.Errorf("%s: %w", name, err)
	}
}
