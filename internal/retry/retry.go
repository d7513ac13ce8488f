package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

type Callable func(attempt int) error

type retryError struct {
	error
	attempt int
}

// Error marks err as retryable. Incremental keeps going only for
// errors wrapped this way, anything else aborts the loop.
func Error(err error, attempt int) error {
	if err == nil {
		return nil
	}
	return &retryError{error: err, attempt: attempt}
}

// Incremental calls cb up to maxAttempts times, waiting step, then
// 2*step, then 3*step between attempts.
func Incremental(ctx context.Context, step time.Duration, maxAttempts int, cb Callable) error {
	delay := time.Duration(0)

	for attempt := 1; ; attempt++ {
		err := cb(attempt)
		if err == nil {
			return nil
		}

		if _, ok := err.(*retryError); !ok {
			return errors.Wrapf(err, "attempt %d failed", attempt)
		}

		if attempt >= maxAttempts {
			return ErrTooManyAttempts
		}

		delay += step

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
