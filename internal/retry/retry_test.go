package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_Incremental_SucceedsAfterRetryableFailures(t *testing.T) {
	var calls int

	err := Incremental(context.Background(), time.Millisecond, 5, func(attempt int) error {
		calls++
		if calls < 3 {
			return Error(errors.New("still locked"), attempt)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func Test_Incremental_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int

	err := Incremental(context.Background(), time.Millisecond, 3, func(attempt int) error {
		calls++
		return Error(errors.New("still locked"), attempt)
	})

	assert.True(t, errors.Is(err, ErrTooManyAttempts))
	assert.Equal(t, 3, calls)
}

func Test_Incremental_AbortsOnUnrecoverableError(t *testing.T) {
	var calls int
	fatal := errors.New("connection gone")

	err := Incremental(context.Background(), time.Millisecond, 5, func(attempt int) error {
		calls++
		return fatal
	})

	assert.True(t, errors.Is(err, fatal))
	assert.Equal(t, 1, calls)
}

func Test_Incremental_StopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Incremental(ctx, time.Second, 5, func(attempt int) error {
		return Error(errors.New("still locked"), attempt)
	})

	assert.True(t, errors.Is(err, context.Canceled))
}
