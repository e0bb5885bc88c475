package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/truthtally/truthtally/internal/store"
)

func fast(n int) Policy {
	return Policy{MaxRetries: n, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestRetriesConflictUntilSuccess(t *testing.T) {
	calls := 0
	err := fast(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("commit: %w", store.ErrConflict)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	retried := 0
	p := fast(2)
	p.OnRetry = func(error, time.Duration) { retried++ }

	err := p.Do(context.Background(), func() error {
		calls++
		return store.ErrConflict
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retried)
}

func TestOtherErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fast(5).Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("wrapped: %w", boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestZeroRetriesRunsOnce(t *testing.T) {
	calls := 0
	err := fast(0).Do(context.Background(), func() error {
		calls++
		return store.ErrConflict
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 1, calls)
}
