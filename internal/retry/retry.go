// Package retry re-runs transactions that lost a write conflict.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/truthtally/truthtally/internal/store"
)

// Policy retries an operation while it fails with store.ErrConflict, at most
// MaxRetries times after the first attempt. Every other error is returned
// immediately.
type Policy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry, when set, is called before each retry.
	OnRetry func(err error, wait time.Duration)
}

func Default() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

func (p Policy) Do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	wrapped := func() error {
		err := op()
		if err == nil || errors.Is(err, store.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, wait)
		}
	}
	return backoff.RetryNotify(wrapped, b, notify)
}
