// Package retry wraps cenkalti/backoff for the reads and uploads a migration retries
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const defaultInitialInterval = 500 * time.Millisecond

// Policy : exponential backoff capped at MaxRetries retries after the first attempt
type Policy struct {
	MaxRetries int
	// Initial : first wait, defaults to 500ms
	Initial time.Duration
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = defaultInitialInterval
	if p.Initial > 0 {
		exp.InitialInterval = p.Initial
	}
	exp.MaxElapsedTime = 0
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do : runs op until it succeeds, the retries run out or ctx is done.
// Context errors are never retried.
func (p Policy) Do(ctx context.Context, log zerolog.Logger, what string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("op", what).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("retrying")
	})
}
