package repository

import (
	"context"
	"errors"
	"time"

	"swapstation/internal/shared/apperr"

	"github.com/cenkalti/backoff/v4"
)

// DefaultClaimRetries bounds how often a unit of work is replayed after
// losing a race.
const DefaultClaimRetries = 5

const (
	retryBaseDelay = 2 * time.Millisecond
	retryMaxDelay  = 100 * time.Millisecond
)

// RunWithRetry runs fn in a unit of work and replays it from scratch when it
// fails with apperr.ErrRaceLost. Once attempts are exhausted the race is
// reported as apperr.ErrResourceUnavailable. The number of replays is returned
// for metrics.
func RunWithRetry(ctx context.Context, store Store, attempts int, fn func(tx Tx) error) (int, error) {
	if attempts <= 0 {
		attempts = DefaultClaimRetries
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseDelay
	policy.MaxInterval = retryMaxDelay
	policy.MaxElapsedTime = 0

	retries := 0
	err := backoff.RetryNotify(
		func() error {
			err := store.WithTx(ctx, fn)
			if err != nil && !errors.Is(err, apperr.ErrRaceLost) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx),
		func(error, time.Duration) { retries++ },
	)
	if errors.Is(err, apperr.ErrRaceLost) {
		return retries, apperr.Unavailable("gave up after %d attempts (%v)", attempts, err)
	}
	return retries, err
}
