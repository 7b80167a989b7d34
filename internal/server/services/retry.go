package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/sethvargo/go-retry"
)

// withRetry runs fn, retrying common.ErrTransient failures with exponential
// backoff up to RetryAttempts extra times. Other errors return immediately.
func (s *FileService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return doRetry(ctx, s.config.RetryAttempts, s.config.RetryBaseDelay, fn)
}

func doRetry(ctx context.Context, attempts uint64, base time.Duration, fn func(ctx context.Context) error) error {
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(base))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, common.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}
