// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Retry policy for transient backend failures.
const (
	retryAttempts = 3
	retryBase     = 50 * time.Millisecond
)

// withRetry runs fn, retrying transient failures with fibonacci backoff.
// Exhausted retries surface as STORE_UNAVAILABLE wrapping
// auth.ErrStoreUnavailable; callers treat that as fail-closed.
func withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewFibonacci(retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil && isTransient(err) {
		return oops.Code("STORE_UNAVAILABLE").
			With("operation", op).
			Wrap(fmt.Errorf("%w: %w", auth.ErrStoreUnavailable, err))
	}
	return err
}

// isTransient reports whether the failure is worth retrying: the request
// never reached the server, or it timed out. Cancellation is not transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
