// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the janitor purges expired records when
// no configuration value is supplied.
const DefaultSweepInterval = 15 * time.Minute

// Janitor periodically removes idle-expired sessions and expired remember
// tokens. Expiry is already enforced at validation time; the sweep only
// keeps the stores from accumulating dead rows.
type Janitor struct {
	sessions    SessionRepository
	tokens      RememberTokenRepository
	idleTimeout time.Duration
	interval    time.Duration
	logger      *slog.Logger
	clock       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a sweep worker. idleTimeout must match the
// SessionManager's so the sweep and the validator agree on what is expired.
func NewJanitor(sessions SessionRepository, tokens RememberTokenRepository, idleTimeout, interval time.Duration) *Janitor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		sessions:    sessions,
		tokens:      tokens,
		idleTimeout: idleTimeout,
		interval:    interval,
		logger:      slog.Default(),
		clock:       time.Now,
	}
}

// RunOnce executes a single sweep cycle. Both purges are attempted even if
// the first fails; errors are combined.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.clock()
	var errs []error

	swept, err := j.sessions.DeleteIdleBefore(ctx, now.Add(-j.idleTimeout))
	if err != nil {
		j.logger.Error("session sweep failed", "error", err)
		errs = append(errs, err)
	} else if swept > 0 {
		RecordSwept("sessions", swept)
		j.logger.Info("swept idle-expired sessions", "count", swept)
	}

	swept, err = j.tokens.DeleteExpiredBefore(ctx, now)
	if err != nil {
		j.logger.Error("remember token sweep failed", "error", err)
		errs = append(errs, err)
	} else if swept > 0 {
		RecordSwept("remember_tokens", swept)
		j.logger.Info("swept expired remember tokens", "count", swept)
	}

	return errors.Join(errs...)
}

// Start launches the periodic sweep loop. Call Stop to shut it down.
func (j *Janitor) Start(ctx context.Context) {
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := j.RunOnce(ctx); err != nil {
					j.logger.Error("sweep cycle failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}
