// Package retry runs an operation until it succeeds, either for a bounded
// number of attempts with backoff or forever with a fixed delay.
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Operation performs one attempt.
type Operation func(ctx context.Context) error

// Policy bounds Do.
type Policy struct {
	MaxAttempts   int           // at least 1
	Delay         time.Duration // wait before the second attempt
	BackoffFactor float64       // multiplier applied after each wait; <1 means 1
}

// Do runs op until it succeeds or p.MaxAttempts is exhausted, returning the
// last error. Cancelling ctx stops the wait between attempts.
func Do(ctx context.Context, log *slog.Logger, name string, p Policy, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if log == nil {
		log = slog.Default()
	}
	l := log.With("operation", name)
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := p.Delay

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				l.Info("retry.succeeded", "attempt", attempt)
			}
			return nil
		}
		if attempt == p.MaxAttempts {
			l.Error("retry.exhausted", "attempts", attempt, "err", lastErr)
			break
		}
		l.Warn("retry.failed", "attempt", attempt, "max_attempts", p.MaxAttempts, "delay", delay, "err", lastErr)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * factor)
	}
	return lastErr
}

// Forever runs op until it succeeds, waiting delay between attempts. Only
// ctx cancellation ends the loop early, in which case ctx.Err() is returned.
func Forever(ctx context.Context, log *slog.Logger, name string, delay time.Duration, op Operation) error {
	if log == nil {
		log = slog.Default()
	}
	l := log.With("operation", name)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				l.Info("retry.succeeded", "attempt", attempt)
			}
			return nil
		}
		l.Warn("retry.failed", "attempt", attempt, "delay", delay, "err", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
