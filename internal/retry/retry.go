// Package retry wraps idempotent operations with exponential backoff.
// Only failures classified transient by the errors package are retried;
// auth, parse and config failures surface immediately.
package retry

import (
	"context"
	"strconv"
	"time"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

// Policy controls backoff shape. Delay grows geometrically from
// InitialDelay by Multiplier, capped at MaxDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns the stock policy: 3 attempts, 100ms initial
// delay doubling up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// FromConfig builds a Policy from configuration, falling back to
// defaults for unset fields.
func FromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelayMs > 0 {
		p.InitialDelay = time.Duration(cfg.InitialDelayMs) * time.Millisecond
	}
	if cfg.MaxDelayMs > 0 {
		p.MaxDelay = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	}
	if cfg.Multiplier >= 1 {
		p.Multiplier = cfg.Multiplier
	}
	return p
}

// Do runs op under the policy. The operation must be idempotent:
// read-only queries qualify, so at-least-once execution is safe.
// Sleeps between attempts respect ctx cancellation.
func Do(ctx context.Context, p Policy, log *logger.Logger, op func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !errors.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		log.Warn("transient failure, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", lastErr)

		if err := sleep(ctx, delay); err != nil {
			return err
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return errors.Wrap(errors.Code(lastErr), "all retry attempts exhausted", lastErr).
		WithDetail("attempts", strconv.Itoa(p.MaxAttempts))
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, log *logger.Logger, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, log, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.CodeTimeout, "retry interrupted", ctx.Err())
	}
}
