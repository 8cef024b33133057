// Package retryx retries startup probes of external dependencies.
package retryx

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Policy bounds a probe: up to MaxRetries retries after the first attempt,
// backing off exponentially from Base and never waiting longer than Cap.
type Policy struct {
	MaxRetries uint64
	Base       time.Duration
	Cap        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 8, Base: 250 * time.Millisecond, Cap: 5 * time.Second}
}

// Probe calls fn until it succeeds, the retries run out or ctx is done.
// Every error fn returns is treated as transient.
func Probe(ctx context.Context, p Policy, logger logging.Logger, name string, fn func(context.Context) error) error {
	b := retry.NewExponential(p.Base)
	if p.Cap > 0 {
		b = retry.WithCappedDuration(p.Cap, b)
	}
	b = retry.WithMaxRetries(p.MaxRetries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			logger.Warn(ctx, "dependency not ready", "dependency", name, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s unavailable after %d attempts: %w", name, attempt, err)
	}
	return nil
}
