package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Policy combines a bounded fixed-count retry with a circuit breaker. The
// retryable predicate decides which errors are transport-level and worth
// another attempt; everything else is surfaced immediately.
type Policy struct {
	breaker   *Breaker
	attempts  int
	delay     time.Duration
	retryable func(error) bool
}

func NewPolicy(name string, attempts int, delay time.Duration, threshold int, cooldown time.Duration, retryable func(error) bool) *Policy {
	if attempts < 1 {
		attempts = 1
	}
	return &Policy{
		breaker:   NewBreaker(name, threshold, cooldown, retryable),
		attempts:  attempts,
		delay:     delay,
		retryable: retryable,
	}
}

func (p *Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		err = p.breaker.Do(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) || !p.retryable(err) {
			return err
		}
		if attempt == p.attempts {
			break
		}
		slog.Warn("retrying after transport failure",
			"breaker", p.breaker.name,
			"operation", op,
			"attempt", attempt,
			"error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay * time.Duration(attempt)):
		}
	}
	return err
}
