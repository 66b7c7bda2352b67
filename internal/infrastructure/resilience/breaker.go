package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/finvault/transaction-service/internal/infrastructure/observability"
)

// ErrCircuitOpen is returned without touching the downstream dependency
// while the breaker is cooling down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker is a closed/open/half-open state machine guarding one downstream
// dependency. Only errors matching the isFailure predicate count against the
// threshold, so domain outcomes never trip it.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	isFailure func(error) bool

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

func NewBreaker(name string, threshold int, cooldown time.Duration, isFailure func(error) bool) *Breaker {
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		isFailure: isFailure,
	}
	observability.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn unless the breaker is open. A half-open breaker admits a single
// in-flight probe; concurrent callers are rejected until it completes.
// Probe success closes the circuit, failure reopens it for a full cooldown.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	probe := b.state == StateHalfOpen
	if probe {
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err != nil && b.isFailure(err) {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.threshold {
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
		return err
	}
	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	return err
}

// caller holds b.mu
func (b *Breaker) transition(next State) {
	b.state = next
	observability.BreakerState.WithLabelValues(b.name).Set(float64(next))
}
