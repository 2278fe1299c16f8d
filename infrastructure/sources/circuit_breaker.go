package sources

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-mqm/internal/ports"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a fetch.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

// Circuit breaker states.
const (
	// StateClosed lets every fetch through.
	StateClosed CircuitState = iota
	// StateOpen rejects fetches until the cooldown expires.
	StateOpen
	// StateHalfOpen lets one trial fetch through.
	StateHalfOpen
)

// String returns the state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a source after maxFailures consecutive
// failures and tries again after cooldown.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        CircuitState
	failureCount int
	maxFailures  int
	cooldown     time.Duration
	lastFailure  time.Time
	now          func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:       StateClosed,
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Call runs fn unless the circuit is open and updates the state from its
// result. Cancellation of the caller does not count as a failure.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}

	err := fn()
	switch {
	case err == nil:
		cb.failureCount = 0
		cb.state = StateClosed
	case ctx.Err() != nil:
	default:
		cb.failureCount++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
	}
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Breaker guards fetches with cb.
func Breaker(cb *CircuitBreaker) Middleware {
	return func(next ports.Source) ports.Source {
		return fetchFunc{name: next.Name(), fetch: func(ctx context.Context) (string, error) {
			var text string
			err := cb.Call(ctx, func() error {
				var err error
				text, err = next.Fetch(ctx)
				return err
			})
			if errors.Is(err, ErrCircuitOpen) {
				return "", ports.NewSourceFetchError(next.Name(), err)
			}
			return text, err
		}}
	}
}
