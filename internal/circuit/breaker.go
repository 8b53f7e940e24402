// Package circuit implements a circuit breaker around the storage
// transport. Repeated transport failures open the circuit and short-circuit
// further requests until a recovery probe succeeds.
package circuit

import (
	"sync"
	"time"

	"github.com/caskstore/caskstore/pkg/errors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed - requests pass through.
	StateClosed State = iota
	// StateOpen - requests are rejected without reaching the transport.
	StateOpen
	// StateHalfOpen - a limited probe is allowed to test recovery.
	StateHalfOpen
)

// String returns string representation of state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config contains circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker.
	FailureThreshold int `yaml:"failure_threshold"`

	// Timeout is the open-state period after which a probe is allowed.
	Timeout time.Duration `yaml:"timeout"`

	// IsFailure decides whether an error counts against the breaker.
	// Defaults to counting every non-nil error.
	IsFailure func(err error) bool `yaml:"-"`
}

// Counts holds request outcome counters.
type Counts struct {
	Requests            uint32 `json:"requests"`
	TotalSuccesses      uint32 `json:"total_successes"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// Breaker implements the circuit breaker pattern for one store's transport.
type Breaker struct {
	name   string
	config Config

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
}

// New creates a breaker, applying defaults for zero values.
func New(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn if the breaker allows it. A rejected request returns a
// retryable unavailability error so the retry scheduler backs off.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Counts returns a snapshot of the outcome counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState(time.Now())
	if state == StateOpen {
		return errors.Newf(errors.ErrCodeServiceUnavailable,
			"circuit breaker %s is open", b.name)
	}

	b.counts.Requests++
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if b.config.IsFailure(err) {
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		if state == StateHalfOpen ||
			b.counts.ConsecutiveFailures >= uint32(b.config.FailureThreshold) {
			b.state = StateOpen
			b.openedAt = now
		}
		return
	}

	b.counts.TotalSuccesses++
	b.counts.ConsecutiveFailures = 0
	if state == StateHalfOpen {
		b.state = StateClosed
	}
}

// currentState transitions open to half-open once the timeout elapses.
// Callers must hold b.mu.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.config.Timeout {
		b.state = StateHalfOpen
	}
	return b.state
}
