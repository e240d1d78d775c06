// Package circuitbreaker guards the upstream weather API: after repeated
// failures calls are rejected immediately until a cooldown elapses, then a
// limited number of probe calls decide whether the upstream has recovered.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

// Config holds breaker parameters. Zero values select the defaults.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker. Default 5.
	FailureThreshold int
	// SuccessThreshold is the consecutive probe successes that close a
	// half-open breaker. Default 2.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects calls before allowing
	// probes. Default 30s.
	Cooldown time.Duration
	// OnStateChange is invoked outside the lock on every transition.
	OnStateChange func(from, to State)
}

// Breaker tracks upstream health across calls. Safe for concurrent use.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	onStateChange    func(from, to State)

	now func() time.Time
}

// New creates a Breaker in the closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		onStateChange:    cfg.OnStateChange,
		now:              time.Now,
	}
}

// Do runs fn when the breaker allows it and records the outcome. When the
// breaker is open and the cooldown has not elapsed, fn is not called and
// ErrOpen is returned.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	if b.state != StateOpen {
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.lastFailure) < b.cooldown {
		b.mu.Unlock()
		return ErrOpen
	}
	b.successes = 0
	b.transition(StateHalfOpen)
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	if !ok {
		b.failures++
		b.lastFailure = b.now()
		if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
			b.failures = 0
			b.transition(StateOpen)
			return
		}
		b.mu.Unlock()
		return
	}
	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.successThreshold {
			b.successes = 0
			b.transition(StateClosed)
			return
		}
	}
	b.mu.Unlock()
}

// transition changes state and releases the lock before invoking the
// callback, which may itself call back into the breaker.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	cb := b.onStateChange
	b.mu.Unlock()
	if cb != nil && from != to {
		cb(from, to)
	}
}
