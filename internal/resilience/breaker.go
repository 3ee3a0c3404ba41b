// Package resilience guards calls to external price sources.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the state of a breaker.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name   string
	config Config
	now    func() time.Time

	// IsFailure decides whether an error counts against the breaker.
	// Nil errors never count.
	IsFailure func(error) bool

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	rejected  int64
}

// New creates a closed breaker.
func New(name string, cfg Config, now func() time.Time) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		name:      name,
		config:    cfg,
		now:       now,
		state:     StateClosed,
		IsFailure: func(error) bool { return true },
	}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err)
	return err
}

// Call runs fn unless the breaker is open and returns its result.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var result T
	err := b.Do(func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return false
		}
		b.transitionTo(StateHalfOpen)
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.IsFailure(err) {
		switch b.state {
		case StateClosed:
			b.failures++
			if b.failures >= b.config.FailureThreshold {
				b.transitionTo(StateOpen)
			}
		case StateHalfOpen:
			b.transitionTo(StateOpen)
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) transitionTo(state State) {
	b.state = state
	b.failures = 0
	b.successes = 0
	if state == StateOpen {
		b.openedAt = b.now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Rejected returns how many calls were refused while open.
func (b *Breaker) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}
