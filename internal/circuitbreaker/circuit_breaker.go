package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the position of a breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
)

// Config tunes a CircuitBreaker. A zero Interval keeps closed-state counts
// until the next transition.
type Config struct {
	MaxRequests      uint32 // calls admitted while half-open
	Interval         time.Duration
	Timeout          time.Duration // open -> half-open cool down
	FailureThreshold uint32
	SuccessThreshold uint32
	OnStateChange    func(name string, from State, to State)
}

func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// Counts are the outcomes recorded in the current window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) record(ok bool) {
	if ok {
		c.TotalSuccesses++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		return
	}
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker fails fast on a dependency that keeps erroring, such as the
// synthesis endpoint or the Redis feedback table. Each transition opens a new
// window; outcomes of calls admitted in an older window are dropped.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger

	mutex    sync.Mutex
	state    State
	window   uint64
	counts   Counts
	deadline time.Time
}

func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{name: name, config: config, logger: logger}
	cb.openWindow(time.Now())
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn when the breaker admits it and records the outcome. A done
// ctx is rejected without counting; a panic in fn counts as a failure and is
// re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	window, err := cb.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() { cb.settle(window, ok) }()
	err = fn()
	ok = err == nil
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.advance(time.Now())
}

func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.counts
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.advance(time.Now()) {
	case StateOpen:
		return 0, ErrCircuitBreakerOpen
	case StateHalfOpen:
		if cb.counts.Requests >= cb.config.MaxRequests {
			return 0, ErrTooManyRequests
		}
	}
	cb.counts.Requests++
	return cb.window, nil
}

func (cb *CircuitBreaker) settle(window uint64, ok bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state := cb.advance(now)
	if window != cb.window {
		return
	}
	cb.counts.record(ok)

	switch {
	case ok && state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold:
		cb.transition(StateClosed, now)
	case !ok && state == StateHalfOpen:
		cb.transition(StateOpen, now)
	case !ok && state == StateClosed && cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold:
		cb.transition(StateOpen, now)
	}
}

// advance applies the time driven steps: an expired closed window starts
// over and a cooled down open breaker goes half-open.
func (cb *CircuitBreaker) advance(now time.Time) State {
	if cb.deadline.IsZero() || now.Before(cb.deadline) {
		return cb.state
	}
	switch cb.state {
	case StateClosed:
		cb.openWindow(now)
	case StateOpen:
		cb.transition(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.openWindow(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}

func (cb *CircuitBreaker) openWindow(now time.Time) {
	cb.window++
	cb.counts = Counts{}
	cb.deadline = time.Time{}
	switch {
	case cb.state == StateClosed && cb.config.Interval > 0:
		cb.deadline = now.Add(cb.config.Interval)
	case cb.state == StateOpen:
		cb.deadline = now.Add(cb.config.Timeout)
	}
}
