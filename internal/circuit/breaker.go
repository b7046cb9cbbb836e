package circuit

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/objectfs/snapfs/pkg/errors"
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the timeout elapses.
	StateOpen
	// StateHalfOpen lets a single probe through to test the backend.
	StateHalfOpen
)

// String returns string representation of state
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

// Config contains circuit breaker configuration
type Config struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero disables tripping.
	Threshold uint32 `yaml:"threshold"`

	// Timeout is how long the breaker stays open before a probe is allowed.
	Timeout time.Duration `yaml:"timeout"`

	// IsFailure decides whether an error counts against the backend.
	IsFailure func(err error) bool `yaml:"-"`

	// OnStateChange is called with the breaker lock held.
	OnStateChange func(name string, from, to State) `yaml:"-"`
}

// Counts holds the numbers of calls and their outcomes.
type Counts struct {
	Requests            uint32    `json:"requests"`
	TotalFailures       uint32    `json:"total_failures"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	Rejected            uint32    `json:"rejected"`
	LastActivity        time.Time `json:"last_activity"`
}

// CircuitBreaker stops calling a failing backend for a while so requests
// fail fast instead of each waiting out its own timeouts.
type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu      sync.Mutex
	state   State
	counts  Counts
	expiry  time.Time
	probing bool
}

// NewCircuitBreaker creates a new circuit breaker instance
func NewCircuitBreaker(name string, config Config) *CircuitBreaker {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = DefaultIsFailure
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
}

// DefaultIsFailure counts every error except missing objects and canceled
// calls, which say nothing about the backend's health.
func DefaultIsFailure(err error) bool {
	if err == nil || errors.IsNotExist(err) {
		return false
	}
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}

// IsOpen reports whether err was returned by a breaker rejecting a call.
func IsOpen(err error) bool {
	var snapErr *errors.SnapFSError
	if !stderrors.As(err, &snapErr) {
		return false
	}
	return snapErr.Details["circuit"] == StateOpen.String()
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	err = fn(ctx)
	cb.afterRequest(probe, err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	state := cb.currentState(now)
	if state == StateOpen || (state == StateHalfOpen && cb.probing) {
		cb.counts.Rejected++
		return false, errors.NewError(errors.ErrCodeConnectionFailed, "backend unavailable, circuit breaker is open").
			WithComponent(cb.name).
			WithDetail("circuit", StateOpen.String()).
			WithDetail("retry_after", cb.expiry.Sub(now).String())
	}

	cb.counts.Requests++
	cb.counts.LastActivity = now
	if state == StateHalfOpen {
		cb.probing = true
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) afterRequest(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if probe {
		cb.probing = false
	}

	if !cb.config.IsFailure(err) {
		cb.counts.ConsecutiveFailures = 0
		if probe {
			cb.setState(StateClosed, now)
		}
		return
	}

	cb.counts.TotalFailures++
	cb.counts.ConsecutiveFailures++
	switch {
	case probe:
		cb.setState(StateOpen, now)
	case cb.state == StateClosed && cb.config.Threshold > 0 && cb.counts.ConsecutiveFailures >= cb.config.Threshold:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) State {
	if cb.state == StateOpen && !now.Before(cb.expiry) {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	prev := cb.state
	if prev == state {
		return
	}

	cb.state = state
	switch state {
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case StateClosed:
		cb.counts.ConsecutiveFailures = 0
		cb.expiry = time.Time{}
	case StateHalfOpen:
		cb.expiry = time.Time{}
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState(cb.now())
}

// GetCounts returns a copy of the current counts
func (cb *CircuitBreaker) GetCounts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset closes the breaker and clears its counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.counts = Counts{}
	cb.probing = false
	cb.setState(StateClosed, cb.now())
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
