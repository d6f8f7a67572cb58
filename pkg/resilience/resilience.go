// Package resilience executes unreliable external calls with bounded
// retries, per-service circuit breakers, and a guaranteed fallback result.
package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"

	"github.com/lifeinbox/intake/pkg/logging"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Options configures retry behavior for a single Execute call.
type Options struct {
	// MaxRetries bounds retries after the initial attempt. Default: 3.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay time.Duration

	// BackoffFactor multiplies the delay after each retry. Default: 2.
	BackoffFactor float64

	// MaxDelay caps the inter-retry delay. Default: 30s.
	MaxDelay time.Duration

	// AttemptTimeout bounds each individual attempt. Default: 30s.
	AttemptTimeout time.Duration

	// RetryIf decides whether an attempt error is worth retrying.
	// Default: DefaultRetryable.
	RetryIf func(error) bool
}

// DefaultOptions returns the default retry options.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		BaseDelay:      time.Second,
		BackoffFactor:  2,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 30 * time.Second,
		RetryIf:        DefaultRetryable,
	}
}

func normalizeOptions(opts Options) Options {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 2
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	if opts.RetryIf == nil {
		opts.RetryIf = DefaultRetryable
	}
	return opts
}

// BreakerConfig configures the circuit breakers a Registry creates.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a closed breaker. Default: 5.
	FailureThreshold uint

	// ResetWindow is how long an open breaker waits before allowing a
	// half-open probe. Default: 60s.
	ResetWindow time.Duration

	// SuccessThreshold is the number of successes needed in half-open
	// state to close the breaker. Default: 1.
	SuccessThreshold uint

	// OnStateChange is an optional callback invoked on breaker
	// state transitions.
	OnStateChange func(service string, from, to State)
}

// DefaultBreakerConfig returns sensible breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetWindow:      60 * time.Second,
		SuccessThreshold: 1,
	}
}

// Registry owns one circuit breaker per logical service name. Breakers
// are created lazily on first use and live for the Registry's lifetime.
// State is process-local; each instance has its own view of circuit
// health.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]circuitbreaker.CircuitBreaker[any]
	cfg      BreakerConfig
	logger   logging.Logger
}

// NewRegistry creates a breaker registry with the given configuration.
func NewRegistry(cfg BreakerConfig, logger logging.Logger) *Registry {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetWindow == 0 {
		cfg.ResetWindow = 60 * time.Second
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	return &Registry{
		breakers: make(map[string]circuitbreaker.CircuitBreaker[any]),
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *Registry) breaker(service string) circuitbreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[service]; ok {
		return cb
	}
	cb := r.build(service)
	r.breakers[service] = cb
	return cb
}

func (r *Registry) build(service string) circuitbreaker.CircuitBreaker[any] {
	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(r.cfg.FailureThreshold).
		WithDelay(r.cfg.ResetWindow).
		WithSuccessThreshold(r.cfg.SuccessThreshold).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from := convertState(event.OldState)
			to := convertState(event.NewState)

			if r.logger != nil {
				r.logger.WithFields(logging.Fields{
					"circuit_breaker": service,
					"from_state":      from.String(),
					"to_state":        to.String(),
				}).Warn("Circuit breaker state change")
			}
			if r.cfg.OnStateChange != nil {
				r.cfg.OnStateChange(service, from, to)
			}
		})

	return builder.Build()
}

// State returns the current state of the named breaker. Unknown
// services report closed, matching the lazily-created initial state.
func (r *Registry) State(service string) State {
	r.mu.Lock()
	cb, ok := r.breakers[service]
	r.mu.Unlock()

	if !ok {
		return StateClosed
	}
	return convertState(cb.State())
}

// States returns a snapshot of all known breaker states.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = convertState(cb.State())
	}
	return states
}

// Reset discards the named breaker so the next call starts closed.
// This is an explicit operator action.
func (r *Registry) Reset(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, service)
}

func convertState(state circuitbreaker.State) State {
	switch state {
	case circuitbreaker.ClosedState:
		return StateClosed
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// Result carries the outcome of an Execute call.
type Result[T any] struct {
	Value T
	Err   error

	// Attempts is the number of times the primary operation ran.
	Attempts int

	// FallbackUsed reports that the fallback produced the result.
	FallbackUsed bool

	// CircuitBreakerTriggered reports that an open breaker bypassed
	// the primary entirely.
	CircuitBreakerTriggered bool
}

// Success reports whether the call produced a usable value.
func (r Result[T]) Success() bool {
	return r.Err == nil
}

// Execute runs primary with retry, per-attempt timeout, and the named
// service's circuit breaker. When the primary cannot produce a result,
// fallback is invoked exactly once; its value is returned with
// FallbackUsed set. When fallback also fails, the original primary
// error is returned. Execute never panics for primary failures alone.
func Execute[T any](ctx context.Context, reg *Registry, service string, opts Options, primary func(context.Context) (T, error), fallback func(context.Context) (T, error)) Result[T] {
	opts = normalizeOptions(opts)

	retry := retrypolicy.NewBuilder[any]().
		WithBackoffFactor(opts.BaseDelay, opts.MaxDelay, opts.BackoffFactor).
		WithMaxRetries(opts.MaxRetries).
		HandleIf(func(_ any, err error) bool {
			if err == nil || errors.Is(err, circuitbreaker.ErrOpen) {
				return false
			}
			return opts.RetryIf(err)
		}).
		Build()

	attemptTimeout := timeout.New[any](opts.AttemptTimeout)
	cb := reg.breaker(service)

	var attempts int32
	value, err := failsafe.With[any](retry, cb, attemptTimeout).
		WithContext(ctx).
		Get(func() (any, error) {
			atomic.AddInt32(&attempts, 1)
			return primary(ctx)
		})

	result := Result[T]{Attempts: int(atomic.LoadInt32(&attempts))}
	if err == nil {
		result.Value = value.(T)
		return result
	}

	result.CircuitBreakerTriggered = errors.Is(err, circuitbreaker.ErrOpen)
	result.FallbackUsed = true

	if fallback == nil {
		result.Err = err
		return result
	}

	fbValue, fbErr := fallback(ctx)
	if fbErr != nil {
		// Surface the primary failure, not the fallback's.
		result.Err = err
		return result
	}

	result.Value = fbValue
	return result
}
