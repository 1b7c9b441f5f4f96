package workflow

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// CircuitState is the breaker state for one named operation.
type CircuitState int

const (
	// CircuitClosed allows requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen allows trial requests after the cool-down.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures one breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold int `json:"failure_threshold"`
	// RecoveryTimeout is the cool-down before an open breaker admits a
	// trial call.
	RecoveryTimeout time.Duration `json:"recovery_timeout"`
	// SuccessThreshold is the consecutive trial successes in half-open
	// that close the breaker.
	SuccessThreshold int `json:"success_threshold"`
}

// DefaultCircuitBreakerConfig returns the documented defaults: three
// consecutive failures open the breaker, one trial success closes it.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 1,
	}
}

// StateChangeFunc observes breaker state transitions.
type StateChangeFunc func(operation string, oldState, newState CircuitState)

// CircuitBreaker tracks consecutive failures for one named operation and
// fails fast while the operation's dependency is degraded.
type CircuitBreaker struct {
	operation     string
	config        CircuitBreakerConfig
	state         CircuitState
	failures      int
	successes     int
	openedAt      time.Time
	onStateChange StateChangeFunc
	logger        *zap.Logger
	mu            sync.Mutex
}

// NewCircuitBreaker creates a breaker for the named operation.
func NewCircuitBreaker(operation string, config CircuitBreakerConfig, onStateChange StateChangeFunc, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		operation:     operation,
		config:        config,
		state:         CircuitClosed,
		onStateChange: onStateChange,
		logger:        logger.With(zap.String("operation", operation)),
	}
}

// Allow checks whether a call may proceed. While OPEN and inside the
// cool-down it returns an ErrCodeCircuitOpen error without the
// underlying operation being invoked; rejected attempts do not count
// toward the failure counter.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitHalfOpen, "recovery timeout elapsed")
			cb.successes = 0
			return nil
		}
		remaining := cb.config.RecoveryTimeout - time.Since(cb.openedAt)
		return types.NewError(types.ErrCodeCircuitOpen,
			fmt.Sprintf("circuit breaker open for %s: %d consecutive failures, retry after %v",
				cb.operation, cb.failures, remaining.Round(time.Millisecond)))

	case CircuitHalfOpen:
		return nil

	default:
		return types.NewError(types.ErrCodeCircuitOpen,
			fmt.Sprintf("unknown circuit breaker state: %d", cb.state))
	}
}

// RecordSuccess resets the failure counter and, in half-open, counts
// toward closing the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0

	case CircuitHalfOpen:
		cb.successes++
		cb.failures = 0
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed, fmt.Sprintf("%d trial successes in half-open", cb.successes))
			cb.successes = 0
		}
	}
}

// RecordFailure counts a failure; reaching the threshold in CLOSED, or
// any failure in HALF_OPEN, opens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.openedAt = time.Now()
			cb.transitionTo(CircuitOpen, fmt.Sprintf("%d consecutive failures", cb.failures))
		}

	case CircuitHalfOpen:
		cb.successes = 0
		cb.openedAt = time.Now()
		cb.transitionTo(CircuitOpen, "failure in half-open state")
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset returns the breaker to CLOSED with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	oldState := cb.state
	cb.state = CircuitClosed
	cb.failures = 0
	cb.successes = 0
	if oldState != CircuitClosed {
		cb.notify(oldState, CircuitClosed)
	}
}

// transitionTo must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState, reason string) {
	oldState := cb.state
	cb.state = newState

	cb.logger.Info("circuit breaker state change",
		zap.String("old_state", oldState.String()),
		zap.String("new_state", newState.String()),
		zap.String("reason", reason),
		zap.Int("failures", cb.failures))

	cb.notify(oldState, newState)
}

// notify must be called with the lock held; the callback runs
// asynchronously to avoid deadlocks with observer code.
func (cb *CircuitBreaker) notify(oldState, newState CircuitState) {
	if cb.onStateChange != nil {
		go cb.onStateChange(cb.operation, oldState, newState)
	}
}

// CircuitBreakerRegistry manages one breaker per named operation. Agent
// roles share a breaker across workflows.
type CircuitBreakerRegistry struct {
	breakers      map[string]*CircuitBreaker
	config        CircuitBreakerConfig
	onStateChange StateChangeFunc
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewCircuitBreakerRegistry creates a breaker registry.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig, onStateChange StateChangeFunc, logger *zap.Logger) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers:      make(map[string]*CircuitBreaker),
		config:        config,
		onStateChange: onStateChange,
		logger:        logger,
	}
}

// GetOrCreate returns the breaker for the named operation, creating it
// on first use.
func (r *CircuitBreakerRegistry) GetOrCreate(operation string) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[operation]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[operation]; ok {
		return cb
	}

	cb := NewCircuitBreaker(operation, r.config, r.onStateChange, r.logger)
	r.breakers[operation] = cb
	return cb
}

// States returns the current state of every registered breaker.
func (r *CircuitBreakerRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for op, cb := range r.breakers {
		states[op] = cb.State()
	}
	return states
}

// ResetAll resets every registered breaker.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
