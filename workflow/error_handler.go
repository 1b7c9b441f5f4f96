package workflow

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// Operation is a unit of work run under the recovery policy.
type Operation func(ctx context.Context) (any, error)

// RetryPolicy bounds recovery of transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total invocation budget for transient errors.
	// 2 means one retry.
	MaxAttempts int `json:"max_attempts"`
	// Delay between attempts.
	Delay time.Duration `json:"delay"`
	// Exponential doubles the delay per attempt.
	Exponential bool `json:"exponential"`
}

// DefaultRetryPolicy returns the documented default: one retry with a
// 100ms delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Delay:       100 * time.Millisecond,
		Exponential: false,
	}
}

func (p RetryPolicy) delayFor(attempt int) time.Duration {
	if !p.Exponential {
		return p.Delay
	}
	return p.Delay * (1 << attempt)
}

// ErrorHandler applies the recovery policy around fallible operations:
// it classifies failures as transient or permanent, retries transient
// ones within the attempt budget, and consults the circuit breaker for
// the named operation when one is wired.
type ErrorHandler struct {
	policy   RetryPolicy
	breakers *CircuitBreakerRegistry
	onRetry  func(operation string)
	logger   *zap.Logger
}

// NewErrorHandler creates an error handler. A nil registry disables
// circuit breaking; onRetry (optional) observes each retry for metrics.
func NewErrorHandler(policy RetryPolicy, breakers *CircuitBreakerRegistry, onRetry func(operation string), logger *zap.Logger) *ErrorHandler {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{
		policy:   policy,
		breakers: breakers,
		onRetry:  onRetry,
		logger:   logger,
	}
}

// HandleWithRecovery runs op under the recovery policy and returns its
// result along with the number of retries consumed.
//
// Breaker semantics: when a registry is wired, every invocation first
// checks the operation's breaker; an open breaker fails immediately with
// an ErrCodeCircuitOpen error and the underlying operation is not
// invoked. Outcomes of invoked attempts are reported back to the
// breaker.
//
// Classification is by error kind: errors marked retryable and
// network/timeout-class errors are transient and retried within the
// attempt budget; everything else is permanent and surfaces after a
// single invocation.
func (h *ErrorHandler) HandleWithRecovery(ctx context.Context, operation string, op Operation) (any, int, error) {
	var cb *CircuitBreaker
	if h.breakers != nil {
		cb = h.breakers.GetOrCreate(operation)
	}

	retries := 0
	for attempt := 0; ; attempt++ {
		if cb != nil {
			if err := cb.Allow(); err != nil {
				return nil, retries, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			if cb != nil {
				cb.RecordSuccess()
			}
			return result, retries, nil
		}

		if cb != nil {
			cb.RecordFailure()
		}

		if !IsTransient(err) {
			h.logger.Debug("permanent error, not retrying",
				zap.String("operation", operation),
				zap.Error(err))
			return nil, retries, err
		}

		if attempt+1 >= h.policy.MaxAttempts {
			h.logger.Warn("transient error, attempt budget exhausted",
				zap.String("operation", operation),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return nil, retries, err
		}

		h.logger.Info("transient error, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if h.onRetry != nil {
			h.onRetry(operation)
		}
		retries++

		select {
		case <-time.After(h.policy.delayFor(attempt)):
		case <-ctx.Done():
			return nil, retries, ctx.Err()
		}
	}
}

// IsTransient classifies an error by kind. Transient covers errors
// explicitly marked retryable plus the network/connection/timeout
// family; unknown errors classify permanent, failing closed rather than
// retrying indefinitely.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}
	// A structured error that is not marked retryable stays permanent.
	if code := types.GetErrorCode(err); code != "" {
		return false
	}
	// Caller cancellation is not a failure to recover from.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
		syscall.EPIPE, syscall.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
