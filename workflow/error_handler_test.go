package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}
}

func TestHandleWithRecovery_TransientErrorRetriedOnce(t *testing.T) {
	h := NewErrorHandler(fastRetryPolicy(), nil, nil, zap.NewNop())

	calls := 0
	result, retries, err := h.HandleWithRecovery(context.Background(), "analysis",
		func(context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, fmt.Errorf("dial upstream: %w", syscall.ECONNREFUSED)
			}
			return "success", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 2, calls, "operation must be invoked exactly twice")
	assert.Equal(t, 1, retries)
}

func TestHandleWithRecovery_PermanentErrorNotRetried(t *testing.T) {
	h := NewErrorHandler(fastRetryPolicy(), nil, nil, zap.NewNop())

	boom := types.NewPermanentAgentError("schema validation failed", nil)
	calls := 0
	_, retries, err := h.HandleWithRecovery(context.Background(), "analysis",
		func(context.Context) (any, error) {
			calls++
			return nil, boom
		})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls, "permanent errors surface after exactly one invocation")
	assert.Equal(t, 0, retries)
}

func TestHandleWithRecovery_UnknownErrorsFailClosed(t *testing.T) {
	h := NewErrorHandler(fastRetryPolicy(), nil, nil, zap.NewNop())

	calls := 0
	_, _, err := h.HandleWithRecovery(context.Background(), "analysis",
		func(context.Context) (any, error) {
			calls++
			return nil, errors.New("something unclassified")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHandleWithRecovery_AttemptBudgetExhausted(t *testing.T) {
	h := NewErrorHandler(RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, nil, nil, zap.NewNop())

	transient := types.NewTransientAgentError("llm unreachable", nil)
	calls := 0
	_, retries, err := h.HandleWithRecovery(context.Background(), "analysis",
		func(context.Context) (any, error) {
			calls++
			return nil, transient
		})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestHandleWithRecovery_BreakerOpensAndFailsFast(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	}, nil, zap.NewNop())
	h := NewErrorHandler(RetryPolicy{MaxAttempts: 1}, reg, nil, zap.NewNop())

	calls := 0
	failing := func(context.Context) (any, error) {
		calls++
		return nil, types.NewPermanentAgentError("down", nil)
	}

	for i := 0; i < 3; i++ {
		_, _, err := h.HandleWithRecovery(context.Background(), "coding", failing)
		require.Error(t, err)
	}
	require.Equal(t, 3, calls)

	// The 4th attempt fails fast; the operation is not invoked.
	_, _, err := h.HandleWithRecovery(context.Background(), "coding", failing)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeCircuitOpen))
	assert.Equal(t, 3, calls)
}

func TestHandleWithRecovery_BreakerRecoversAfterCoolDown(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 1,
	}, nil, zap.NewNop())
	h := NewErrorHandler(RetryPolicy{MaxAttempts: 1}, reg, nil, zap.NewNop())

	_, _, err := h.HandleWithRecovery(context.Background(), "testing",
		func(context.Context) (any, error) {
			return nil, types.NewPermanentAgentError("down", nil)
		})
	require.Error(t, err)
	require.Equal(t, CircuitOpen, reg.GetOrCreate("testing").State())

	time.Sleep(15 * time.Millisecond)

	result, _, err := h.HandleWithRecovery(context.Background(), "testing",
		func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, CircuitClosed, reg.GetOrCreate("testing").State())
}

func TestHandleWithRecovery_OnRetryObserved(t *testing.T) {
	var observed []string
	h := NewErrorHandler(fastRetryPolicy(), nil, func(op string) {
		observed = append(observed, op)
	}, zap.NewNop())

	calls := 0
	_, _, err := h.HandleWithRecovery(context.Background(), "documentation",
		func(context.Context) (any, error) {
			calls++
			if calls == 1 {
				return nil, types.NewTransientAgentError("flaky", nil)
			}
			return "done", nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"documentation"}, observed)
}

func TestHandleWithRecovery_ContextCancelledStopsRetry(t *testing.T) {
	h := NewErrorHandler(RetryPolicy{MaxAttempts: 5, Delay: 50 * time.Millisecond}, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := h.HandleWithRecovery(ctx, "analysis",
		func(context.Context) (any, error) {
			calls++
			return nil, types.NewTransientAgentError("flaky", nil)
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestIsTransient_Classification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked retryable", types.NewTransientAgentError("x", nil), true},
		{"marked permanent", types.NewPermanentAgentError("x", nil), false},
		{"structured not retryable", types.NewInvalidInputError("x"), false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("down")}, true},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
