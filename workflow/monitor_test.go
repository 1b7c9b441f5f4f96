package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTrackExecution_MeasuresDuration(t *testing.T) {
	m := NewPerformanceMonitor(0, zap.NewNop())

	result, metrics, err := m.TrackExecution(context.Background(), "sleepy",
		func(context.Context) (any, error) {
			time.Sleep(100 * time.Millisecond)
			return "done", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.GreaterOrEqual(t, metrics.ExecutionTime, 100*time.Millisecond)
	assert.False(t, metrics.ThresholdExceeded, "threshold disabled by default")
	assert.NotZero(t, metrics.PeakMemory)
}

func TestTrackExecution_ThresholdExceeded(t *testing.T) {
	m := NewPerformanceMonitor(50*time.Millisecond, zap.NewNop())

	_, metrics, err := m.TrackExecution(context.Background(), "sleepy",
		func(context.Context) (any, error) {
			time.Sleep(100 * time.Millisecond)
			return nil, nil
		})

	require.NoError(t, err)
	assert.True(t, metrics.ThresholdExceeded)
}

func TestTrackExecution_ErrorDiscardsMetrics(t *testing.T) {
	m := NewPerformanceMonitor(time.Nanosecond, zap.NewNop())

	boom := errors.New("operation failed")
	result, metrics, err := m.TrackExecution(context.Background(), "failing",
		func(context.Context) (any, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, boom
		})

	assert.ErrorIs(t, err, boom, "error must propagate unchanged")
	assert.Nil(t, result)
	assert.Zero(t, metrics, "no partial metrics for a failed run")
}

func TestTrackExecution_RunsExactlyOnce(t *testing.T) {
	m := NewPerformanceMonitor(0, zap.NewNop())

	calls := 0
	_, _, err := m.TrackExecution(context.Background(), "failing",
		func(context.Context) (any, error) {
			calls++
			return nil, errors.New("no")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "the monitor never retries")
}
