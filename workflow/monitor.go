package workflow

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Metrics reports one measured operation execution.
type Metrics struct {
	// ExecutionTime is the wall-clock duration of the run.
	ExecutionTime time.Duration `json:"execution_time"`
	// MemoryUsage is the heap allocation delta across the run. Negative
	// deltas (GC ran during the operation) report as zero.
	MemoryUsage uint64 `json:"memory_usage"`
	// PeakMemory is the heap allocation high-water mark observed.
	PeakMemory uint64 `json:"peak_memory"`
	// ThresholdExceeded is true when ExecutionTime exceeds the
	// configured time threshold.
	ThresholdExceeded bool `json:"threshold_exceeded"`
}

// PerformanceMonitor measures operation executions. Purely
// observational: it never retries, and an operation's error propagates
// unchanged with the partial metrics discarded.
type PerformanceMonitor struct {
	// timeThreshold flags slow executions; zero disables flagging.
	timeThreshold time.Duration
	logger        *zap.Logger
}

// NewPerformanceMonitor creates a monitor. timeThreshold zero means no
// execution is ever flagged.
func NewPerformanceMonitor(timeThreshold time.Duration, logger *zap.Logger) *PerformanceMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceMonitor{
		timeThreshold: timeThreshold,
		logger:        logger,
	}
}

// TrackExecution runs op exactly once, measuring wall-clock duration and
// heap memory. On failure the error propagates unchanged and no metrics
// are reported; duration of a non-completed run is meaningless.
func (m *PerformanceMonitor) TrackExecution(ctx context.Context, operation string, op Operation) (any, Metrics, error) {
	var before runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()

	result, err := op(ctx)
	if err != nil {
		return nil, Metrics{}, err
	}

	elapsed := time.Since(start)
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	metrics := Metrics{
		ExecutionTime:     elapsed,
		ThresholdExceeded: m.timeThreshold > 0 && elapsed > m.timeThreshold,
	}
	if after.HeapAlloc > before.HeapAlloc {
		metrics.MemoryUsage = after.HeapAlloc - before.HeapAlloc
	}
	metrics.PeakMemory = max(after.HeapAlloc, before.HeapAlloc)

	if metrics.ThresholdExceeded {
		m.logger.Warn("operation exceeded time threshold",
			zap.String("operation", operation),
			zap.Duration("duration", elapsed),
			zap.Duration("threshold", m.timeThreshold))
	}

	return result, metrics, nil
}
