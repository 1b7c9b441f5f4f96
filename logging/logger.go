// Package logging builds the process logger and emits correlated
// workflow events. Every event carries the workflow's correlation id so
// one requirement can be traced across agents, retries, and stages.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/crewflow/types"
)

// New builds a zap logger from level ("debug", "info", "warn", "error")
// and format ("json", "console"). Unknown values fall back to info/json.
func New(level, format string) *zap.Logger {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// Workflow lifecycle event names.
const (
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
)

// WorkflowLogger emits structured workflow events to a zap sink. One
// JSON-serializable event per call with correlation_id, event,
// workflow_id, and stage fields.
type WorkflowLogger struct {
	logger *zap.Logger
}

// NewWorkflowLogger wraps a zap logger. A nil logger yields a no-op sink.
func NewWorkflowLogger(logger *zap.Logger) *WorkflowLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowLogger{logger: logger}
}

func (l *WorkflowLogger) eventFields(correlationID, workflowID string, stage types.Stage, event string) []zap.Field {
	return []zap.Field{
		zap.String("correlation_id", correlationID),
		zap.String("event", event),
		zap.String("workflow_id", workflowID),
		zap.String("stage", string(stage)),
	}
}

// StageStarted records the beginning of a stage execution.
func (l *WorkflowLogger) StageStarted(correlationID, workflowID string, stage types.Stage) {
	l.logger.Info("workflow stage started",
		l.eventFields(correlationID, workflowID, stage, EventStageStarted)...)
}

// StageCompleted records a successful stage execution with its measured
// duration and memory usage.
func (l *WorkflowLogger) StageCompleted(correlationID, workflowID string, stage types.Stage, duration time.Duration, memoryUsage uint64) {
	fields := l.eventFields(correlationID, workflowID, stage, EventStageCompleted)
	fields = append(fields,
		zap.Duration("duration", duration),
		zap.Uint64("memory_usage", memoryUsage),
	)
	l.logger.Info("workflow stage completed", fields...)
}

// StageFailed records a failed stage execution with the retry count
// consumed before surfacing the error.
func (l *WorkflowLogger) StageFailed(correlationID, workflowID string, stage types.Stage, retryCount int, err error) {
	fields := l.eventFields(correlationID, workflowID, stage, EventStageFailed)
	fields = append(fields,
		zap.Int("retry_count", retryCount),
		zap.Error(err),
	)
	l.logger.Error("workflow stage failed", fields...)
}
