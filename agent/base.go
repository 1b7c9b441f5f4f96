package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessFunc is the single fallible operation a concrete agent
// implements: given an input mapping, produce an output mapping.
type ProcessFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Agent is the capability the orchestrator consumes.
type Agent interface {
	// ID returns the unique agent instance identifier.
	ID() string
	// Type returns the fixed role label, e.g. "analysis".
	Type() string
	// Execute runs the agent's processing with start/success/failure
	// logging tied to correlationID. Errors from processing propagate
	// unchanged.
	Execute(ctx context.Context, input map[string]any, correlationID string) (map[string]any, error)
}

// Base carries the common agent identity and execution wrapper.
// Concrete agents embed it and bind their process function at
// construction.
type Base struct {
	id        string
	agentType string
	config    map[string]any
	logger    *zap.Logger

	process ProcessFunc

	mu    sync.RWMutex
	state map[string]any
}

// NewBase creates the shared agent core. Config defaults to empty and is
// treated as immutable after construction.
func NewBase(agentType string, config map[string]any, logger *zap.Logger) Base {
	if config == nil {
		config = map[string]any{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(
		zap.String("agent_id", id),
		zap.String("agent_type", agentType),
	)
	logger.Info("agent initialized")
	return Base{
		id:        id,
		agentType: agentType,
		config:    config,
		logger:    logger,
		state:     map[string]any{},
	}
}

// bind attaches the concrete agent's process function. Called once from
// the concrete constructor.
func (b *Base) bind(process ProcessFunc) {
	b.process = process
}

// ID returns the agent instance identifier.
func (b *Base) ID() string { return b.id }

// Type returns the agent role label.
func (b *Base) Type() string { return b.agentType }

// ConfigValue returns a configuration value supplied at construction.
func (b *Base) ConfigValue(key string) (any, bool) {
	v, ok := b.config[key]
	return v, ok
}

// StateValue returns a value from the agent's private scratch state.
func (b *Base) StateValue(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.state[key]
	return v, ok
}

// SetState stores a value in the agent's private scratch state.
func (b *Base) SetState(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state[key] = value
}

// Execute runs the bound process function, logging start, success, and
// failure with the given correlation id. It never catches and
// suppresses: any error from processing is returned unchanged so the
// orchestrator's recovery policy decides what happens next.
func (b *Base) Execute(ctx context.Context, input map[string]any, correlationID string) (map[string]any, error) {
	start := time.Now()
	logger := b.logger.With(zap.String("correlation_id", correlationID))

	logger.Info("agent execution started",
		zap.Int("input_keys", len(input)))

	result, err := b.process(ctx, input)
	duration := time.Since(start)

	if err != nil {
		logger.Error("agent execution failed",
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, err
	}

	logger.Info("agent execution completed",
		zap.Duration("duration", duration),
		zap.Int("output_keys", len(result)))
	return result, nil
}
