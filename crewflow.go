// Package crewflow provides a top-level convenience entry point for
// running the development pipeline in-process with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/crewflow"
//
//	pipeline, err := crewflow.New(crewflow.WithCompleter(myCompleter))
//	id, err := pipeline.CreateWorkflow(ctx, "Build a todo app")
//	w, err := pipeline.Advance(ctx, id)
//
// Everything defaults to in-memory stores and the standard recovery
// policy; use the workflow package directly for full control.
package crewflow

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/approval"
	"github.com/BaSui01/crewflow/logging"
	"github.com/BaSui01/crewflow/workflow"
)

// Pipeline bundles the orchestrator with its approval client so
// embedders can both advance workflows and record decisions.
type Pipeline struct {
	*workflow.Orchestrator

	// Approvals records human decisions for workflows blocked at the
	// approval gate.
	Approvals *approval.Client
}

type options struct {
	completer       agent.Completer
	approvalTimeout time.Duration
	logger          *zap.Logger
}

// Option configures the pipeline created by [New].
type Option func(*options)

// WithCompleter sets the LLM completion backend. Required.
func WithCompleter(c agent.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithApprovalTimeout bounds the blocking wait at the approval gate.
func WithApprovalTimeout(d time.Duration) Option {
	return func(o *options) { o.approvalTimeout = d }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an in-memory pipeline over the given completer.
func New(opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.completer == nil {
		return nil, fmt.Errorf("crewflow: a completer is required, use WithCompleter")
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	approvals := approval.NewClient(approval.NewMemoryStore(), nil, logger)
	orch, err := workflow.NewOrchestrator(workflow.OrchestratorOptions{
		Store:           workflow.NewMemoryStore(),
		Agents:          agent.NewDefaultRegistry(o.completer, logger),
		Approvals:       approvals,
		Events:          logging.NewWorkflowLogger(logger),
		ApprovalTimeout: o.approvalTimeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return &Pipeline{Orchestrator: orch, Approvals: approvals}, nil
}
