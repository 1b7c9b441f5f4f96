package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// Registry maps pipeline stages to the agents that execute them. The
// mapping is fixed at construction; there is no runtime dispatch by
// name.
type Registry struct {
	byStage map[types.Stage]Agent
}

// NewRegistry builds the stage-to-agent mapping for the closed agent
// set. The review agent serves the APPROVAL stage, preparing the
// submission the human decides on.
func NewRegistry(analysis, review, coding, testing, documentation Agent) *Registry {
	return &Registry{
		byStage: map[types.Stage]Agent{
			types.StageAnalysis:      analysis,
			types.StageApproval:      review,
			types.StageCoding:        coding,
			types.StageTesting:       testing,
			types.StageDocumentation: documentation,
		},
	}
}

// NewDefaultRegistry wires the concrete agent set over one shared
// completer.
func NewDefaultRegistry(completer Completer, logger *zap.Logger) *Registry {
	return NewRegistry(
		NewAnalysisAgent(completer, nil, logger),
		NewReviewAgent(completer, nil, logger),
		NewCodingAgent(completer, nil, logger),
		NewTestingAgent(completer, nil, logger),
		NewDocumentationAgent(completer, nil, logger),
	)
}

// ForStage returns the agent registered for a stage.
func (r *Registry) ForStage(stage types.Stage) (Agent, bool) {
	a, ok := r.byStage[stage]
	return a, ok
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
