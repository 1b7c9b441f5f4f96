package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/approval"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/logging"
	"github.com/BaSui01/crewflow/types"
)

// OrchestratorOptions wires the orchestrator's collaborators.
type OrchestratorOptions struct {
	// Store persists workflow records. Required.
	Store Store
	// Agents maps stages to the agents executing them. Required.
	Agents *agent.Registry
	// Approvals is the human approval gate. Required.
	Approvals *approval.Client
	// ErrorHandler applies the recovery policy. Defaults to the standard
	// policy without circuit breaking.
	ErrorHandler *ErrorHandler
	// Monitor measures agent executions. Defaults to an unthresholded
	// monitor.
	Monitor *PerformanceMonitor
	// Events receives structured workflow events. Defaults to a no-op
	// sink.
	Events *logging.WorkflowLogger
	// Metrics records pipeline metrics. Optional.
	Metrics *metrics.Collector
	// ApprovalTimeout bounds the blocking wait at the approval gate.
	// Defaults to five minutes.
	ApprovalTimeout time.Duration
	// AgentRateLimit throttles agent invocations across all workflows
	// (requests per second). Zero disables throttling.
	AgentRateLimit float64
	// AgentRateBurst is the throttle burst size.
	AgentRateBurst int
	// Logger is the process logger. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Orchestrator owns workflow records and advances them through the
// pipeline stages one Advance call at a time.
type Orchestrator struct {
	store           Store
	agents          *agent.Registry
	approvals       *approval.Client
	errorHandler    *ErrorHandler
	monitor         *PerformanceMonitor
	events          *logging.WorkflowLogger
	metrics         *metrics.Collector
	approvalTimeout time.Duration
	limiter         *rate.Limiter
	tracer          trace.Tracer
	logger          *zap.Logger

	// inflight enforces single-flight Advance per workflow id.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewOrchestrator creates an orchestrator from its options.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a workflow store")
	}
	if opts.Agents == nil {
		return nil, fmt.Errorf("orchestrator requires an agent registry")
	}
	if opts.Approvals == nil {
		return nil, fmt.Errorf("orchestrator requires an approval client")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	errorHandler := opts.ErrorHandler
	if errorHandler == nil {
		errorHandler = NewErrorHandler(DefaultRetryPolicy(), nil, nil, logger)
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = NewPerformanceMonitor(0, logger)
	}
	events := opts.Events
	if events == nil {
		events = logging.NewWorkflowLogger(nil)
	}
	approvalTimeout := opts.ApprovalTimeout
	if approvalTimeout <= 0 {
		approvalTimeout = 5 * time.Minute
	}
	var limiter *rate.Limiter
	if opts.AgentRateLimit > 0 {
		burst := opts.AgentRateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.AgentRateLimit), burst)
	}

	return &Orchestrator{
		store:           opts.Store,
		agents:          opts.Agents,
		approvals:       opts.Approvals,
		errorHandler:    errorHandler,
		monitor:         monitor,
		events:          events,
		metrics:         opts.Metrics,
		approvalTimeout: approvalTimeout,
		limiter:         limiter,
		tracer:          otel.Tracer("crewflow/workflow"),
		logger:          logger.With(zap.String("component", "orchestrator")),
		inflight:        make(map[string]struct{}),
	}, nil
}

// CreateWorkflow allocates a workflow at ANALYSIS with a fresh
// correlation id. Empty requirements fail with ErrCodeInvalidInput.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, requirements string) (string, error) {
	if strings.TrimSpace(requirements) == "" {
		return "", types.NewInvalidInputError("requirements must not be empty")
	}

	id := uuid.NewString()
	now := time.Now()
	w := &types.Workflow{
		ID:            id,
		Requirements:  requirements,
		Stage:         types.StageAnalysis,
		CorrelationID: "workflow_" + id[:8],
		Artifacts:     map[types.Stage]types.Artifact{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := o.store.Save(ctx, w); err != nil {
		return "", err
	}

	o.logger.Info("workflow created",
		zap.String("workflow_id", id),
		zap.String("correlation_id", w.CorrelationID))
	if o.metrics != nil {
		o.metrics.RecordWorkflowCreated()
	}
	return id, nil
}

// GetWorkflow returns the workflow record or an ErrCodeNotFound error.
func (o *Orchestrator) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	return o.store.Get(ctx, id)
}

// ListWorkflows returns all workflow records for the presentation layer.
func (o *Orchestrator) ListWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	return o.store.List(ctx)
}

// DeleteWorkflow removes a workflow record. Administrative operation;
// the pipeline itself never deletes.
func (o *Orchestrator) DeleteWorkflow(ctx context.Context, id string) error {
	if err := o.store.Delete(ctx, id); err != nil {
		return err
	}
	o.logger.Info("workflow deleted", zap.String("workflow_id", id))
	return nil
}

// ResetWorkflow returns a workflow to ANALYSIS with artifacts and
// failure state cleared. The recovery path for failed or timed-out
// workflows.
func (o *Orchestrator) ResetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	release, err := o.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	w, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	w.Stage = types.StageAnalysis
	w.Artifacts = map[types.Stage]types.Artifact{}
	w.Failure = nil
	w.UpdatedAt = time.Now()
	if err := o.store.Update(ctx, w); err != nil {
		return nil, err
	}

	o.logger.Info("workflow reset",
		zap.String("workflow_id", id),
		zap.String("correlation_id", w.CorrelationID))
	return w, nil
}

// Advance executes the workflow's current stage and moves it forward.
//
// Exactly one Advance may run per workflow id at a time; a concurrent
// call fails with ErrCodeWorkflowBusy. On an unrecoverable stage
// failure the workflow transitions to FAILED with the failing stage and
// reason recorded, and Advance returns the updated record together with
// the error.
func (o *Orchestrator) Advance(ctx context.Context, id string) (*types.Workflow, error) {
	release, err := o.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	w, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Stage.Terminal() {
		return w, types.NewInvalidInputError(
			fmt.Sprintf("workflow %s is %s and cannot advance", id, w.Stage))
	}

	ctx, span := o.tracer.Start(ctx, "workflow.advance",
		trace.WithAttributes(
			attribute.String("workflow.id", id),
			attribute.String("workflow.stage", string(w.Stage)),
		))
	defer span.End()

	stage := w.Stage
	o.events.StageStarted(w.CorrelationID, w.ID, stage)

	var outcome stageOutcome
	if stage == types.StageApproval {
		outcome = o.runApprovalStage(ctx, w)
	} else {
		outcome = o.runAgentStage(ctx, w)
	}

	if outcome.err != nil {
		span.RecordError(outcome.err)
		return o.failWorkflow(ctx, w, stage, outcome)
	}

	next, ok := stage.Next()
	if !ok {
		// Unreachable for non-terminal stages; guards the state machine.
		return w, types.NewInvalidInputError(
			fmt.Sprintf("stage %s has no successor", stage))
	}

	w.Artifacts[stage] = outcome.artifact
	w.Stage = next
	w.UpdatedAt = time.Now()
	if err := o.store.Update(ctx, w); err != nil {
		return nil, err
	}

	o.events.StageCompleted(w.CorrelationID, w.ID, stage, outcome.metrics.ExecutionTime, outcome.metrics.MemoryUsage)
	if o.metrics != nil {
		o.metrics.RecordStageTransition(string(stage), string(next))
	}
	return w, nil
}

// acquire takes the single-flight slot for the workflow id.
func (o *Orchestrator) acquire(id string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[id]; busy {
		return nil, types.NewWorkflowBusyError(id)
	}
	o.inflight[id] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.inflight, id)
		o.mu.Unlock()
	}, nil
}

// stageOutcome carries the result of executing one stage.
type stageOutcome struct {
	artifact types.Artifact
	metrics  Metrics
	retries  int
	err      error
}

// failWorkflow routes the workflow to FAILED with the failure detail
// recorded, then surfaces the error to the caller.
func (o *Orchestrator) failWorkflow(ctx context.Context, w *types.Workflow, stage types.Stage, outcome stageOutcome) (*types.Workflow, error) {
	code := types.GetErrorCode(outcome.err)
	if code == "" {
		code = types.ErrCodeInternal
	}
	w.Failure = &types.Failure{
		Stage:   stage,
		Code:    code,
		Message: outcome.err.Error(),
	}
	w.Stage = types.StageFailed
	w.UpdatedAt = time.Now()
	if err := o.store.Update(ctx, w); err != nil {
		o.logger.Error("failed to record workflow failure",
			zap.String("workflow_id", w.ID),
			zap.Error(err))
	}

	o.events.StageFailed(w.CorrelationID, w.ID, stage, outcome.retries, outcome.err)
	if o.metrics != nil {
		o.metrics.RecordStageTransition(string(stage), string(types.StageFailed))
	}
	return w, outcome.err
}

// runAgentStage executes the agent registered for the workflow's
// current stage under the recovery policy and performance monitor.
func (o *Orchestrator) runAgentStage(ctx context.Context, w *types.Workflow) stageOutcome {
	ag, ok := o.agents.ForStage(w.Stage)
	if !ok {
		return stageOutcome{err: types.NewInvalidInputError(
			fmt.Sprintf("no agent registered for stage %s", w.Stage))}
	}
	return o.executeAgent(ctx, w, ag)
}

// executeAgent runs one agent invocation wrapped by the error handler
// and per-attempt performance measurement.
func (o *Orchestrator) executeAgent(ctx context.Context, w *types.Workflow, ag agent.Agent) stageOutcome {
	input := o.buildAgentInput(w)

	var captured Metrics
	result, retries, err := o.errorHandler.HandleWithRecovery(ctx, ag.Type(), func(ctx context.Context) (any, error) {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		res, m, err := o.monitor.TrackExecution(ctx, ag.Type(), func(ctx context.Context) (any, error) {
			return ag.Execute(ctx, input, w.CorrelationID)
		})
		if err != nil {
			if o.metrics != nil {
				o.metrics.RecordAgentExecution(ag.Type(), "failure", 0)
			}
			return nil, err
		}
		captured = m
		if o.metrics != nil {
			o.metrics.RecordAgentExecution(ag.Type(), "success", m.ExecutionTime)
		}
		return res, nil
	})
	if err != nil {
		return stageOutcome{retries: retries, err: err}
	}

	output, ok := result.(map[string]any)
	if !ok {
		return stageOutcome{retries: retries, err: types.NewPermanentAgentError(
			fmt.Sprintf("agent %s returned unexpected result type %T", ag.Type(), result), nil)}
	}
	return stageOutcome{artifact: types.Artifact(output), metrics: captured, retries: retries}
}

// runApprovalStage prepares the review summary, submits the analysis
// artifact for human approval, and blocks for the decision. A human
// rejection is a terminal outcome for the workflow, not a system error.
func (o *Orchestrator) runApprovalStage(ctx context.Context, w *types.Workflow) stageOutcome {
	analysis, ok := w.Artifacts[types.StageAnalysis]
	if !ok {
		return stageOutcome{err: types.NewPermanentAgentError(
			"approval stage requires the analysis artifact", nil)}
	}
	analysisOutput, _ := analysis["output"].(string)

	reviewer, ok := o.agents.ForStage(types.StageApproval)
	if !ok {
		return stageOutcome{err: types.NewInvalidInputError(
			"no agent registered for stage APPROVAL")}
	}
	reviewOutcome := o.executeAgent(ctx, w, reviewer)
	if reviewOutcome.err != nil {
		return reviewOutcome
	}
	reviewSummary, _ := reviewOutcome.artifact["output"].(string)

	title, _ := analysis["title"].(string)
	if title == "" {
		title = "Workflow " + w.ID
	}
	var diagrams []string
	if raw, ok := analysis["diagrams"].([]string); ok {
		diagrams = raw
	}
	content := analysisOutput
	if reviewSummary != "" {
		content += "\n\n## Review summary\n" + reviewSummary
	}

	approvalID, err := o.approvals.Submit(ctx, title, content, diagrams)
	if err != nil {
		return stageOutcome{retries: reviewOutcome.retries, err: err}
	}
	o.logger.Info("workflow awaiting approval",
		zap.String("workflow_id", w.ID),
		zap.String("correlation_id", w.CorrelationID),
		zap.String("approval_id", approvalID))

	decision, err := o.approvals.Wait(ctx, approvalID, o.approvalTimeout)
	if err != nil {
		return stageOutcome{retries: reviewOutcome.retries, err: err}
	}
	if !decision.Approved {
		return stageOutcome{retries: reviewOutcome.retries, err: types.NewError(
			types.ErrCodeApprovalRejected,
			fmt.Sprintf("analysis rejected by reviewer: %s", decision.Feedback))}
	}

	artifact := types.Artifact{
		"approval_id": approvalID,
		"approved":    true,
		"feedback":    decision.Feedback,
		"decided_at":  decision.DecidedAt,
	}
	if reviewSummary != "" {
		artifact["output"] = reviewSummary
	}
	return stageOutcome{
		artifact: artifact,
		metrics:  reviewOutcome.metrics,
		retries:  reviewOutcome.retries,
	}
}

// buildAgentInput flattens the workflow state into the agent input
// mapping: the raw requirements plus the prior stages' primary outputs.
func (o *Orchestrator) buildAgentInput(w *types.Workflow) map[string]any {
	input := map[string]any{"requirements": w.Requirements}
	if art, ok := w.Artifacts[types.StageAnalysis]; ok {
		if out, ok := art["output"].(string); ok {
			input["analysis"] = out
		}
	}
	if art, ok := w.Artifacts[types.StageCoding]; ok {
		if out, ok := art["output"].(string); ok {
			input["code"] = out
		}
	}
	if art, ok := w.Artifacts[types.StageTesting]; ok {
		if out, ok := art["output"].(string); ok {
			input["tests"] = out
		}
	}
	return input
}
