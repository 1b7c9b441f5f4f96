package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records pipeline metrics: workflow lifecycle, agent
// executions, recovery activity, and approval outcomes.
type Collector struct {
	workflowsCreated *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec

	agentExecutions        *prometheus.CounterVec
	agentExecutionDuration *prometheus.HistogramVec

	retries      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec

	approvalDecisions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered against reg.
// A nil reg registers against the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.workflowsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_created_total",
			Help:      "Total number of workflows created",
		},
		[]string{},
	)

	c.stageTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Total number of workflow stage transitions",
		},
		[]string{"from_stage", "to_stage"},
	)

	c.agentExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_executions_total",
			Help:      "Total number of agent executions",
		},
		[]string{"agent_type", "status"},
	)

	c.agentExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_execution_duration_seconds",
			Help:      "Agent execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent_type"},
	)

	c.retries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_retries_total",
			Help:      "Total number of transient-error retries",
		},
		[]string{"operation"},
	)

	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"operation"},
	)

	c.approvalDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Total number of human approval decisions",
		},
		[]string{"status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordWorkflowCreated records a workflow creation.
func (c *Collector) RecordWorkflowCreated() {
	c.workflowsCreated.WithLabelValues().Inc()
}

// RecordStageTransition records a workflow stage transition.
func (c *Collector) RecordStageTransition(fromStage, toStage string) {
	c.stageTransitions.WithLabelValues(fromStage, toStage).Inc()
}

// RecordAgentExecution records one agent execution outcome.
func (c *Collector) RecordAgentExecution(agentType, status string, duration time.Duration) {
	c.agentExecutions.WithLabelValues(agentType, status).Inc()
	c.agentExecutionDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordRetry records one retry of a named operation.
func (c *Collector) RecordRetry(operation string) {
	c.retries.WithLabelValues(operation).Inc()
}

// RecordBreakerState records a circuit breaker state change.
func (c *Collector) RecordBreakerState(operation string, state int) {
	c.breakerState.WithLabelValues(operation).Set(float64(state))
}

// RecordApprovalDecision records a human approval outcome.
func (c *Collector) RecordApprovalDecision(status string) {
	c.approvalDecisions.WithLabelValues(status).Inc()
}
