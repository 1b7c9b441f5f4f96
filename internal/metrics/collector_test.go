package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := NewCollector("crewflow", reg, zap.NewNop())
	require.NotNil(t, c)
	return c, reg
}

func TestCollector_WorkflowCounters(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordWorkflowCreated()
	c.RecordWorkflowCreated()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.workflowsCreated.WithLabelValues()))

	c.RecordStageTransition("ANALYSIS", "APPROVAL")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stageTransitions.WithLabelValues("ANALYSIS", "APPROVAL")))
}

func TestCollector_AgentExecution(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordAgentExecution("analysis", "success", 100*time.Millisecond)
	c.RecordAgentExecution("analysis", "failure", 50*time.Millisecond)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.agentExecutions.WithLabelValues("analysis", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.agentExecutions.WithLabelValues("analysis", "failure")))
}

func TestCollector_BreakerAndApproval(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordBreakerState("analysis", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.breakerState.WithLabelValues("analysis")))

	c.RecordRetry("coding")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.retries.WithLabelValues("coding")))

	c.RecordApprovalDecision("approved")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.approvalDecisions.WithLabelValues("approved")))
}
