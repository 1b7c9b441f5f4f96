package crewflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/crewflow/agent"
	"github.com/BaSui01/crewflow/types"
)

func TestNew_RequiresCompleter(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestPipeline_InMemoryRun(t *testing.T) {
	ctx := context.Background()
	pipeline, err := New(
		WithCompleter(agent.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
			return "generated", nil
		})),
		WithApprovalTimeout(2*time.Second),
	)
	require.NoError(t, err)

	id, err := pipeline.CreateWorkflow(ctx, "Build a todo app")
	require.NoError(t, err)

	w, err := pipeline.Advance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StageApproval, w.Stage)

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			pending, err := pipeline.Approvals.Pending(context.Background())
			if err == nil && len(pending) > 0 {
				_ = pipeline.Approvals.Respond(context.Background(), pending[0].ID, true, "")
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	w, err = pipeline.Advance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StageCoding, w.Stage)
}
