package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

func newStoredWorkflow(id string) *types.Workflow {
	now := time.Now()
	return &types.Workflow{
		ID:            id,
		Requirements:  "Build a todo app",
		Stage:         types.StageAnalysis,
		CorrelationID: "workflow_" + id,
		Artifacts:     map[types.Stage]types.Artifact{},
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// storeUnderTest runs the Store contract suite against an
// implementation.
func storeUnderTest(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		w := newStoredWorkflow("wf-save")
		w.Artifacts[types.StageAnalysis] = types.Artifact{"output": "plan"}
		require.NoError(t, store.Save(ctx, w))

		got, err := store.Get(ctx, "wf-save")
		require.NoError(t, err)
		assert.Equal(t, w.ID, got.ID)
		assert.Equal(t, types.StageAnalysis, got.Stage)
		assert.Equal(t, "plan", got.Artifacts[types.StageAnalysis]["output"])
	})

	t.Run("SaveDuplicateRejected", func(t *testing.T) {
		w := newStoredWorkflow("wf-dup")
		require.NoError(t, store.Save(ctx, w))
		assert.Error(t, store.Save(ctx, newStoredWorkflow("wf-dup")))
	})

	t.Run("GetUnknown", func(t *testing.T) {
		_, err := store.Get(ctx, "wf-missing")
		assert.True(t, types.IsCode(err, types.ErrCodeNotFound))
	})

	t.Run("UpdateAdvancesVersion", func(t *testing.T) {
		w := newStoredWorkflow("wf-update")
		require.NoError(t, store.Save(ctx, w))

		w.Stage = types.StageApproval
		w.UpdatedAt = time.Now()
		require.NoError(t, store.Update(ctx, w))
		assert.Equal(t, int64(2), w.Version)

		got, err := store.Get(ctx, "wf-update")
		require.NoError(t, err)
		assert.Equal(t, types.StageApproval, got.Stage)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("UpdateStaleVersionRejected", func(t *testing.T) {
		w := newStoredWorkflow("wf-cas")
		require.NoError(t, store.Save(ctx, w))

		stale := w.Clone()
		w.Stage = types.StageApproval
		require.NoError(t, store.Update(ctx, w))

		stale.Stage = types.StageFailed
		err := store.Update(ctx, stale)
		assert.True(t, types.IsCode(err, types.ErrCodeWorkflowBusy),
			"stale version must be rejected, got %v", err)

		got, err := store.Get(ctx, "wf-cas")
		require.NoError(t, err)
		assert.Equal(t, types.StageApproval, got.Stage, "losing write must not apply")
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		err := store.Update(ctx, newStoredWorkflow("wf-ghost"))
		assert.True(t, types.IsCode(err, types.ErrCodeNotFound))
	})

	t.Run("Delete", func(t *testing.T) {
		w := newStoredWorkflow("wf-del")
		require.NoError(t, store.Save(ctx, w))
		require.NoError(t, store.Delete(ctx, "wf-del"))

		_, err := store.Get(ctx, "wf-del")
		assert.True(t, types.IsCode(err, types.ErrCodeNotFound))
		assert.Error(t, store.Delete(ctx, "wf-del"))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, newStoredWorkflow("wf-list-1")))
		require.NoError(t, store.Save(ctx, newStoredWorkflow("wf-list-2")))

		all, err := store.List(ctx)
		require.NoError(t, err)

		ids := make(map[string]bool, len(all))
		for _, w := range all {
			ids[w.ID] = true
		}
		assert.True(t, ids["wf-list-1"])
		assert.True(t, ids["wf-list-2"])
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, NewMemoryStore())
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "workflows.db"), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestGormStore(t *testing.T) {
	storeUnderTest(t, newSQLiteStore(t))
}

func TestMemoryStore_HandsOutClones(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	w := newStoredWorkflow("wf-clone")
	w.Artifacts[types.StageAnalysis] = types.Artifact{"output": "plan"}
	require.NoError(t, store.Save(ctx, w))

	got, err := store.Get(ctx, "wf-clone")
	require.NoError(t, err)
	got.Artifacts[types.StageAnalysis]["output"] = "mutated"

	again, err := store.Get(ctx, "wf-clone")
	require.NoError(t, err)
	assert.Equal(t, "plan", again.Artifacts[types.StageAnalysis]["output"])
}

func TestGormStore_PersistsFailureDetail(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	w := newStoredWorkflow("wf-fail")
	require.NoError(t, store.Save(ctx, w))

	w.Stage = types.StageFailed
	w.Failure = &types.Failure{
		Stage:   types.StageCoding,
		Code:    types.ErrCodePermanentAgent,
		Message: "generation failed",
	}
	require.NoError(t, store.Update(ctx, w))

	got, err := store.Get(ctx, "wf-fail")
	require.NoError(t, err)
	require.NotNil(t, got.Failure)
	assert.Equal(t, types.StageCoding, got.Failure.Stage)
	assert.Equal(t, types.ErrCodePermanentAgent, got.Failure.Code)
}
