package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

func TestSubmitRegistersPendingRequest(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(ctx, "Analysis: todo app", "## Plan\n...", []string{"graph TD; A-->B"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	req, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, "Analysis: todo app", req.Title)
	assert.Len(t, req.Diagrams, 1)
	assert.Nil(t, req.Decision)

	pending, err := client.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
}

func TestWaitReceivesApproval(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(ctx, "title", "content", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = client.Respond(context.Background(), id, true, "ship it")
	}()

	decision, err := client.Wait(ctx, id, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, "ship it", decision.Feedback)
	assert.False(t, decision.DecidedAt.IsZero())
}

func TestWaitReceivesRejection(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(ctx, "title", "content", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = client.Respond(context.Background(), id, false, "needs rework")
	}()

	decision, err := client.Wait(ctx, id, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, "needs rework", decision.Feedback)

	req, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, req.Status)
}

func TestWaitTimesOut(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(ctx, "title", "content", nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Wait(ctx, id, 150*time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, types.IsCode(err, types.ErrCodeApprovalTimeout))
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	// The request itself stays pending after a timed-out wait.
	req, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
}

func TestWaitReturnsImmediatelyWhenAlreadyDecided(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(ctx, "title", "content", nil)
	require.NoError(t, err)
	require.NoError(t, client.Respond(ctx, id, true, "pre-approved"))

	start := time.Now()
	decision, err := client.Wait(ctx, id, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitPicksUpExternalDecision(t *testing.T) {
	// A decision written straight to the store, as another process
	// would, must be observed by the poll loop.
	ctx := context.Background()
	store := NewMemoryStore()
	client := NewClient(store, nil, zap.NewNop())

	id, err := client.Submit(ctx, "title", "content", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		req, err := store.Load(context.Background(), id)
		if err != nil {
			return
		}
		req.Status = StatusApproved
		req.Decision = &Decision{Approved: true, DecidedAt: time.Now()}
		_ = store.Update(context.Background(), req)
	}()

	decision, err := client.Wait(ctx, id, 3*time.Second)
	require.NoError(t, err)
	assert.True(t, decision.Approved)
}

func TestWaitObservesContextCancellation(t *testing.T) {
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(context.Background(), "title", "content", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = client.Wait(ctx, id, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRespondRejectsDoubleDecision(t *testing.T) {
	ctx := context.Background()
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	id, err := client.Submit(ctx, "title", "content", nil)
	require.NoError(t, err)
	require.NoError(t, client.Respond(ctx, id, true, ""))

	err = client.Respond(ctx, id, false, "changed my mind")
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidInput))

	req, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, req.Status, "first decision stands")
}

func TestRespondUnknownRequest(t *testing.T) {
	client := NewClient(NewMemoryStore(), nil, zap.NewNop())

	err := client.Respond(context.Background(), "no-such-id", true, "")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFound))
}

func TestOnDecisionObserved(t *testing.T) {
	ctx := context.Background()
	var statuses []string
	client := NewClient(NewMemoryStore(), func(status string) {
		statuses = append(statuses, status)
	}, zap.NewNop())

	approve, err := client.Submit(ctx, "a", "content", nil)
	require.NoError(t, err)
	reject, err := client.Submit(ctx, "b", "content", nil)
	require.NoError(t, err)

	require.NoError(t, client.Respond(ctx, approve, true, ""))
	require.NoError(t, client.Respond(ctx, reject, false, ""))
	assert.Equal(t, []string{"approved", "rejected"}, statuses)
}
