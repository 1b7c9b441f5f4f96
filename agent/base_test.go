package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testAgent is a minimal concrete agent for exercising the Base wrapper.
type testAgent struct {
	Base
	calls   int
	failErr error
}

func newTestAgent(failErr error) *testAgent {
	a := &testAgent{
		Base:    NewBase("test", map[string]any{"model": "stub"}, zap.NewNop()),
		failErr: failErr,
	}
	a.bind(a.process)
	return a
}

func (a *testAgent) process(ctx context.Context, input map[string]any) (map[string]any, error) {
	a.calls++
	if a.failErr != nil {
		return nil, a.failErr
	}
	return map[string]any{"echo": input["value"]}, nil
}

func TestNewBase_Identity(t *testing.T) {
	a := newTestAgent(nil)
	b := newTestAgent(nil)

	assert.Equal(t, "test", a.Type())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID(), "agent ids must be unique")

	model, ok := a.ConfigValue("model")
	require.True(t, ok)
	assert.Equal(t, "stub", model)
}

func TestBase_ExecuteForwardsResult(t *testing.T) {
	a := newTestAgent(nil)

	out, err := a.Execute(context.Background(), map[string]any{"value": "hello"}, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", out["echo"])
	assert.Equal(t, 1, a.calls)
}

func TestBase_ExecuteNeverSwallowsErrors(t *testing.T) {
	boom := errors.New("process exploded")
	a := newTestAgent(boom)

	out, err := a.Execute(context.Background(), map[string]any{}, "corr-1")
	assert.Nil(t, out)
	// The exact error must come back unchanged so the recovery layer can
	// classify it.
	assert.ErrorIs(t, err, boom)
}

func TestBase_StateIsAgentPrivate(t *testing.T) {
	a := newTestAgent(nil)
	b := newTestAgent(nil)

	a.SetState("seen", 3)
	v, ok := a.StateValue("seen")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = b.StateValue("seen")
	assert.False(t, ok, "state must not be shared across agents")
}
