package apogee

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLauncher(t *testing.T) (*Registry, *Launcher) {
	t.Helper()
	log := newTestLogger(t)
	r := NewRegistry(log)
	return r, NewLauncher(r, NewEvaluator(r, log), log, nil)
}

func TestLaunchStartsInDependencyOrder(t *testing.T) {
	r, l := newTestLauncher(t)

	// Registered in the reverse of dependency order; the fixed point must
	// still bring them up dependencies first.
	var order []string
	record := func(name string, deps ...string) {
		sub := NewFunctionalSubsystem(name, deps,
			func(context.Context) error { order = append(order, name); return nil }, nil)
		_, err := r.Register(sub)
		require.NoError(t, err)
	}
	record("gamma", "beta")
	record("beta", "alpha")
	record("alpha")

	result, err := l.Launch(context.Background())
	require.NoError(t, err)
	assert.True(t, result.FullyUp())
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, order)
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, result.Started)
}

func TestLaunchIsolatesInitFailure(t *testing.T) {
	r, l := newTestLauncher(t)

	_, err := r.Register(noopSubsystem("healthy"))
	require.NoError(t, err)
	_, err = r.Register(NewFunctionalSubsystem("broken", nil,
		func(context.Context) error { return errors.New("boom") }, nil))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("victim", "broken"))
	require.NoError(t, err)

	result, err := l.Launch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"healthy"}, result.Started)
	assert.Equal(t, []string{"broken"}, result.Failed)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, "victim", result.Blocked[0].Name)
	assert.Contains(t, result.Blocked[0].Reason, "broken")

	assert.True(t, r.IsRunning("healthy"))
	state, stateErr := r.GetState(mustID(t, r, "broken"))
	require.NoError(t, stateErr)
	assert.Equal(t, StateError, state)
}

func TestLaunchDetectsDependencyCycle(t *testing.T) {
	r, l := newTestLauncher(t)

	_, err := r.Register(noopSubsystem("healthy"))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("chicken", "egg"))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("egg", "chicken"))
	require.NoError(t, err)

	result, err := l.Launch(context.Background())
	assert.ErrorIs(t, err, ErrLaunchStalled)
	assert.Contains(t, err.Error(), "chicken")
	assert.Contains(t, err.Error(), "egg")

	// Subsystems outside the cycle still launched.
	assert.Equal(t, []string{"healthy"}, result.Started)

	blocked := make(map[string]string)
	for _, b := range result.Blocked {
		blocked[b.Name] = b.Reason
	}
	assert.Contains(t, blocked["chicken"], "cycle")
	assert.Contains(t, blocked["egg"], "cycle")
}

func TestLaunchBlocksRefusedSubsystemImmediately(t *testing.T) {
	r, l := newTestLauncher(t)

	evaluations := 0
	disabled := NewFunctionalSubsystem("disabled", nil, nil, nil).
		WithConfigCheck(func() error { evaluations++; return ErrSubsystemDisabled })

	_, err := r.Register(disabled)
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("healthy"))
	require.NoError(t, err)

	result, err := l.Launch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"healthy"}, result.Started)
	require.Len(t, result.Blocked, 1)
	assert.Equal(t, "disabled", result.Blocked[0].Name)

	// A refusal that cannot self-heal is evaluated once, not per pass.
	assert.Equal(t, 1, evaluations)
}

func TestLaunchRetriesDependencyWithParentheticalName(t *testing.T) {
	r, l := newTestLauncher(t)

	// The dependent is registered first, so its initial evaluation sees the
	// dependency not yet Running and must classify the refusal from the
	// finding itself, not from tokens in the rendered message. The dependency
	// name deliberately collides with the wording used for broken ones.
	_, err := r.Register(noopSubsystem("reporter", "janitor (failed)"))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("janitor (failed)"))
	require.NoError(t, err)

	result, err := l.Launch(context.Background())
	require.NoError(t, err)
	assert.True(t, result.FullyUp())
	assert.ElementsMatch(t, []string{"janitor (failed)", "reporter"}, result.Started)
	assert.Empty(t, result.Blocked)
}

func TestLaunchEmptyRegistry(t *testing.T) {
	_, l := newTestLauncher(t)

	result, err := l.Launch(context.Background())
	require.NoError(t, err)
	assert.True(t, result.FullyUp())
	assert.Empty(t, result.Started)
}

func TestLaunchSkipsNonInactiveSubsystems(t *testing.T) {
	r, l := newTestLauncher(t)

	runningID, err := r.Register(noopSubsystem("running"))
	require.NoError(t, err)
	require.NoError(t, r.Start(runningID))
	_, err = r.Register(noopSubsystem("fresh"))
	require.NoError(t, err)

	result, err := l.Launch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, result.Started)
}

func mustID(t *testing.T, r *Registry, name string) int {
	t.Helper()
	id, err := r.ID(name)
	require.NoError(t, err)
	return id
}
