package apogee

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLander(t *testing.T, opts ...RegistryOption) (*Registry, *Launcher, *Lander) {
	t.Helper()
	log := newTestLogger(t)
	r := NewRegistry(log, opts...)
	launcher := NewLauncher(r, NewEvaluator(r, log), log, nil)
	return r, launcher, NewLander(r, log, nil)
}

func TestLandStopsInReverseOrder(t *testing.T) {
	r, launcher, lander := newTestLander(t)

	var stopped []string
	record := func(name string, deps ...string) {
		sub := NewFunctionalSubsystem(name, deps, nil,
			func(context.Context) error { stopped = append(stopped, name); return nil })
		_, err := r.Register(sub)
		require.NoError(t, err)
	}
	record("alpha")
	record("beta", "alpha")
	record("gamma", "beta")

	_, err := launcher.Launch(context.Background())
	require.NoError(t, err)

	result := lander.Land(context.Background())
	assert.True(t, result.Clean())
	assert.Equal(t, []string{"gamma", "beta", "alpha"}, stopped)
	assert.Equal(t, []string{"gamma", "beta", "alpha"}, result.Landed)
	assert.True(t, r.allInactive())
}

func TestLandDefersSharedDependency(t *testing.T) {
	r, launcher, lander := newTestLander(t)

	var stopped []string
	record := func(name string, deps ...string) {
		sub := NewFunctionalSubsystem(name, deps, nil,
			func(context.Context) error { stopped = append(stopped, name); return nil })
		_, err := r.Register(sub)
		require.NoError(t, err)
	}
	// base is registered last but depended on by both earlier entries, so
	// reverse registration order alone would try it first.
	record("first", "base")
	record("second", "base")
	record("base")

	_, err := launcher.Launch(context.Background())
	require.NoError(t, err)

	result := lander.Land(context.Background())
	assert.True(t, result.Clean())
	assert.Equal(t, "base", stopped[len(stopped)-1])
}

func TestLandIsIdempotent(t *testing.T) {
	r, _, lander := newTestLander(t)

	_, err := r.Register(noopSubsystem("alpha"))
	require.NoError(t, err)

	result := lander.Land(context.Background())
	assert.Empty(t, result.Landed)
	assert.Empty(t, result.Leaked)

	// A second landing over the already grounded registry is also a no-op.
	result = lander.Land(context.Background())
	assert.Empty(t, result.Landed)
}

func TestLandReportsLeakedSubsystem(t *testing.T) {
	r, launcher, lander := newTestLander(t, WithJoinTimeout(50*time.Millisecond))

	stuck := make(chan struct{}) // never closed
	_, err := r.Register(NewFunctionalSubsystem("stuck", nil, nil, nil).WithDoneChannel(stuck))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("clean"))
	require.NoError(t, err)

	_, err = launcher.Launch(context.Background())
	require.NoError(t, err)

	result := lander.Land(context.Background())
	assert.False(t, result.Clean())
	assert.Equal(t, []string{"clean"}, result.Landed)
	assert.Equal(t, []string{"stuck"}, result.Leaked)
	assert.True(t, r.allInactive())
}

func TestLandCancelsLifecycleContexts(t *testing.T) {
	r, launcher, lander := newTestLander(t)

	var lifecycle context.Context
	_, err := r.Register(NewFunctionalSubsystem("alpha", nil,
		func(ctx context.Context) error { lifecycle = ctx; return nil }, nil))
	require.NoError(t, err)

	_, err = launcher.Launch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lifecycle)

	lander.Land(context.Background())
	assert.ErrorIs(t, lifecycle.Err(), context.Canceled)
}

func TestLandBlocksSubsequentLaunch(t *testing.T) {
	r, launcher, lander := newTestLander(t)

	_, err := r.Register(noopSubsystem("alpha"))
	require.NoError(t, err)

	_, err = launcher.Launch(context.Background())
	require.NoError(t, err)
	lander.Land(context.Background())

	result, err := launcher.Launch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Started)
	require.Len(t, result.Blocked, 1)
	assert.Contains(t, result.Blocked[0].Reason, "landing")
}
