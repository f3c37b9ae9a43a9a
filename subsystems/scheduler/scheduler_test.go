package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Info(msg string, args ...any)  { l.t.Log("INFO", msg, args) }
func (l testLogger) Error(msg string, args ...any) { l.t.Log("ERROR", msg, args) }
func (l testLogger) Warn(msg string, args ...any)  { l.t.Log("WARN", msg, args) }
func (l testLogger) Debug(msg string, args ...any) { l.t.Log("DEBUG", msg, args) }

func TestAddJobValidation(t *testing.T) {
	s := New(DefaultConfig(), testLogger{t})

	assert.ErrorIs(t, s.AddJob("", "@hourly", func() {}), ErrJobNameEmpty)
	assert.ErrorIs(t, s.AddJob("nil-job", "@hourly", nil), ErrJobNil)

	require.NoError(t, s.AddJob("cleanup", "@hourly", func() {}))
	assert.Equal(t, 1, s.JobCount())
}

func TestCheckConfigRejectsBadSpec(t *testing.T) {
	s := New(DefaultConfig(), testLogger{t})

	require.NoError(t, s.AddJob("good", "*/5 * * * *", func() {}))
	assert.NoError(t, s.CheckConfig())

	require.NoError(t, s.AddJob("bad", "not a cron spec", func() {}))
	err := s.CheckConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestCheckConfigWithSeconds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WithSeconds = true
	s := New(cfg, testLogger{t})

	require.NoError(t, s.AddJob("tick", "* * * * * *", func() {}))
	assert.NoError(t, s.CheckConfig())

	// The same six-field spec is invalid without the seconds option.
	plain := New(DefaultConfig(), testLogger{t})
	require.NoError(t, plain.AddJob("tick", "* * * * * *", func() {}))
	assert.Error(t, plain.CheckConfig())
}

func TestAddJobAfterStart(t *testing.T) {
	s := New(DefaultConfig(), testLogger{t})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Init(ctx))

	assert.ErrorIs(t, s.AddJob("late", "@hourly", func() {}), ErrAlreadyStarted)

	cancel()
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestJobsRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WithSeconds = true
	s := New(cfg, testLogger{t})

	var runs atomic.Int64
	require.NoError(t, s.AddJob("tick", "* * * * * *", func() { runs.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Init(ctx))

	assert.Eventually(t, func() bool { return runs.Load() >= 1 },
		3*time.Second, 50*time.Millisecond)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, s.Shutdown(shutdownCtx))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
