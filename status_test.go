package apogee

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	r := NewRegistry(newTestLogger(t))

	baseID, err := r.Register(noopSubsystem("base"))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("dependent", "base"))
	require.NoError(t, err)
	require.NoError(t, r.Start(baseID))

	statuses := r.Snapshot()
	require.Len(t, statuses, 2)

	assert.Equal(t, 0, statuses[0].ID)
	assert.Equal(t, "base", statuses[0].Name)
	assert.Equal(t, StateRunning, statuses[0].State)
	assert.Empty(t, statuses[0].Dependencies)
	assert.GreaterOrEqual(t, statuses[0].Uptime, time.Duration(0))

	assert.Equal(t, 1, statuses[1].ID)
	assert.Equal(t, "dependent", statuses[1].Name)
	assert.Equal(t, StateInactive, statuses[1].State)
	assert.Equal(t, []string{"base"}, statuses[1].Dependencies)
}

func TestStatusReportFormat(t *testing.T) {
	r := NewRegistry(newTestLogger(t))

	baseID, err := r.Register(noopSubsystem("base"))
	require.NoError(t, err)
	_, err = r.Register(noopSubsystem("dependent", "base"))
	require.NoError(t, err)
	require.NoError(t, r.Start(baseID))

	report := r.StatusReport()
	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Regexp(t, `^Subsystem: base - State: Running - Time: \d{2}:\d{2}:\d{2}$`, lines[0])
	assert.Regexp(t, `^Subsystem: dependent - State: Inactive - Time: \d{2}:\d{2}:\d{2}$`, lines[1])
	assert.Equal(t, "  Dependencies: base", lines[2])
	assert.Equal(t, "Total subsystems: 2 - Running: 1", lines[3])
}

func TestStatusReportEmptyRegistry(t *testing.T) {
	r := NewRegistry(newTestLogger(t))
	assert.Equal(t, "Total subsystems: 0 - Running: 0\n", r.StatusReport())
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{59 * time.Second, "00:00:59"},
		{61 * time.Second, "00:01:01"},
		{3*time.Hour + 25*time.Minute + 45*time.Second, "03:25:45"},
		{125 * time.Hour, "125:00:00"},
		{-time.Second, "00:00:00"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, formatUptime(tc.d), "duration %s", tc.d)
	}
}

func TestSubsystemStateString(t *testing.T) {
	assert.Equal(t, "Inactive", StateInactive.String())
	assert.Equal(t, "Starting", StateStarting.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Stopping", StateStopping.String())
	assert.Equal(t, "Error", StateError.String())
	assert.Equal(t, "Unknown", SubsystemState(42).String())
}
