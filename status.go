package apogee

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// SubsystemStatus is a point-in-time view of one registered subsystem.
type SubsystemStatus struct {
	ID           int
	Name         string
	State        SubsystemState
	Since        time.Time
	Uptime       time.Duration
	Dependencies []string
}

// Snapshot returns the status of every registered subsystem in registration
// order, taken atomically under the registry lock.
func (r *Registry) Snapshot() []SubsystemStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	statuses := make([]SubsystemStatus, len(r.records))
	for i, rec := range r.records {
		statuses[i] = SubsystemStatus{
			ID:           rec.id,
			Name:         rec.name,
			State:        rec.state,
			Since:        rec.stateChangedAt,
			Uptime:       now.Sub(rec.stateChangedAt),
			Dependencies: slices.Clone(rec.dependencies),
		}
	}
	return statuses
}

// StatusReport renders the registry as a multi-line plain-text report, one
// line per subsystem with its state and time in that state, dependencies on
// an indented continuation line, and a running-count summary line at the end.
func (r *Registry) StatusReport() string {
	statuses := r.Snapshot()

	var b strings.Builder
	running := 0
	for _, st := range statuses {
		if st.State == StateRunning {
			running++
		}
		fmt.Fprintf(&b, "Subsystem: %s - State: %s - Time: %s\n", st.Name, st.State, formatUptime(st.Uptime))
		if len(st.Dependencies) > 0 {
			fmt.Fprintf(&b, "  Dependencies: %s\n", strings.Join(st.Dependencies, ", "))
		}
	}
	fmt.Fprintf(&b, "Total subsystems: %d - Running: %d\n", len(statuses), running)
	return b.String()
}

// formatUptime renders a duration as hh:mm:ss, hours unbounded.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
