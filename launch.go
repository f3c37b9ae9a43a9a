package apogee

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BlockedSubsystem records a subsystem that a launch could not start along
// with a human-readable reason, distinguishing failed dependencies from
// dependency cycles and readiness refusals.
type BlockedSubsystem struct {
	Name   string
	Reason string
}

// LaunchResult summarizes one launch: which subsystems reached Running, which
// failed their init and now sit in Error, and which were blocked without
// being attempted.
type LaunchResult struct {
	Started []string
	Failed  []string
	Blocked []BlockedSubsystem
}

// FullyUp reports whether every candidate subsystem reached Running.
func (lr LaunchResult) FullyUp() bool {
	return len(lr.Failed) == 0 && len(lr.Blocked) == 0
}

// Launcher drives the launch sequence: repeated passes over the Inactive
// subsystems, starting each one whose readiness report is Go, until a pass
// starts nothing. Partial failure is isolated rather than fatal; only an
// unresolvable dependency cycle aborts the launch with an error.
type Launcher struct {
	registry  *Registry
	evaluator *Evaluator
	logger    Logger
	subject   Subject
}

// NewLauncher creates a launch orchestrator. subject may be nil when the
// caller has no interest in lifecycle events.
func NewLauncher(registry *Registry, evaluator *Evaluator, logger Logger, subject Subject) *Launcher {
	return &Launcher{registry: registry, evaluator: evaluator, logger: logger, subject: subject}
}

// Launch runs the launch sequence to its fixed point. Subsystems whose
// dependencies are not Running yet are retained for the next pass; those
// whose readiness fails for any other reason are blocked immediately, because
// re-evaluating them cannot change the verdict. A stall with retained
// subsystems whose missing dependencies all point back into the stalled set
// is a dependency cycle and returns ErrLaunchStalled with the cycle members
// named.
func (l *Launcher) Launch(ctx context.Context) (LaunchResult, error) {
	var result LaunchResult

	worklist := l.registry.inactiveIDs()
	l.logger.Info("Launch sequence started", "candidates", len(worklist))
	l.notify(ctx, EventTypeLaunchStarted, map[string]any{"candidates": len(worklist)})

	for len(worklist) > 0 {
		var retained []int
		progressed := false

		for _, id := range worklist {
			name := l.registry.nameOf(id)
			report := l.evaluator.Evaluate(ctx, id)
			if !report.Ready {
				if reason, waiting := l.classifyNoGo(report); waiting {
					retained = append(retained, id)
				} else {
					result.Blocked = append(result.Blocked, BlockedSubsystem{Name: name, Reason: reason})
					l.logger.Warn("Subsystem blocked from launch", "subsystem", name, "reason", reason)
					l.notify(ctx, EventTypeSubsystemBlocked, map[string]any{"subsystem": name, "reason": reason})
				}
				continue
			}

			l.notify(ctx, EventTypeSubsystemStarting, map[string]any{"subsystem": name})
			if err := l.registry.Start(id); err != nil {
				if errors.Is(err, ErrDependencyNotRunning) {
					// A dependency changed state between evaluation and start.
					retained = append(retained, id)
					continue
				}
				progressed = true
				result.Failed = append(result.Failed, name)
				l.notify(ctx, EventTypeSubsystemFailed, map[string]any{"subsystem": name, "error": err.Error()})
				continue
			}
			progressed = true
			result.Started = append(result.Started, name)
			l.notify(ctx, EventTypeSubsystemRunning, map[string]any{"subsystem": name})
		}

		if !progressed && len(retained) == len(worklist) {
			cycleErr := l.diagnoseStall(ctx, retained, &result)
			l.finish(ctx, result)
			return result, cycleErr
		}
		worklist = retained
	}

	l.finish(ctx, result)
	return result, nil
}

// classifyNoGo decides whether a No-Go verdict is worth retrying on a later
// pass. The evaluator marks the finding transient when the refusal can
// self-heal as other subsystems come up; every other refusal is final for
// this launch.
func (l *Launcher) classifyNoGo(report ReadinessReport) (reason string, waiting bool) {
	for _, f := range report.Findings {
		if f.Status == FindingNoGo {
			return f.Message, f.Transient
		}
	}
	return "readiness refused", false
}

// diagnoseStall explains why the retained subsystems can never start. Missing
// dependencies that all point back into the stalled set form a cycle, which
// is a registration error and fatal; anything else is recorded per subsystem
// and launch degrades gracefully.
func (l *Launcher) diagnoseStall(ctx context.Context, stalled []int, result *LaunchResult) error {
	inStalledSet := make(map[string]bool, len(stalled))
	for _, id := range stalled {
		inStalledSet[l.registry.nameOf(id)] = true
	}

	var cycleMembers []string
	for _, id := range stalled {
		name := l.registry.nameOf(id)
		missing := l.registry.missingDependencies(id)

		allInternal := len(missing) > 0
		for _, dep := range missing {
			if !inStalledSet[dep] {
				allInternal = false
				break
			}
		}

		var reason string
		if allInternal {
			cycleMembers = append(cycleMembers, name)
			reason = fmt.Sprintf("dependency cycle via: %s", strings.Join(missing, ", "))
		} else {
			reason = fmt.Sprintf("dependencies never became available: %s", strings.Join(missing, ", "))
		}
		result.Blocked = append(result.Blocked, BlockedSubsystem{Name: name, Reason: reason})
		l.logger.Error("Launch stalled for subsystem", "subsystem", name, "reason", reason)
		l.notify(ctx, EventTypeSubsystemBlocked, map[string]any{"subsystem": name, "reason": reason})
	}

	if len(cycleMembers) > 0 {
		return fmt.Errorf("%w: dependency cycle among: %s", ErrLaunchStalled, strings.Join(cycleMembers, ", "))
	}
	return nil
}

func (l *Launcher) finish(ctx context.Context, result LaunchResult) {
	data := map[string]any{
		"started": len(result.Started),
		"failed":  len(result.Failed),
		"blocked": len(result.Blocked),
	}
	if result.FullyUp() {
		l.logger.Info("Launch sequence complete", "started", len(result.Started))
		l.notify(ctx, EventTypeLaunchCompleted, data)
		return
	}
	l.logger.Warn("Launch sequence complete with degraded subsystems",
		"started", len(result.Started), "failed", len(result.Failed), "blocked", len(result.Blocked))
	l.notify(ctx, EventTypeLaunchDegraded, data)
}

func (l *Launcher) notify(ctx context.Context, eventType string, data map[string]any) {
	if l.subject == nil {
		return
	}
	event := NewCloudEvent(eventType, "launcher", data, nil)
	if err := l.subject.NotifyObservers(ctx, event); err != nil {
		l.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
