package apogee

import (
	"context"
	"errors"
)

// LandingResult summarizes one landing: the subsystems stopped cleanly in
// order, and the ones whose workers never confirmed exit within the join
// timeout and were force-marked Inactive. Leaked entries indicate a possible
// goroutine or resource leak the operator should know about.
type LandingResult struct {
	Landed []string
	Leaked []string
}

// Clean reports whether every subsystem confirmed its shutdown in time.
func (lr LandingResult) Clean() bool {
	return len(lr.Leaked) == 0
}

// Lander drives the landing sequence: reverse registration order, dependents
// before dependencies, with each join bounded by the registry's timeout. A
// landing never hangs and never returns an error; an unresponsive subsystem
// is force-marked Inactive and reported as leaked.
type Lander struct {
	registry *Registry
	logger   Logger
	subject  Subject
}

// NewLander creates a landing orchestrator. subject may be nil.
func NewLander(registry *Registry, logger Logger, subject Subject) *Lander {
	return &Lander{registry: registry, logger: logger, subject: subject}
}

// Land stops every non-Inactive subsystem. It first raises the landing flag,
// which cancels all lifecycle contexts and causes the readiness evaluator to
// refuse any launch that races with the shutdown. Passes repeat until no
// Running subsystem remains; within a pass, a subsystem is skipped while
// other active subsystems still depend on it and picked up on a later pass.
// Landing an already fully Inactive registry is a no-op.
func (l *Lander) Land(ctx context.Context) LandingResult {
	var result LandingResult

	if l.registry.allInactive() {
		l.logger.Debug("Landing requested with all subsystems already inactive")
		return result
	}

	l.logger.Info("Landing sequence started")
	l.notify(ctx, EventTypeLandingStarted, map[string]any{"running": len(l.registry.ListRunning())})
	l.registry.beginLanding()

	for {
		ids := l.registry.runningIDsReversed()
		if len(ids) == 0 {
			break
		}

		progressed := false
		for _, id := range ids {
			if l.registry.hasActiveDependents(id) {
				continue
			}
			name := l.registry.nameOf(id)
			l.notify(ctx, EventTypeSubsystemStopping, map[string]any{"subsystem": name})

			err := l.registry.Stop(id)
			switch {
			case err == nil:
				progressed = true
				result.Landed = append(result.Landed, name)
				l.notify(ctx, EventTypeSubsystemStopped, map[string]any{"subsystem": name})
			case errors.Is(err, ErrShutdownTimeout):
				progressed = true
				result.Leaked = append(result.Leaked, name)
				l.logger.Warn("Subsystem did not confirm shutdown, possible resource leak", "subsystem", name)
				l.notify(ctx, EventTypeSubsystemLeaked, map[string]any{"subsystem": name})
			case errors.Is(err, ErrAlreadyStopped):
				progressed = true
			default:
				// Shutdown callback error. The subsystem is Inactive regardless.
				progressed = true
				result.Landed = append(result.Landed, name)
				l.logger.Warn("Subsystem shutdown reported an error", "subsystem", name, "error", err)
				l.notify(ctx, EventTypeSubsystemStopped, map[string]any{"subsystem": name, "error": err.Error()})
			}
		}

		// No pass may stall: with acyclic registration-order dependencies a
		// dependent-free subsystem always exists, so a stall means the
		// dependency records are inconsistent. Force the remainder down.
		if !progressed {
			for _, id := range ids {
				if name := l.registry.forceInactive(id); name != "" {
					result.Leaked = append(result.Leaked, name)
					l.logger.Error("Forced subsystem inactive during stalled landing", "subsystem", name)
					l.notify(ctx, EventTypeSubsystemLeaked, map[string]any{"subsystem": name, "forced": true})
				}
			}
			break
		}
	}

	if result.Clean() {
		l.logger.Info("Landing sequence complete", "landed", len(result.Landed))
	} else {
		l.logger.Warn("Landing sequence complete with leaked subsystems",
			"landed", len(result.Landed), "leaked", len(result.Leaked))
	}
	l.notify(ctx, EventTypeLandingCompleted, map[string]any{
		"landed": len(result.Landed),
		"leaked": len(result.Leaked),
	})
	return result
}

func (l *Lander) notify(ctx context.Context, eventType string, data map[string]any) {
	if l.subject == nil {
		return
	}
	event := NewCloudEvent(eventType, "lander", data, nil)
	if err := l.subject.NotifyObservers(ctx, event); err != nil {
		l.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
