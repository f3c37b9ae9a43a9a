package apogee

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of subsystem lifecycle events. Observers register
// with a Subject and receive CloudEvents as the launch and landing
// orchestrators progress.
type Observer interface {
	// OnEvent is called for each event the observer is subscribed to.
	// Observers should return quickly; a slow observer delays its peers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier used for registration tracking.
	ObserverID() string
}

// Subject emits lifecycle events to registered observers.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered by event type.
	// With no eventTypes the observer receives everything.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to all matching observers. Observer
	// errors are logged, not propagated; one failing observer must not
	// starve the rest.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers describes the currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for status surfaces.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Lifecycle event types emitted by the launch and landing orchestrators.
const (
	EventTypeLaunchStarted   = "com.apogee.launch.started"
	EventTypeLaunchCompleted = "com.apogee.launch.completed"
	EventTypeLaunchDegraded  = "com.apogee.launch.degraded"

	EventTypeSubsystemStarting = "com.apogee.subsystem.starting"
	EventTypeSubsystemRunning  = "com.apogee.subsystem.running"
	EventTypeSubsystemFailed   = "com.apogee.subsystem.failed"
	EventTypeSubsystemBlocked  = "com.apogee.subsystem.blocked"
	EventTypeSubsystemStopping = "com.apogee.subsystem.stopping"
	EventTypeSubsystemStopped  = "com.apogee.subsystem.stopped"
	EventTypeSubsystemLeaked   = "com.apogee.subsystem.leaked"

	EventTypeLandingStarted   = "com.apogee.landing.started"
	EventTypeLandingCompleted = "com.apogee.landing.completed"

	EventTypeConfigChanged = "com.apogee.config.changed"
)

// FunctionalObserver wraps a function as an Observer.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that calls handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FunctionalObserver {
	return &FunctionalObserver{id: id, handler: handler}
}

func (fo *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return fo.handler(ctx, event)
}

func (fo *FunctionalObserver) ObserverID() string {
	return fo.id
}
