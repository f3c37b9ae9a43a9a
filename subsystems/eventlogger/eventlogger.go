// Package eventlogger provides a subsystem that subscribes to the
// application's lifecycle events and writes them to the structured log. It
// is both a Subsystem and an Observer: registration with the Subject happens
// in Init and is undone in Shutdown.
package eventlogger

import (
	"context"
	"errors"
	"sync/atomic"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/apogeehq/apogee"
)

// SubsystemName is the registry name for the event logger subsystem.
const SubsystemName = "eventlogger"

// ErrSubjectNil is returned when no subject was supplied.
var ErrSubjectNil = errors.New("event logger requires a subject")

// Config selects which event types are logged.
type Config struct {
	// EventTypes filters the subscription; empty means all events.
	EventTypes []string `yaml:"event_types" toml:"event_types"`
}

// DefaultConfig returns the config used when no section is present.
func DefaultConfig() Config {
	return Config{}
}

// Subsystem logs lifecycle events as they are emitted.
type Subsystem struct {
	cfg     Config
	logger  apogee.Logger
	subject apogee.Subject

	seen atomic.Int64
}

// New creates the event logger subsystem.
func New(cfg Config, log apogee.Logger, subject apogee.Subject) *Subsystem {
	return &Subsystem{cfg: cfg, logger: log, subject: subject}
}

func (s *Subsystem) Name() string { return SubsystemName }

// CheckConfig verifies a subject is available to subscribe to.
func (s *Subsystem) CheckConfig() error {
	if s.subject == nil {
		return ErrSubjectNil
	}
	return nil
}

// Init subscribes to the subject.
func (s *Subsystem) Init(_ context.Context) error {
	return s.subject.RegisterObserver(s, s.cfg.EventTypes...)
}

// Shutdown unsubscribes from the subject.
func (s *Subsystem) Shutdown(_ context.Context) error {
	return s.subject.UnregisterObserver(s)
}

// OnEvent implements apogee.Observer.
func (s *Subsystem) OnEvent(_ context.Context, event cloudevents.Event) error {
	s.seen.Add(1)
	s.logger.Info("Lifecycle event", "type", event.Type(), "source", event.Source(), "id", event.ID())
	return nil
}

// ObserverID implements apogee.Observer.
func (s *Subsystem) ObserverID() string {
	return SubsystemName
}

// EventCount returns how many events have been logged since launch.
func (s *Subsystem) EventCount() int64 {
	return s.seen.Load()
}
