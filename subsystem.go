// Package apogee provides the orchestration core of a multi-subsystem server.
// It maintains a registry of independently startable subsystems, the dependency
// graph between them, and the launch/landing orchestrators that bring the
// process up in dependency order and back down in reverse.
//
// A subsystem is the basic unit of orchestration. It encapsulates one piece of
// the server (a network listener, an HTTP server, a job scheduler) and owns its
// own worker goroutines. The core never inspects subsystem internals; its only
// coupling is the Subsystem interface plus the optional capability interfaces
// below, discovered by type assertion.
//
// Basic usage:
//
//	app := apogee.NewApplication(configProvider, logger)
//	app.RegisterSubsystem(network.New(cfg.Network, logger))
//	app.RegisterSubsystem(webserver.New(cfg.WebServer, logger, app.Registry()))
//	if err := app.Run(context.Background()); err != nil {
//		log.Fatal(err)
//	}
package apogee

import "context"

// Subsystem represents an independently startable and stoppable unit of the
// server. Implementations must be safe to register once and start at most once
// per launch cycle.
type Subsystem interface {
	// Name returns the unique identifier for this subsystem. It is used for
	// dependency resolution and must be unique within a Registry.
	Name() string

	// Init brings the subsystem fully up: on success its worker goroutines are
	// running and it is ready to serve. On failure it must have released any
	// resources it partially acquired.
	//
	// The provided context is the subsystem's lifecycle context. The core
	// cancels it to request cooperative termination; worker loops should watch
	// ctx.Done() at their natural suspension points.
	Init(ctx context.Context) error

	// Shutdown requests cooperative termination. It may return before worker
	// goroutines have fully exited; the core performs the actual join
	// separately via the optional Completer interface. The context carries the
	// shutdown deadline.
	Shutdown(ctx context.Context) error
}

// DependencyAware is implemented by subsystems that require other subsystems
// to be running before they may start. Dependencies are matched by the exact
// names returned by the dependencies' Name() methods and are fixed at
// registration time.
type DependencyAware interface {
	Dependencies() []string
}

// ConfigChecker is implemented by subsystems whose launch readiness depends on
// configuration. CheckConfig returns nil when configuration is present and
// valid; a wrapped ErrSubsystemDisabled when the subsystem is switched off; or
// a descriptive error (e.g. wrapped ErrPortOutOfRange) otherwise.
type ConfigChecker interface {
	CheckConfig() error
}

// ResourceChecker is implemented by subsystems that need an external resource
// before starting, such as a free listening port or filesystem path.
type ResourceChecker interface {
	CheckResources(ctx context.Context) error
}

// ReadinessChecker is the injectable subsystem-specific readiness predicate.
// It runs after the state, configuration, and resource checks and before the
// dependency check.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Completer is implemented by subsystems whose worker goroutines signal
// completion. The returned channel must be closed once all workers have
// exited; the landing orchestrator performs a bounded wait on it in place of
// a raw thread join. A nil channel means there is nothing to join.
type Completer interface {
	Done() <-chan struct{}
}

// FunctionalSubsystem adapts plain init/shutdown callbacks to the Subsystem
// interface. It is convenient for small subsystems and for tests.
type FunctionalSubsystem struct {
	name     string
	deps     []string
	initFn   func(ctx context.Context) error
	stopFn   func(ctx context.Context) error
	doneCh   <-chan struct{}
	readyFn  func(ctx context.Context) error
	configFn func() error
}

// NewFunctionalSubsystem creates a subsystem from callbacks. Either callback
// may be nil, in which case the corresponding phase is a no-op.
func NewFunctionalSubsystem(name string, deps []string, initFn, stopFn func(ctx context.Context) error) *FunctionalSubsystem {
	return &FunctionalSubsystem{
		name:   name,
		deps:   deps,
		initFn: initFn,
		stopFn: stopFn,
	}
}

// WithDoneChannel attaches a completion channel, making the subsystem joinable
// during landing.
func (s *FunctionalSubsystem) WithDoneChannel(done <-chan struct{}) *FunctionalSubsystem {
	s.doneCh = done
	return s
}

// WithConfigCheck attaches a configuration check callback.
func (s *FunctionalSubsystem) WithConfigCheck(fn func() error) *FunctionalSubsystem {
	s.configFn = fn
	return s
}

// WithReadinessCheck attaches a subsystem-specific readiness predicate.
func (s *FunctionalSubsystem) WithReadinessCheck(fn func(ctx context.Context) error) *FunctionalSubsystem {
	s.readyFn = fn
	return s
}

// Name implements Subsystem.
func (s *FunctionalSubsystem) Name() string { return s.name }

// Dependencies implements DependencyAware.
func (s *FunctionalSubsystem) Dependencies() []string { return s.deps }

// Init implements Subsystem.
func (s *FunctionalSubsystem) Init(ctx context.Context) error {
	if s.initFn == nil {
		return nil
	}
	return s.initFn(ctx)
}

// Shutdown implements Subsystem.
func (s *FunctionalSubsystem) Shutdown(ctx context.Context) error {
	if s.stopFn == nil {
		return nil
	}
	return s.stopFn(ctx)
}

// Done implements Completer. A nil channel means there is nothing to join.
func (s *FunctionalSubsystem) Done() <-chan struct{} { return s.doneCh }

// CheckConfig implements ConfigChecker when a config check was attached.
func (s *FunctionalSubsystem) CheckConfig() error {
	if s.configFn == nil {
		return nil
	}
	return s.configFn()
}

// CheckReadiness implements ReadinessChecker when a predicate was attached.
func (s *FunctionalSubsystem) CheckReadiness(ctx context.Context) error {
	if s.readyFn == nil {
		return nil
	}
	return s.readyFn(ctx)
}
