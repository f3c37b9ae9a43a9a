package apogee

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Application ties the registry and the launch and landing orchestrators
// together behind one handle and implements Subject so subsystems and
// external tooling can observe lifecycle events.
type Application struct {
	cfgProvider ConfigProvider
	logger      Logger
	registry    *Registry
	evaluator   *Evaluator
	launcher    *Launcher
	lander      *Lander

	observerMu sync.RWMutex
	observers  []observerRegistration

	statusInterval time.Duration
}

type observerRegistration struct {
	observer     Observer
	eventTypes   []string
	registeredAt time.Time
}

// AppOption configures an Application at construction time.
type AppOption func(*Application)

// WithStatusInterval makes Run log a periodic status report. Zero disables
// the report, which is the default.
func WithStatusInterval(d time.Duration) AppOption {
	return func(app *Application) {
		app.statusInterval = d
	}
}

// WithRegistry substitutes a pre-configured registry, e.g. one with a custom
// join timeout or base context.
func WithRegistry(registry *Registry) AppOption {
	return func(app *Application) {
		app.registry = registry
	}
}

// NewApplication creates an application around a config provider and logger.
func NewApplication(cfgProvider ConfigProvider, logger Logger, opts ...AppOption) *Application {
	app := &Application{
		cfgProvider: cfgProvider,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.registry == nil {
		app.registry = NewRegistry(logger)
	}
	app.evaluator = NewEvaluator(app.registry, logger)
	app.launcher = NewLauncher(app.registry, app.evaluator, logger, app)
	app.lander = NewLander(app.registry, logger, app)
	return app
}

// ConfigProvider returns the application's configuration provider.
func (app *Application) ConfigProvider() ConfigProvider {
	return app.cfgProvider
}

// Logger returns the application's logger.
func (app *Application) Logger() Logger {
	return app.logger
}

// Registry returns the subsystem registry.
func (app *Application) Registry() *Registry {
	return app.registry
}

// RegisterSubsystem adds a subsystem to the registry.
func (app *Application) RegisterSubsystem(sub Subsystem) (int, error) {
	return app.registry.Register(sub)
}

// Launch runs the launch sequence over all Inactive subsystems.
func (app *Application) Launch(ctx context.Context) (LaunchResult, error) {
	return app.launcher.Launch(ctx)
}

// Land runs the landing sequence over all active subsystems.
func (app *Application) Land(ctx context.Context) LandingResult {
	return app.lander.Land(ctx)
}

// Evaluate returns the readiness report for one registered subsystem.
func (app *Application) Evaluate(ctx context.Context, name string) (ReadinessReport, error) {
	id, err := app.registry.ID(name)
	if err != nil {
		return ReadinessReport{}, err
	}
	return app.evaluator.Evaluate(ctx, id), nil
}

// Run launches all subsystems, blocks until SIGINT or SIGTERM (or ctx
// cancellation), then lands them in reverse order. A dependency cycle aborts
// the run before waiting; partial launch failure is logged and the degraded
// set keeps serving.
func (app *Application) Run(ctx context.Context) error {
	launch, err := app.Launch(ctx)
	if err != nil {
		app.Land(ctx)
		return fmt.Errorf("launch aborted: %w", err)
	}
	if !launch.FullyUp() {
		app.logger.Warn("Running in degraded mode",
			"started", len(launch.Started), "failed", len(launch.Failed), "blocked", len(launch.Blocked))
	}

	var ticker *time.Ticker
	var tick <-chan time.Time
	if app.statusInterval > 0 {
		ticker = time.NewTicker(app.statusInterval)
		tick = ticker.C
		defer ticker.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			app.logger.Info("Received signal, landing", "signal", sig.String())
			app.Land(context.Background())
			return nil
		case <-ctx.Done():
			app.logger.Info("Context cancelled, landing")
			app.Land(context.Background())
			return ctx.Err()
		case <-tick:
			app.logger.Info("Status report\n" + app.registry.StatusReport())
		}
	}
}

// RegisterObserver implements Subject.
func (app *Application) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	app.observerMu.Lock()
	defer app.observerMu.Unlock()

	for i, reg := range app.observers {
		if reg.observer.ObserverID() == observer.ObserverID() {
			app.observers[i] = observerRegistration{observer, eventTypes, time.Now()}
			return nil
		}
	}
	app.observers = append(app.observers, observerRegistration{observer, eventTypes, time.Now()})
	return nil
}

// UnregisterObserver implements Subject.
func (app *Application) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	app.observerMu.Lock()
	defer app.observerMu.Unlock()

	for i, reg := range app.observers {
		if reg.observer.ObserverID() == observer.ObserverID() {
			app.observers = append(app.observers[:i], app.observers[i+1:]...)
			return nil
		}
	}
	return nil
}

// NotifyObservers implements Subject. Observer errors are logged and do not
// stop delivery to the remaining observers.
func (app *Application) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	app.observerMu.RLock()
	regs := make([]observerRegistration, len(app.observers))
	copy(regs, app.observers)
	app.observerMu.RUnlock()

	for _, reg := range regs {
		if !observerWants(reg.eventTypes, event.Type()) {
			continue
		}
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			app.logger.Warn("Observer failed to handle event",
				"observer", reg.observer.ObserverID(), "event", event.Type(), "error", err)
		}
	}
	return nil
}

// GetObservers implements Subject.
func (app *Application) GetObservers() []ObserverInfo {
	app.observerMu.RLock()
	defer app.observerMu.RUnlock()

	infos := make([]ObserverInfo, len(app.observers))
	for i, reg := range app.observers {
		infos[i] = ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   reg.eventTypes,
			RegisteredAt: reg.registeredAt,
		}
	}
	return infos
}

func observerWants(eventTypes []string, eventType string) bool {
	if len(eventTypes) == 0 {
		return true
	}
	for _, t := range eventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
