// Package scheduler provides the cron subsystem. Jobs are registered before
// launch with standard cron expressions and run on the subsystem's cron
// engine while it is Running.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/apogeehq/apogee"
)

// SubsystemName is the registry name for the scheduler subsystem.
const SubsystemName = "scheduler"

var (
	// ErrJobNameEmpty is returned when a job is added without a name.
	ErrJobNameEmpty = errors.New("job name must not be empty")
	// ErrJobNil is returned when a job is added without a function.
	ErrJobNil = errors.New("job function must not be nil")
	// ErrAlreadyStarted is returned when adding a job after launch.
	ErrAlreadyStarted = errors.New("scheduler already started, jobs must be added before launch")
)

// Config controls cron parsing options.
type Config struct {
	// WithSeconds enables the optional seconds field in cron expressions.
	WithSeconds bool `yaml:"with_seconds" toml:"with_seconds"`
}

// DefaultConfig returns the config used when no section is present.
func DefaultConfig() Config {
	return Config{}
}

type job struct {
	name string
	spec string
	fn   func()
}

// Subsystem wraps a cron engine behind the subsystem lifecycle.
type Subsystem struct {
	cfg    Config
	logger apogee.Logger

	mu      sync.Mutex
	jobs    []job
	engine  *cron.Cron
	started bool
	done    chan struct{}
}

// New creates the scheduler subsystem.
func New(cfg Config, log apogee.Logger) *Subsystem {
	return &Subsystem{cfg: cfg, logger: log}
}

func (s *Subsystem) Name() string { return SubsystemName }

// AddJob registers a named job with a cron spec. Jobs must be added before
// launch; the set is validated by the configuration readiness check.
func (s *Subsystem) AddJob(name, spec string, fn func()) error {
	if name == "" {
		return ErrJobNameEmpty
	}
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrJobNil, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.jobs = append(s.jobs, job{name: name, spec: spec, fn: fn})
	return nil
}

// CheckConfig parses every registered job spec so a bad expression blocks
// launch instead of panicking later.
func (s *Subsystem) CheckConfig() error {
	parser := s.parser()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if _, err := parser.Parse(j.spec); err != nil {
			return fmt.Errorf("job %s has invalid spec %q: %w", j.name, j.spec, err)
		}
	}
	return nil
}

// Init starts the cron engine with all registered jobs.
func (s *Subsystem) Init(ctx context.Context) error {
	var opts []cron.Option
	if s.cfg.WithSeconds {
		opts = append(opts, cron.WithSeconds())
	}
	engine := cron.New(opts...)

	s.mu.Lock()
	for _, j := range s.jobs {
		j := j
		if _, err := engine.AddFunc(j.spec, func() {
			s.logger.Debug("Running scheduled job", "job", j.name)
			j.fn()
		}); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("adding job %s: %w", j.name, err)
		}
	}
	s.engine = engine
	s.started = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	engine.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))

	go func() {
		defer close(done)
		<-ctx.Done()
		// Stop returns a context that completes when running jobs finish.
		<-engine.Stop().Done()
	}()
	return nil
}

// Shutdown waits for in-flight jobs, bounded by the caller's deadline. The
// engine stop itself is driven by the lifecycle context in Init.
func (s *Subsystem) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.started = false
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduled jobs still running: %w", ctx.Err())
	}
}

// Done reports when the engine has stopped and all jobs have finished.
func (s *Subsystem) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// JobCount returns the number of registered jobs.
func (s *Subsystem) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Subsystem) parser() cron.Parser {
	if s.cfg.WithSeconds {
		return cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	}
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}
