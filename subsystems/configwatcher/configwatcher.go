// Package configwatcher provides the config file watch subsystem. It watches
// the application's configuration file with fsnotify and emits a CloudEvent
// whenever the file changes, so operators and other subsystems can react
// without polling.
package configwatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/apogeehq/apogee"
)

// SubsystemName is the registry name for the config watcher subsystem.
const SubsystemName = "configwatcher"

// ErrPathEmpty is returned when no config path is configured.
var ErrPathEmpty = errors.New("config path must not be empty")

// Config controls the watched path and event debouncing.
type Config struct {
	// Path is the configuration file to watch.
	Path string `yaml:"path" toml:"path"`
	// Debounce collapses bursts of writes into a single change event.
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
}

// DefaultConfig returns the config used when no section is present.
func DefaultConfig() Config {
	return Config{Debounce: 250 * time.Millisecond}
}

// Subsystem watches one config file and notifies through a Subject.
type Subsystem struct {
	cfg     Config
	logger  apogee.Logger
	subject apogee.Subject

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates the config watcher subsystem. subject may be nil, in which
// case changes are only logged.
func New(cfg Config, log apogee.Logger, subject apogee.Subject) *Subsystem {
	return &Subsystem{cfg: cfg, logger: log, subject: subject}
}

func (s *Subsystem) Name() string { return SubsystemName }

// CheckConfig validates the watch target.
func (s *Subsystem) CheckConfig() error {
	if s.cfg.Path == "" {
		return ErrPathEmpty
	}
	return nil
}

// CheckResources verifies the watched file exists before launch.
func (s *Subsystem) CheckResources(_ context.Context) error {
	if _, err := os.Stat(s.cfg.Path); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// Init starts the fsnotify watcher. Editors typically replace files rather
// than write in place, so the watch is on the parent directory and events
// are filtered to the configured path.
func (s *Subsystem) Init(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir := filepath.Dir(s.cfg.Path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.watch(ctx, watcher)
	s.logger.Info("Watching config file", "path", s.cfg.Path)
	return nil
}

// Shutdown closes the watcher, which ends the watch loop.
func (s *Subsystem) Shutdown(_ context.Context) error {
	s.mu.Lock()
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher == nil {
		return nil
	}
	return watcher.Close()
}

// Done reports when the watch loop has exited.
func (s *Subsystem) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Subsystem) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(s.done)

	target, err := filepath.Abs(s.cfg.Path)
	if err != nil {
		target = s.cfg.Path
	}

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.cfg.Debounce)
			} else {
				timer.Reset(s.cfg.Debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			s.emitChanged(ctx)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Config watch error", "error", watchErr)
		}
	}
}

func (s *Subsystem) emitChanged(ctx context.Context) {
	s.logger.Info("Config file changed", "path", s.cfg.Path)
	if s.subject == nil {
		return
	}
	event := apogee.NewCloudEvent(apogee.EventTypeConfigChanged, SubsystemName,
		map[string]any{"path": s.cfg.Path}, nil)
	if err := s.subject.NotifyObservers(ctx, event); err != nil {
		s.logger.Debug("Failed to notify observers of config change", "error", err)
	}
}
