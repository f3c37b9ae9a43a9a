// Package webserver provides the HTTP subsystem. It serves the registry's
// status surfaces over a chi router and exposes the router so dependent
// subsystems can mount their own routes before launch.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/apogeehq/apogee"
)

// SubsystemName is the registry name for the web server subsystem.
const SubsystemName = "webserver"

var (
	// ErrPortInUse is returned by the resource check when the configured
	// port cannot be bound.
	ErrPortInUse = errors.New("configured port is not available")
	// ErrNotStarted is returned by accessors before Init has completed.
	ErrNotStarted = errors.New("web server subsystem not started")
)

// Config controls the listener and HTTP timeouts.
type Config struct {
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DefaultConfig returns the config used when no section is present.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// RouterService is implemented by subsystems that expose an HTTP router for
// others to mount routes on.
type RouterService interface {
	Router() chi.Router
}

// Subsystem is the HTTP server. It depends on the network subsystem and
// serves until its lifecycle context is cancelled.
type Subsystem struct {
	cfg      Config
	logger   apogee.Logger
	registry *apogee.Registry
	router   chi.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

// New creates the web server subsystem. The router is built immediately so
// dependents can mount routes between registration and launch.
func New(cfg Config, log apogee.Logger, registry *apogee.Registry) *Subsystem {
	s := &Subsystem{cfg: cfg, logger: log, registry: registry}
	s.router = s.buildRouter()
	return s
}

func (s *Subsystem) Name() string { return SubsystemName }

// Dependencies declares that HTTP serving needs base connectivity first.
func (s *Subsystem) Dependencies() []string {
	return []string{"network"}
}

// Router returns the chi router for dependents to mount routes on.
func (s *Subsystem) Router() chi.Router {
	return s.router
}

// CheckConfig validates the listener configuration.
func (s *Subsystem) CheckConfig() error {
	if err := apogee.ValidatePort(s.cfg.Port); err != nil {
		return err
	}
	if s.cfg.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}

// CheckResources probes the configured port by binding and releasing it.
func (s *Subsystem) CheckResources(_ context.Context) error {
	probe, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPortInUse, s.addr(), err)
	}
	return probe.Close()
}

// Init binds the listener and starts serving. The bind happens synchronously
// so a port conflict surfaces as an init failure rather than a silent dead
// server; only the accept loop runs in the background.
func (s *Subsystem) Init(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.addr(), err)
	}

	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", "error", serveErr)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Warn("HTTP server shutdown incomplete", "error", shutdownErr)
			_ = server.Close()
		}
	}()

	s.logger.Info("HTTP server listening", "addr", listener.Addr().String())
	return nil
}

// Shutdown drains in-flight requests and stops the accept loop. It is safe
// to call more than once and regardless of whether the lifecycle context has
// been cancelled; server.Shutdown is idempotent, so the Init-spawned watcher
// and a direct call converge on the same stop.
func (s *Subsystem) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	done := s.done
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		_ = server.Close()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return server.Close()
	}
}

// Done reports when the accept loop has exited.
func (s *Subsystem) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Addr returns the bound address, useful when Port is 0.
func (s *Subsystem) Addr() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return "", ErrNotStarted
	}
	return s.listener.Addr().String(), nil
}

func (s *Subsystem) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Subsystem) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(s.registry.StatusReport()))
	})
	return r
}
