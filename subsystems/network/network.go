// Package network provides the base connectivity subsystem. It enumerates
// usable network interfaces at launch and keeps a periodic watch on them so
// dependent subsystems can assume an addressable host.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/apogeehq/apogee"
)

// SubsystemName is the registry name for the network subsystem.
const SubsystemName = "network"

var (
	// ErrNoInterfaces is returned when no usable network interface exists.
	ErrNoInterfaces = errors.New("no usable network interfaces found")
	// ErrNotStarted is returned by accessors before Init has completed.
	ErrNotStarted = errors.New("network subsystem not started")
)

// Config controls interface selection and the monitor cadence.
type Config struct {
	// RequireNonLoopback rejects launch when only loopback interfaces exist.
	RequireNonLoopback bool `yaml:"require_non_loopback" toml:"require_non_loopback"`
	// MonitorInterval is how often interfaces are re-enumerated. Zero
	// disables the monitor.
	MonitorInterval time.Duration `yaml:"monitor_interval" toml:"monitor_interval"`
}

// DefaultConfig returns the config used when no section is present.
func DefaultConfig() Config {
	return Config{MonitorInterval: 30 * time.Second}
}

// Interface describes one usable network interface.
type Interface struct {
	Name      string
	Addresses []string
	Loopback  bool
}

// Subsystem enumerates network interfaces and watches for changes.
type Subsystem struct {
	cfg    Config
	logger apogee.Logger

	mu         sync.Mutex
	interfaces []Interface

	done chan struct{}
}

// New creates the network subsystem.
func New(cfg Config, log apogee.Logger) *Subsystem {
	return &Subsystem{cfg: cfg, logger: log}
}

func (s *Subsystem) Name() string { return SubsystemName }

// CheckResources verifies that a usable interface exists before launch.
func (s *Subsystem) CheckResources(_ context.Context) error {
	ifaces, err := enumerate(s.cfg.RequireNonLoopback)
	if err != nil {
		return err
	}
	if len(ifaces) == 0 {
		return ErrNoInterfaces
	}
	return nil
}

// Init enumerates interfaces and starts the monitor goroutine.
func (s *Subsystem) Init(ctx context.Context) error {
	ifaces, err := enumerate(s.cfg.RequireNonLoopback)
	if err != nil {
		return fmt.Errorf("enumerating interfaces: %w", err)
	}
	if len(ifaces) == 0 {
		return ErrNoInterfaces
	}

	s.mu.Lock()
	s.interfaces = ifaces
	s.done = make(chan struct{})
	s.mu.Unlock()

	for _, iface := range ifaces {
		s.logger.Info("Network interface available", "interface", iface.Name,
			"addresses", strings.Join(iface.Addresses, ", "), "loopback", iface.Loopback)
	}

	go s.monitor(ctx)
	return nil
}

// Shutdown has nothing to release; the monitor exits on context cancellation.
func (s *Subsystem) Shutdown(_ context.Context) error {
	return nil
}

// Done reports when the monitor goroutine has exited.
func (s *Subsystem) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Interfaces returns the most recent interface snapshot.
func (s *Subsystem) Interfaces() ([]Interface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interfaces == nil {
		return nil, ErrNotStarted
	}
	out := make([]Interface, len(s.interfaces))
	copy(out, s.interfaces)
	return out, nil
}

func (s *Subsystem) monitor(ctx context.Context) {
	defer close(s.done)

	if s.cfg.MonitorInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ifaces, err := enumerate(s.cfg.RequireNonLoopback)
			if err != nil {
				s.logger.Warn("Interface enumeration failed", "error", err)
				continue
			}
			s.mu.Lock()
			changed := len(ifaces) != len(s.interfaces)
			s.interfaces = ifaces
			s.mu.Unlock()
			if changed {
				s.logger.Info("Network interface set changed", "count", len(ifaces))
			}
		}
	}
}

func enumerate(requireNonLoopback bool) ([]Interface, error) {
	sysIfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	var out []Interface
	for _, si := range sysIfaces {
		if si.Flags&net.FlagUp == 0 {
			continue
		}
		loopback := si.Flags&net.FlagLoopback != 0
		if requireNonLoopback && loopback {
			continue
		}
		addrs, err := si.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		iface := Interface{Name: si.Name, Loopback: loopback}
		for _, addr := range addrs {
			iface.Addresses = append(iface.Addresses, addr.String())
		}
		out = append(out, iface)
	}
	return out, nil
}
