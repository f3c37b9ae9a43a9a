// Package mailrelay provides the outbound mail subsystem. Messages are
// queued with generated ids and delivered by a pool of workers through an
// injectable delivery function, so transports and tests plug in the same way.
package mailrelay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/apogeehq/apogee"
)

// SubsystemName is the registry name for the mail relay subsystem.
const SubsystemName = "mailrelay"

var (
	// ErrDisabled is returned by the configuration check when the relay is
	// not enabled; the launch reports it as blocked rather than failed.
	ErrDisabled = errors.New("mail relay disabled by configuration")
	// ErrNoDelivery is returned when no delivery function was supplied.
	ErrNoDelivery = errors.New("no delivery function configured")
	// ErrNotAccepting is returned by Enqueue outside the Running window.
	ErrNotAccepting = errors.New("mail relay not accepting messages")
	// ErrQueueFull is returned when the queue cannot take another message.
	ErrQueueFull = errors.New("mail queue full")
)

// Config controls the relay queue and worker pool.
type Config struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	From      string `yaml:"from" toml:"from"`
	QueueSize int    `yaml:"queue_size" toml:"queue_size"`
	Workers   int    `yaml:"workers" toml:"workers"`
}

// DefaultConfig returns the config used when no section is present. The
// relay is off by default; enabling it requires explicit configuration.
func DefaultConfig() Config {
	return Config{QueueSize: 64, Workers: 2}
}

// Message is one outbound mail.
type Message struct {
	ID      string
	To      []string
	Subject string
	Body    string
}

// DeliveryFunc hands a message to the actual transport.
type DeliveryFunc func(ctx context.Context, from string, msg Message) error

// Subsystem is the queued mail relay.
type Subsystem struct {
	cfg     Config
	logger  apogee.Logger
	deliver DeliveryFunc

	mu        sync.Mutex
	queue     chan Message
	accepting bool
	done      chan struct{}
}

// New creates the mail relay subsystem.
func New(cfg Config, log apogee.Logger, deliver DeliveryFunc) *Subsystem {
	return &Subsystem{cfg: cfg, logger: log, deliver: deliver}
}

func (s *Subsystem) Name() string { return SubsystemName }

// CheckConfig validates the relay configuration. A disabled relay is a
// No-Go, which keeps it registered and visible in status without running it.
func (s *Subsystem) CheckConfig() error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if s.deliver == nil {
		return ErrNoDelivery
	}
	if s.cfg.From == "" {
		return errors.New("from address must not be empty")
	}
	if s.cfg.QueueSize <= 0 || s.cfg.Workers <= 0 {
		return errors.New("queue_size and workers must be positive")
	}
	return nil
}

// Init starts the worker pool.
func (s *Subsystem) Init(ctx context.Context) error {
	s.mu.Lock()
	s.queue = make(chan Message, s.cfg.QueueSize)
	s.accepting = true
	s.done = make(chan struct{})
	queue, done := s.queue, s.done
	s.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, queue)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Info("Mail relay started", "workers", s.cfg.Workers, "queue", s.cfg.QueueSize)
	return nil
}

// Shutdown stops intake and closes the queue so workers drain what remains.
func (s *Subsystem) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepting {
		return nil
	}
	s.accepting = false
	close(s.queue)
	return nil
}

// Done reports when all workers have exited.
func (s *Subsystem) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Enqueue assigns the message an id and queues it for delivery.
func (s *Subsystem) Enqueue(msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue == nil || !s.accepting {
		return "", ErrNotAccepting
	}
	if len(msg.To) == 0 {
		return "", errors.New("message has no recipients")
	}
	msg.ID = uuid.NewString()

	select {
	case s.queue <- msg:
		return msg.ID, nil
	default:
		return "", fmt.Errorf("%w: %d messages pending", ErrQueueFull, len(s.queue))
	}
}

func (s *Subsystem) worker(ctx context.Context, queue <-chan Message) {
	for msg := range queue {
		if err := s.deliver(ctx, s.cfg.From, msg); err != nil {
			s.logger.Error("Mail delivery failed", "message", msg.ID, "error", err)
			continue
		}
		s.logger.Debug("Mail delivered", "message", msg.ID, "recipients", len(msg.To))
	}
}
