// Package realtime provides the live-update subsystem. It runs a hub that
// fans published messages out to HTTP clients over server-sent events,
// mounting its endpoint on the web server's router.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/apogeehq/apogee"
	"github.com/apogeehq/apogee/subsystems/webserver"
)

// SubsystemName is the registry name for the realtime subsystem.
const SubsystemName = "realtime"

var (
	// ErrRouterUnavailable is returned when no router service was supplied.
	ErrRouterUnavailable = errors.New("no router service available")
	// ErrNotStarted is returned when publishing before Init.
	ErrNotStarted = errors.New("realtime subsystem not started")
	// ErrHubStopped is returned when publishing after shutdown began.
	ErrHubStopped = errors.New("realtime hub stopped")
)

// Config controls hub buffering and the mount point.
type Config struct {
	// Path is where the event stream is mounted on the web server.
	Path string `yaml:"path" toml:"path"`
	// SubscriberBuffer is the per-client queue depth; a client that falls
	// this far behind is dropped.
	SubscriberBuffer int `yaml:"subscriber_buffer" toml:"subscriber_buffer"`
}

// DefaultConfig returns the config used when no section is present.
func DefaultConfig() Config {
	return Config{Path: "/events", SubscriberBuffer: 16}
}

// Message is one hub payload with its event type label.
type Message struct {
	Event string
	Data  string
}

// Subsystem is the SSE hub. It depends on the web server for its transport.
type Subsystem struct {
	cfg    Config
	logger apogee.Logger
	routes webserver.RouterService

	mu          sync.Mutex
	subscribers map[string]chan Message
	publish     chan Message
	stopped     bool
	done        chan struct{}
}

// New creates the realtime subsystem and mounts its endpoint on the router.
// An invalid path is left unmounted so the configuration readiness check can
// report it as a No-Go instead of the router panicking at construction.
func New(cfg Config, log apogee.Logger, routes webserver.RouterService) *Subsystem {
	s := &Subsystem{
		cfg:         cfg,
		logger:      log,
		routes:      routes,
		subscribers: make(map[string]chan Message),
	}
	if routes != nil && validPath(cfg.Path) {
		routes.Router().Get(cfg.Path, s.handleStream)
	}
	return s
}

func validPath(path string) bool {
	return path != "" && path[0] == '/'
}

func (s *Subsystem) Name() string { return SubsystemName }

// Dependencies declares the transport requirement.
func (s *Subsystem) Dependencies() []string {
	return []string{"webserver"}
}

// CheckConfig validates the hub configuration.
func (s *Subsystem) CheckConfig() error {
	if s.routes == nil {
		return ErrRouterUnavailable
	}
	if !validPath(s.cfg.Path) {
		return fmt.Errorf("path must start with /: %q", s.cfg.Path)
	}
	if s.cfg.SubscriberBuffer <= 0 {
		return errors.New("subscriber_buffer must be positive")
	}
	return nil
}

// Init starts the hub loop.
func (s *Subsystem) Init(ctx context.Context) error {
	s.mu.Lock()
	s.publish = make(chan Message, s.cfg.SubscriberBuffer)
	s.stopped = false
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
	s.logger.Info("Realtime hub started", "path", s.cfg.Path)
	return nil
}

// Shutdown marks the hub stopped; the run loop disconnects subscribers when
// the lifecycle context is cancelled.
func (s *Subsystem) Shutdown(_ context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// Done reports when the hub loop has exited.
func (s *Subsystem) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Publish queues a message for all connected subscribers. It never blocks;
// a full hub drops the message and reports it.
func (s *Subsystem) Publish(msg Message) error {
	s.mu.Lock()
	publish, stopped := s.publish, s.stopped
	s.mu.Unlock()

	if publish == nil {
		return ErrNotStarted
	}
	if stopped {
		return ErrHubStopped
	}
	select {
	case publish <- msg:
		return nil
	default:
		return errors.New("hub queue full, message dropped")
	}
}

// SubscriberCount returns the number of connected clients.
func (s *Subsystem) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Subsystem) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.disconnectAll()
			return
		case msg := <-s.publish:
			s.broadcast(msg)
		}
	}
}

func (s *Subsystem) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- msg:
		default:
			// Slow client; drop it rather than stall the hub.
			close(ch)
			delete(s.subscribers, id)
			s.logger.Warn("Dropped slow realtime subscriber", "subscriber", id)
		}
	}
}

func (s *Subsystem) disconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Subsystem) subscribe() (string, chan Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publish == nil || s.stopped {
		return "", nil, false
	}
	id := uuid.NewString()
	ch := make(chan Message, s.cfg.SubscriberBuffer)
	s.subscribers[id] = ch
	return id, ch, true
}

func (s *Subsystem) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Subsystem) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch, ok := s.subscribe()
	if !ok {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			if msg.Event != "" {
				fmt.Fprintf(w, "event: %s\n", msg.Event)
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Data)
			flusher.Flush()
		}
	}
}
