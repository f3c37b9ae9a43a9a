package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Info(msg string, args ...any)  { l.t.Log("INFO", msg, args) }
func (l testLogger) Error(msg string, args ...any) { l.t.Log("ERROR", msg, args) }
func (l testLogger) Warn(msg string, args ...any)  { l.t.Log("WARN", msg, args) }
func (l testLogger) Debug(msg string, args ...any) { l.t.Log("DEBUG", msg, args) }

type routerService struct{ router chi.Router }

func (rs routerService) Router() chi.Router { return rs.router }

func newTestHub(t *testing.T) (*Subsystem, chi.Router) {
	t.Helper()
	router := chi.NewRouter()
	return New(DefaultConfig(), testLogger{t}, routerService{router}), router
}

func TestDependencies(t *testing.T) {
	s, _ := newTestHub(t)
	assert.Equal(t, []string{"webserver"}, s.Dependencies())
}

func TestCheckConfig(t *testing.T) {
	_, router := newTestHub(t)

	assert.ErrorIs(t, New(DefaultConfig(), testLogger{t}, nil).CheckConfig(), ErrRouterUnavailable)

	cfg := DefaultConfig()
	cfg.Path = "events"
	assert.Error(t, New(cfg, testLogger{t}, routerService{router}).CheckConfig())

	cfg = DefaultConfig()
	cfg.SubscriberBuffer = 0
	assert.Error(t, New(cfg, testLogger{t}, routerService{router}).CheckConfig())

	s, _ := newTestHub(t)
	assert.NoError(t, s.CheckConfig())
}

func TestInvalidPathDoesNotPanicAtConstruction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = "events" // no leading slash

	var s *Subsystem
	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		s = New(cfg, testLogger{t}, routerService{router})
	})

	// The bad path is reported by the configuration check, not by a crash,
	// and nothing was mounted under it.
	assert.Error(t, s.CheckConfig())
	assert.Empty(t, router.Routes())
}

func TestPublishBeforeInit(t *testing.T) {
	s, _ := newTestHub(t)
	assert.ErrorIs(t, s.Publish(Message{Data: "x"}), ErrNotStarted)
}

func TestPublishAfterShutdown(t *testing.T) {
	s, _ := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Shutdown(context.Background()))

	assert.ErrorIs(t, s.Publish(Message{Data: "x"}), ErrHubStopped)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not exit")
	}
}

func TestStreamDeliversPublishedMessages(t *testing.T) {
	s, router := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Init(ctx))

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Publish(Message{Event: "status", Data: "hello"}))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, readErr := reader.ReadString('\n')
		require.NoError(t, readErr)
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	assert.Equal(t, "event: status", lines[0])
	assert.Equal(t, "data: hello", lines[1])
}

func TestShutdownDisconnectsSubscribers(t *testing.T) {
	s, router := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Init(ctx))

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return s.SubscriberCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not exit")
	}
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestStreamRejectedAfterStop(t *testing.T) {
	s, router := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.Shutdown(context.Background()))
	cancel()
	<-s.Done()

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
