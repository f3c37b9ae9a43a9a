package webserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apogeehq/apogee"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Info(msg string, args ...any)  { l.t.Log("INFO", msg, args) }
func (l testLogger) Error(msg string, args ...any) { l.t.Log("ERROR", msg, args) }
func (l testLogger) Warn(msg string, args ...any)  { l.t.Log("WARN", msg, args) }
func (l testLogger) Debug(msg string, args ...any) { l.t.Log("DEBUG", msg, args) }

func newTestServer(t *testing.T) (*Subsystem, *apogee.Registry) {
	t.Helper()
	registry := apogee.NewRegistry(testLogger{t})
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0 // ephemeral port
	return New(cfg, testLogger{t}, registry), registry
}

func TestDependencies(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, []string{"network"}, s.Dependencies())
}

func TestCheckConfig(t *testing.T) {
	registry := apogee.NewRegistry(testLogger{t})

	cfg := DefaultConfig()
	assert.NoError(t, New(cfg, testLogger{t}, registry).CheckConfig())

	cfg.Port = 0
	assert.ErrorIs(t, New(cfg, testLogger{t}, registry).CheckConfig(), apogee.ErrPortOutOfRange)

	cfg = DefaultConfig()
	cfg.ShutdownTimeout = 0
	assert.Error(t, New(cfg, testLogger{t}, registry).CheckConfig())
}

func TestServeAndShutdown(t *testing.T) {
	s, registry := newTestServer(t)

	_, err := registry.Register(s)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Init(ctx))

	addr, err := s.Addr()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(fmt.Sprintf("http://%s/status", addr))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "Subsystem: webserver")
	assert.Contains(t, string(body), "Total subsystems: 1")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	require.NoError(t, s.Shutdown(shutdownCtx))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not exit")
	}
}

func TestCheckResourcesDetectsPortInUse(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Init(ctx))
	defer func() { _ = s.Shutdown(context.Background()) }()

	addr, err := s.Addr()
	require.NoError(t, err)

	// A second server configured to the now-occupied port must refuse launch.
	var port int
	_, err = fmt.Sscanf(addr, "127.0.0.1:%d", &port)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	other := New(cfg, testLogger{t}, apogee.NewRegistry(testLogger{t}))
	assert.ErrorIs(t, other.CheckResources(context.Background()), ErrPortInUse)
}

func TestShutdownStopsServerWithoutLifecycleCancel(t *testing.T) {
	s, _ := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Init(ctx))

	// Shutdown must terminate the server on its own, even while the
	// lifecycle context is still live and the caller's context carries no
	// deadline.
	errCh := make(chan error, 1)
	go func() { errCh <- s.Shutdown(context.Background()) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return")
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not exit")
	}

	// A second call is a no-op.
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestAddrBeforeInit(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.Addr()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRouterAvailableBeforeInit(t *testing.T) {
	s, _ := newTestServer(t)
	require.NotNil(t, s.Router())

	// Dependents mount routes between registration and launch.
	s.Router().Get("/custom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Init(ctx))
	defer func() { _ = s.Shutdown(context.Background()) }()

	addr, err := s.Addr()
	require.NoError(t, err)
	resp, err := http.Get(fmt.Sprintf("http://%s/custom", addr))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
