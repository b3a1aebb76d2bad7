package server

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codechat-live/codechat-server/internal/cerr"
	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/manager"
	"github.com/codechat-live/codechat-server/internal/rpc"
)

// syncBuffer lets the test read stderr output while Run writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// requireServicePorts skips when another process already holds the fixed
// service ports; Run binds 9090-9092 for real.
func requireServicePorts(t *testing.T) {
	t.Helper()
	for _, port := range []int{config.RPCPort, config.HTTPPort, config.WebSocketPort} {
		ln, err := net.Listen("tcp", net.JoinHostPort(config.Localhost, strconv.Itoa(port)))
		if err != nil {
			t.Skipf("port %d unavailable: %v", port, err)
		}
		ln.Close()
	}
}

func TestRunLifecycle(t *testing.T) {
	requireServicePorts(t)

	m := manager.NewRenderManager(manager.Options{
		Workers:          1,
		ShutdownFallback: 20 * time.Millisecond,
	})
	stderr := &syncBuffer{}
	s := New(Options{
		Config:  &config.Config{Workers: 1},
		Env:     config.Environment{Kind: config.EnvLocal},
		Manager: m,
		Stderr:  stderr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "CODECHAT_READY\n")
	}, 5*time.Second, 10*time.Millisecond, "ready marker not printed")
	assert.Contains(t, stderr.String(), "The CodeChat Server is ready.\n")
	assert.Equal(t, 1, strings.Count(stderr.String(), "CODECHAT_READY"))

	// All three surfaces answer.
	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	client, err := rpc.Dial(callCtx, rpc.DefaultAddr())
	require.NoError(t, err)
	pong, err := client.Ping(callCtx)
	require.NoError(t, err)
	assert.Equal(t, "", pong)
	client.Close()

	resp, err := http.Get("http://127.0.0.1:9091/client?id=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wsConn, err := net.DialTimeout("tcp", "127.0.0.1:9092", 5*time.Second)
	require.NoError(t, err)
	wsConn.Close()

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not drain after cancellation")
	}
}

func TestRunReportsPortsInUse(t *testing.T) {
	requireServicePorts(t)

	// Occupy one service port so startup must fail.
	blocker, err := net.Listen("tcp", net.JoinHostPort(config.Localhost, strconv.Itoa(config.HTTPPort)))
	require.NoError(t, err)
	defer blocker.Close()

	m := manager.NewRenderManager(manager.Options{Workers: 1})
	stderr := &syncBuffer{}
	s := New(Options{
		Config:  &config.Config{Workers: 1},
		Env:     config.Environment{Kind: config.EnvLocal},
		Manager: m,
		Stderr:  stderr,
	})

	err = s.Run(context.Background())

	require.Error(t, err)
	assert.True(t, cerr.IsFatal(err))
	assert.Contains(t, stderr.String(), "Error: port(s) 9091 in use.\n")
	assert.NotContains(t, stderr.String(), "CODECHAT_READY")
}
