package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codechat-live/codechat-server/internal/manager"
)

// dialViewer connects to a WebSocket-only test server the way the viewer
// page does.
func dialViewer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(s.handleViewerSocket))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, ts.URL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(payload)))
}

func wsReadEvent(t *testing.T, conn *websocket.Conn) manager.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev manager.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestWebSocketUnknownClient(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialViewer(t, s)

	wsSend(t, conn, "7")

	ev := wsReadEvent(t, conn)
	assert.Equal(t, manager.EventCommand, ev.Kind)
	assert.Equal(t, "error: unknown client 7.", ev.Text)

	// The server closes after reporting.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
}

func TestWebSocketInvalidFirstFrame(t *testing.T) {
	s, _ := newTestServer(t)
	conn := dialViewer(t, s)

	wsSend(t, conn, "not json [")

	ev := wsReadEvent(t, conn)
	assert.Equal(t, manager.EventCommand, ev.Kind)
	assert.Contains(t, ev.Text, "error: unknown client <invalid id")
}

func TestWebSocketRenderFlow(t *testing.T) {
	s, m := newTestServer(t)
	id, err := m.CreateClient()
	require.NoError(t, err)

	conn := dialViewer(t, s)
	wsSend(t, conn, "0")

	require.True(t, m.StartRender("*hi*", "x.md", id, false))

	ev := wsReadEvent(t, conn)
	assert.Equal(t, manager.EventErrors, ev.Kind)
	assert.Equal(t, "", ev.Text)

	ev = wsReadEvent(t, conn)
	assert.Equal(t, manager.EventURL, ev.Kind)
	assert.Equal(t, "/x.md", ev.Text)

	// What the url event points at is fetchable over HTTP.
	ts := httptest.NewServer(s.viewerHandler())
	defer ts.Close()
	resp, body := get(t, ts.URL+"/client/0"+ev.Text)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<em>hi</em>")
}

func TestWebSocketShutdownEndsSession(t *testing.T) {
	s, m := newTestServer(t)
	id, err := m.CreateClient()
	require.NoError(t, err)

	conn := dialViewer(t, s)
	wsSend(t, conn, "0")

	require.True(t, m.ShutdownClient(id))

	ev := wsReadEvent(t, conn)
	assert.Equal(t, manager.EventCommand, ev.Kind)
	assert.Equal(t, manager.CommandShutdown, ev.Text)

	// The push loop requested deletion; the worker collects the client.
	assert.Eventually(t, func() bool { return m.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, readErr := conn.Read(ctx)
	assert.Error(t, readErr, "socket should close after the shutdown command")
}

func TestWebSocketSaveFileWithoutProjectIsIgnored(t *testing.T) {
	s, m := newTestServer(t)
	id, err := m.CreateClient()
	require.NoError(t, err)

	conn := dialViewer(t, s)
	wsSend(t, conn, "0")

	wsSend(t, conn, `["save_file", {"xml_node": "intro", "file_contents": "<p>x</p>"}]`)
	wsSend(t, conn, `["navigate_to_error", {"line": 3, "file_path": "x.rst"}]`)
	wsSend(t, conn, `["no_such_tag", {}]`)
	wsSend(t, conn, `"not a frame"`)

	// The connection survives all of it: a render still flows through.
	require.True(t, m.StartRender("*ok*", "x.md", id, false))
	ev := wsReadEvent(t, conn)
	assert.Equal(t, manager.EventErrors, ev.Kind)
	ev = wsReadEvent(t, conn)
	assert.Equal(t, manager.EventURL, ev.Kind)
}

func TestWebSocketViewerReconnect(t *testing.T) {
	s, m := newTestServer(t)
	id, err := m.CreateClient()
	require.NoError(t, err)

	first := dialViewer(t, s)
	wsSend(t, first, "0")
	require.True(t, m.StartRender("*a*", "x.md", id, false))
	wsReadEvent(t, first) // errors
	wsReadEvent(t, first) // url
	first.Close(websocket.StatusNormalClosure, "")
	// Give the first push loop time to observe the close; two loops on
	// one mailbox would race for the next events.
	time.Sleep(100 * time.Millisecond)

	// State survives the disconnect: a second viewer picks up new events.
	second := dialViewer(t, s)
	wsSend(t, second, "0")
	require.True(t, m.StartRender("*b*", "x.md", id, false))
	ev := wsReadEvent(t, second)
	assert.Equal(t, manager.EventErrors, ev.Kind)
	ev = wsReadEvent(t, second)
	assert.Equal(t, manager.EventURL, ev.Kind)
	assert.Equal(t, "/x.md", ev.Text)
}
