package rpc

import (
	"context"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"
)

// Client talks to a running server from an editor's point of view. The
// CLI sub-commands build on it.
type Client struct {
	conn *jsonrpc2.Conn
}

// Dial connects to the server's RPC port.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot reach the CodeChat Server at %s: %w", addr, err)
	}
	stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.VarintObjectCodec{})
	return &Client{conn: jsonrpc2.NewConn(context.Background(), stream, noopHandler{})}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// GetClient allocates a viewer and returns its placement result.
func (c *Client) GetClient(ctx context.Context, location int) (RenderClientReturn, error) {
	var ret RenderClientReturn
	err := c.conn.Call(ctx, MethodGetClient, GetClientParams{Location: location}, &ret)
	return ret, err
}

// StartRender submits one render. The returned string is the service's
// failure text, empty on success.
func (c *Client) StartRender(ctx context.Context, text, path string, id int, isDirty bool) (string, error) {
	var errText string
	err := c.conn.Call(ctx, MethodStartRender, StartRenderParams{
		Text:    text,
		Path:    path,
		ID:      id,
		IsDirty: isDirty,
	}, &errText)
	return errText, err
}

// StopClient asks the server to end one client.
func (c *Client) StopClient(ctx context.Context, id int) (string, error) {
	var errText string
	err := c.conn.Call(ctx, MethodStopClient, StopClientParams{ID: id}, &errText)
	return errText, err
}

// Ping reports server health: empty string when healthy.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var errText string
	err := c.conn.Call(ctx, MethodPing, nil, &errText)
	return errText, err
}

// The server never calls back into editors.
type noopHandler struct{}

func (noopHandler) Handle(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) {}
