// Package rpc implements the editor-facing service on TCP port 9090:
// varint-framed JSON-RPC 2.0 carrying the four operations editor plug-ins
// use to drive rendering. The same wire types back the client side used by
// the CLI sub-commands.
package rpc

import (
	"net"
	"strconv"

	"github.com/codechat-live/codechat-server/internal/config"
)

// Method names accepted by the service.
const (
	MethodGetClient   = "get_client"
	MethodStartRender = "start_render"
	MethodStopClient  = "stop_client"
	MethodPing        = "ping"
)

// Where get_client should put the viewer.
const (
	// LocationURL returns the viewer URL for the editor to embed.
	LocationURL = 0
	// LocationHTML returns a page that redirects itself to the viewer,
	// for editors that can only display given HTML.
	LocationHTML = 1
	// LocationBrowser opens the system browser on the viewer URL.
	LocationBrowser = 2
)

// RenderClientReturn is the get_client result.
type RenderClientReturn struct {
	// HTML is the viewer URL, a self-redirecting page, or empty,
	// depending on the requested location.
	HTML string `json:"html"`
	// ID is the allocated client id, or -1 on failure.
	ID int `json:"id"`
	// Error is empty on success.
	Error string `json:"error"`
}

// GetClientParams carries the get_client arguments.
type GetClientParams struct {
	Location int `json:"location"`
}

// StartRenderParams carries the start_render arguments.
type StartRenderParams struct {
	Text    string `json:"text"`
	Path    string `json:"path"`
	ID      int    `json:"id"`
	IsDirty bool   `json:"is_dirty"`
}

// StopClientParams carries the stop_client arguments.
type StopClientParams struct {
	ID int `json:"id"`
}

// DefaultAddr is where a locally running server accepts editor RPC.
func DefaultAddr() string {
	return net.JoinHostPort(config.Localhost, strconv.Itoa(config.RPCPort))
}
