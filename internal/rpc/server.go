package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
	"golang.org/x/net/netutil"

	"github.com/codechat-live/codechat-server/internal/logging"
)

// maxEditorConnections bounds concurrent editor plug-in connections. Each
// accepted connection gets its own read loop; this cap replaces an
// unbounded thread-per-connection model.
const maxEditorConnections = 16

// Server accepts framed JSON-RPC connections from editor plug-ins.
type Server struct {
	svc     *Service
	log     logging.Logger
	handler jsonrpc2.Handler

	mu     sync.Mutex
	ln     net.Listener
	conns  map[*jsonrpc2.Conn]struct{}
	closed bool
}

func NewServer(svc *Service, log logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	s := &Server{
		svc:   svc,
		log:   log.WithComponent("rpc"),
		conns: make(map[*jsonrpc2.Conn]struct{}),
	}
	// Editors interleave independent calls on one connection (renders
	// while a stop is pending), so requests must not serialize.
	s.handler = jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(s.handle))
	return s
}

// Serve accepts connections on ln until Close. The returned error is nil
// on orderly shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = netutil.LimitListener(ln, maxEditorConnections)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rpc accept: %w", err)
		}

		stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.VarintObjectCodec{})
		conn := jsonrpc2.NewConn(ctx, stream, s.handler)
		s.track(conn)
		go func() {
			<-conn.DisconnectNotify()
			s.untrack(conn)
		}()
	}
}

// Close stops accepting and drops every editor connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	conns := make([]*jsonrpc2.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
}

func (s *Server) track(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// handle dispatches one request. Service-level failures travel inside the
// result strings; jsonrpc2 errors are reserved for protocol misuse.
func (s *Server) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case MethodGetClient:
		var p GetClientParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		return s.svc.GetClient(ctx, p.Location), nil

	case MethodStartRender:
		var p StartRenderParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		return s.svc.StartRender(ctx, p.Text, p.Path, p.ID, p.IsDirty), nil

	case MethodStopClient:
		var p StopClientParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		return s.svc.StopClient(ctx, p.ID), nil

	case MethodPing:
		return s.svc.Ping(ctx), nil

	default:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %q", req.Method),
		}
	}
}

func unmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return errors.New("missing params")
	}
	return json.Unmarshal(*req.Params, v)
}

func invalidParams(err error) *jsonrpc2.Error {
	return &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: err.Error(),
	}
}
