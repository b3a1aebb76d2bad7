// Package server runs the viewer-facing side of the CodeChat service: the
// HTTP listener serving the viewer page and rendered output, the WebSocket
// listener pushing render events, and the editor RPC listener. It owns the
// startup and drain choreography across all three.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codechat-live/codechat-server/internal/cerr"
	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/logging"
	"github.com/codechat-live/codechat-server/internal/manager"
	"github.com/codechat-live/codechat-server/internal/rpc"
)

// ReadyMarker is printed to stderr once all three listeners accept
// connections. Editor plug-ins and the start command scan for the second
// line, so the text is load-bearing.
const ReadyMarker = "The CodeChat Server is ready.\nCODECHAT_READY\n"

// httpShutdownTimeout bounds the wait for in-flight HTTP requests during
// drain. Client drain itself is unbounded; see RenderManager.Shutdown.
const httpShutdownTimeout = 5 * time.Second

// Options configures a Server. Config and Manager are required.
type Options struct {
	Config  *config.Config
	Env     config.Environment
	Manager *manager.RenderManager
	Log     logging.Logger

	// Stderr receives the lifecycle markers (ready, ports in use).
	// Defaults to os.Stderr.
	Stderr io.Writer
}

// Server ties the three listeners to one RenderManager.
type Server struct {
	cfg            *config.Config
	env            config.Environment
	log            logging.Logger
	manager        *manager.RenderManager
	rpc            *rpc.Server
	stderr         io.Writer
	originPatterns []string
}

func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	svc := rpc.NewService(rpc.ServiceOptions{
		Manager: opts.Manager,
		Env:     opts.Env,
		Log:     log,
	})

	return &Server{
		cfg:            opts.Config,
		env:            opts.Env,
		log:            log.WithComponent("server"),
		manager:        opts.Manager,
		rpc:            rpc.NewServer(svc, log),
		stderr:         stderr,
		originPatterns: originPatterns(opts.Config, opts.Env),
	}
}

// originPatterns lists the Origin hosts viewers may connect from. The
// viewer page is served on the HTTP port, so browser origins carry that
// port, not the WebSocket one. Non-browser clients send no Origin header
// and are always accepted.
func originPatterns(cfg *config.Config, env config.Environment) []string {
	patterns := []string{
		fmt.Sprintf("127.0.0.1:%d", config.HTTPPort),
		fmt.Sprintf("localhost:%d", config.HTTPPort),
	}
	if cfg != nil && cfg.Insecure {
		patterns = append(patterns, fmt.Sprintf("*:%d", config.HTTPPort))
	}
	switch env.Kind {
	case config.EnvCodespaces:
		patterns = append(patterns,
			fmt.Sprintf("%s-%d.%s", env.CodespaceName, config.HTTPPort, env.ForwardingDomain))
	case config.EnvCoCalc:
		patterns = append(patterns, "cocalc.com")
	}
	return patterns
}

// Run binds the three listeners, starts the render workers, announces
// readiness, and serves until ctx is cancelled or a listener fails. On
// return every client has been drained and all listeners are closed.
func (s *Server) Run(ctx context.Context) error {
	host := s.cfg.BindHost()

	// Bind everything before announcing readiness; peer tooling polls
	// stderr for the marker and then connects immediately.
	listeners := make(map[int]net.Listener)
	var inUse []string
	for _, port := range []int{config.RPCPort, config.HTTPPort, config.WebSocketPort} {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			s.log.Error(ctx, err, "cannot bind port", "port", port)
			inUse = append(inUse, strconv.Itoa(port))
			continue
		}
		listeners[port] = ln
	}
	if len(inUse) > 0 {
		for _, ln := range listeners {
			ln.Close()
		}
		msg := fmt.Sprintf("port(s) %s in use", strings.Join(inUse, ", "))
		fmt.Fprintf(s.stderr, "Error: %s.\n", msg)
		return cerr.NewFatalError(cerr.CodePortsInUse, msg, nil)
	}

	// Workers outlive ctx: a cancelled ctx starts the drain, and the
	// drain needs live workers to collect deleted clients.
	s.manager.Start(context.WithoutCancel(ctx))

	httpServer := &http.Server{
		Handler:           s.viewerHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	wsServer := &http.Server{
		Handler: http.HandlerFunc(s.handleViewerSocket),
	}

	// The RPC listener keeps answering through the drain (editors poll
	// ping to learn the server is stopping); Close ends it afterwards.
	rpcCtx := context.WithoutCancel(ctx)

	serveErrs := make(chan error, 3)
	go func() { serveErrs <- s.rpc.Serve(rpcCtx, listeners[config.RPCPort]) }()
	go func() { serveErrs <- httpServer.Serve(listeners[config.HTTPPort]) }()
	go func() { serveErrs <- wsServer.Serve(listeners[config.WebSocketPort]) }()

	fmt.Fprint(s.stderr, ReadyMarker)
	s.log.Info(ctx, "serving",
		"host", host,
		"rpc_port", config.RPCPort,
		"http_port", config.HTTPPort,
		"websocket_port", config.WebSocketPort,
		"workers", s.cfg.Workers,
	)

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info(ctx, "shutdown requested")
	case err := <-serveErrs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
			s.log.Error(ctx, err, "listener failed; draining")
		}
	}

	// Drain: every client gets a shutdown command, the fallback timers
	// delete unresponsive ones, and the wait is unbounded from here.
	if err := s.manager.Shutdown(context.WithoutCancel(ctx)); err != nil {
		s.log.Error(ctx, err, "client drain failed")
		if runErr == nil {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	s.rpc.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn(shutdownCtx, err, "http shutdown incomplete")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn(shutdownCtx, err, "websocket shutdown incomplete")
	}

	s.log.Info(ctx, "stopped")
	return runErr
}
