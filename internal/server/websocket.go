package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/codechat-live/codechat-server/internal/logging"
	"github.com/codechat-live/codechat-server/internal/manager"
	"github.com/codechat-live/codechat-server/internal/project"
)

const (
	// Time allowed for the first frame carrying the client id.
	handshakeTimeout = 10 * time.Second

	// Time allowed to write one event to the viewer.
	writeTimeout = 10 * time.Second
)

// handleViewerSocket owns one viewer connection for its whole life. The
// first inbound frame is the client id; afterwards the mailbox drains to
// the socket while editor-bound frames flow back. Either side failing
// tears the connection down; the viewer reconnects and the mailbox picks
// up where it left off.
func (s *Server) handleViewerSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.log.Warn(r.Context(), err, "websocket accept failed", "remote", r.RemoteAddr)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	id, q, label := s.identifyViewer(ctx, conn)
	if q == nil {
		event := manager.Event{
			Kind: manager.EventCommand,
			Text: fmt.Sprintf("error: unknown client %s.", label),
		}
		if err := writeEvent(ctx, conn, event); err != nil {
			s.log.Debug(ctx, "cannot report unknown client", "remote", r.RemoteAddr)
		}
		conn.Close(websocket.StatusPolicyViolation, "unknown client")
		return
	}

	log := s.log.With("client_id", int(id))
	log.Debug(ctx, "viewer connected", "remote", r.RemoteAddr)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.readEditorReturns(ctx, conn, id, log)
		// A dead socket must also stop the mailbox drain; the viewer
		// will reconnect with a fresh connection.
		cancel()
	}()

	s.drainMailbox(ctx, conn, id, q, log)

	cancel()
	<-readerDone
	log.Debug(context.Background(), "viewer disconnected")
}

// identifyViewer reads the first frame and resolves it to a mailbox. The
// label reports what the viewer actually sent when the id is unusable.
func (s *Server) identifyViewer(ctx context.Context, conn *websocket.Conn) (manager.ClientID, *manager.Fifo[manager.Event], string) {
	readCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	_, data, err := conn.Read(readCtx)
	if err != nil {
		return 0, nil, fmt.Sprintf("<no id: %v>", err)
	}

	var id int
	if err := json.Unmarshal(data, &id); err != nil {
		return 0, nil, fmt.Sprintf("<invalid id %q>", data)
	}

	cid := manager.ClientID(id)
	return cid, s.manager.GetQueue(cid), strconv.Itoa(id)
}

// drainMailbox forwards queued events to the viewer until the mailbox
// closes, the write fails, or the terminal shutdown command goes out.
func (s *Server) drainMailbox(ctx context.Context, conn *websocket.Conn, id manager.ClientID, q *manager.Fifo[manager.Event], log logging.Logger) {
	for {
		event, ok := q.Pop(ctx)
		if !ok {
			// Mailbox closed: the client was removed underneath us.
			return
		}

		if err := writeEvent(ctx, conn, event); err != nil {
			// The event is consumed and lost; the next render cycle
			// repopulates the panes after the viewer reconnects.
			log.Debug(ctx, "viewer write failed", "kind", int(event.Kind))
			return
		}

		if event.Kind == manager.EventCommand && event.Text == manager.CommandShutdown {
			if pending := q.Len(); pending > 0 {
				log.Warn(ctx, nil, "client shut down with pending events", "pending", pending)
			}
			s.manager.DeleteClient(id)
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event manager.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}

// readEditorReturns consumes editor-bound frames posted by the rendered
// page: saves, error navigation, and anything future viewers add.
func (s *Server) readEditorReturns(ctx context.Context, conn *websocket.Conn, id manager.ClientID, log logging.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.dispatchEditorReturn(ctx, id, data, log)
	}
}

// dispatchEditorReturn handles one [msg, data] frame from the viewer.
func (s *Server) dispatchEditorReturn(ctx context.Context, id manager.ClientID, data []byte, log logging.Logger) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) != 2 {
		log.Warn(ctx, err, "malformed viewer frame")
		return
	}
	var msg string
	if err := json.Unmarshal(frame[0], &msg); err != nil {
		log.Warn(ctx, err, "viewer frame tag is not a string")
		return
	}

	switch msg {
	case "save_file":
		var req struct {
			XMLNode      string `json:"xml_node"`
			FileContents string `json:"file_contents"`
		}
		if err := json.Unmarshal(frame[1], &req); err != nil {
			log.Warn(ctx, err, "malformed save_file frame")
			return
		}
		s.saveProjectFile(ctx, id, req.XMLNode, req.FileContents, log)
	case "navigate_to_error":
		var req struct {
			Line     int    `json:"line"`
			FilePath string `json:"file_path"`
		}
		if err := json.Unmarshal(frame[1], &req); err != nil {
			log.Warn(ctx, err, "malformed navigate_to_error frame")
			return
		}
		// There is no editor back-channel yet; record the request so the
		// user at least sees where the error points.
		log.Info(ctx, "navigate_to_error", "file_path", req.FilePath, "line", req.Line)
	default:
		log.Warn(ctx, nil, "unknown viewer message", "msg", msg)
	}
}

// saveProjectFile applies a viewer edit to the project source that
// produced the edited output. Every failure abandons the edit; the source
// tree is never half-written.
func (s *Server) saveProjectFile(ctx context.Context, id manager.ClientID, xmlNode, contents string, log logging.Logger) {
	projectPath := s.manager.LastProjectPath(id)
	if projectPath == "" {
		log.Warn(ctx, nil, "save_file outside a project render", "xml_node", xmlNode)
		return
	}
	configPath := filepath.Join(projectPath, project.ConfigFileName)
	if err := project.SaveFile(configPath, xmlNode, contents); err != nil {
		log.Error(ctx, err, "save_file failed", "xml_node", xmlNode)
		return
	}
	log.Info(ctx, "saved project source", "xml_node", xmlNode)
}
