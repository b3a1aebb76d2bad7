package manager

// EventKind tags an outbound viewer event. The integer values are part of
// the wire protocol; the viewer page and editor plug-ins switch on them.
type EventKind int

const (
	// EventURL tells the viewer to load the given URL in its output pane.
	EventURL EventKind = iota
	// EventBuild appends a chunk of build output to the build pane.
	EventBuild
	// EventErrors replaces the error pane with the given text.
	EventErrors
	// EventCommand carries control messages: "shutdown" ends the session,
	// and error replies to malformed frames also use this kind.
	EventCommand
)

// Event is one message on a viewer mailbox, serialized verbatim onto the
// WebSocket.
type Event struct {
	Kind EventKind `json:"get_result_type"`
	Text string    `json:"text"`
}

// CommandShutdown is the terminal control message. Once a viewer receives
// it, no further events follow for that client.
const CommandShutdown = "shutdown"
