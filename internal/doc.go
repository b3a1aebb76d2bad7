// Package internal contains the core implementation packages for the
// CodeChat Server.
//
// Everything here sits behind Go's internal package boundary: only the
// codechat-server CLI can import it, and nothing in it is public API.
//
// # Package Organization
//
// Packages are split by functional domain:
//
//   - manager: render client registry, job queue, and worker pool
//   - renderer: per-file renderers and project build dispatch
//   - project: project configuration, PreTeXt mapping, and save-file edits
//   - subprocess: external tool execution with incremental output decoding
//   - server: HTTP viewer serving and WebSocket result push
//   - rpc: editor-facing JSON-RPC service over TCP
//   - watcher: file system monitoring with debouncing
//   - config: CLI configuration and hosting environment detection
//   - browser: opening rendered output in the default browser
//   - logging: structured logging built on log/slog
//   - cerr: categorized service errors with operational context
//   - version: build version reporting
//
// # Inter-Package Communication
//
// Boundaries between the packages are deliberate:
//
//   - The manager owns all client state; rpc and server act on it only
//     through its exported operations
//   - Render workers call into renderer, which delegates to project and
//     subprocess for project builds and external tools
//   - The server drains per-client mailboxes owned by the manager and
//     never touches render state directly
//   - Results flow one way: editor RPC -> manager queue -> worker ->
//     mailbox -> WebSocket client
//
// See the individual packages for detailed documentation.
package internal
