// Package manager coordinates render work across viewer sessions: a
// registry of clients, a shared job queue, and a pool of render workers.
//
// Scheduling follows a single-dequeue discipline. A client appears in the
// job queue at most once; while its render is in flight, newer submissions
// only overwrite the pending slot. The worker re-checks that slot after
// each render, so every submission is either rendered or superseded by a
// newer one, and no two workers ever render the same client concurrently.
package manager

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codechat-live/codechat-server/internal/cerr"
	"github.com/codechat-live/codechat-server/internal/config"
	"github.com/codechat-live/codechat-server/internal/logging"
)

// ClientID identifies one viewer session. Positive ids are allocated by
// the server, monotonically from zero. Negative ids may be pre-declared by
// editors and are created on first use.
type ClientID int

// Lookup classifies a GetRenderResults match.
type Lookup int

const (
	// LookupMiss means the path is not the latest render; the caller may
	// fall back to static file serving.
	LookupMiss Lookup = iota
	// LookupInline means the render produced in-band HTML, returned
	// directly.
	LookupInline
	// LookupOnDisk means the render wrote a file; the returned string is
	// its filesystem path.
	LookupOnDisk
)

// pendingRender is the single-slot overwrite buffer holding the next
// render input for a client.
type pendingRender struct {
	editorText string
	filePath   string
	isDirty    bool
}

// lastRender is the most recent completed render for a client.
type lastRender struct {
	renderedPath string
	projectPath  string
	html         string
	htmlInline   bool
	editorText   string
}

// clientState is one viewer session. Every field except the mailbox is
// guarded by the manager mutex; the mailbox synchronizes itself.
type clientState struct {
	id      ClientID
	mailbox *Fifo[Event]

	pending         pendingRender
	inJobQueue      bool
	needsProcessing bool
	deleting        bool

	last lastRender
}

type job struct {
	id   ClientID
	stop bool
}

// Options configures a RenderManager.
type Options struct {
	// Workers is the size of the render pool. Zero means
	// config.DefaultWorkers().
	Workers int
	// ShutdownFallback is how long a viewer has to acknowledge a shutdown
	// command before its client is deleted anyway. Zero means one second.
	ShutdownFallback time.Duration
	Log              logging.Logger
}

// RenderManager owns the client registry, the job queue and the render
// workers. Every method is safe to call from any goroutine, and none of
// them blocks on render work.
type RenderManager struct {
	log              logging.Logger
	workers          int
	shutdownFallback time.Duration

	jobs *Fifo[job]

	mu           sync.Mutex
	clients      map[ClientID]*clientState
	nextID       ClientID
	shuttingDown bool

	allDeleted     chan struct{}
	allDeletedOnce sync.Once

	wg sync.WaitGroup
}

func NewRenderManager(opts Options) *RenderManager {
	if opts.Workers <= 0 {
		opts.Workers = config.DefaultWorkers()
	}
	if opts.ShutdownFallback <= 0 {
		opts.ShutdownFallback = time.Second
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	return &RenderManager{
		log:              opts.Log.WithComponent("manager"),
		workers:          opts.Workers,
		shutdownFallback: opts.ShutdownFallback,
		jobs:             NewFifo[job](),
		clients:          make(map[ClientID]*clientState),
		allDeleted:       make(chan struct{}),
	}
}

// Start launches the render workers. Cancel ctx only to abandon them;
// orderly teardown goes through Shutdown.
func (m *RenderManager) Start(ctx context.Context) {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go func(n int) {
			defer m.wg.Done()
			m.worker(ctx, n)
		}(i)
	}
	m.log.Debug(ctx, "render workers started", "workers", m.workers)
}

// CreateClient allocates the next server id.
func (m *RenderManager) CreateClient() (ClientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return -1, cerr.ErrShuttingDown
	}
	id := m.nextID
	m.nextID++
	m.addClientLocked(id)
	return id, nil
}

// AdoptClient registers an editor-declared id.
func (m *RenderManager) AdoptClient(id ClientID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return cerr.ErrShuttingDown
	}
	if _, ok := m.clients[id]; ok {
		return cerr.ErrDuplicateID
	}
	m.addClientLocked(id)
	return nil
}

func (m *RenderManager) addClientLocked(id ClientID) {
	m.clients[id] = &clientState{id: id, mailbox: NewFifo[Event]()}
	m.log.Debug(context.Background(), "created client", "client_id", int(id))
}

// DeleteClient marks id for removal and hands the tombstone to the worker
// pool, which erases the entry and closes the mailbox. It reports false
// for unknown or already-deleting ids, making repeated deletes harmless.
func (m *RenderManager) DeleteClient(id ClientID) bool {
	m.mu.Lock()
	cs, ok := m.clients[id]
	if !ok || cs.deleting {
		m.mu.Unlock()
		return false
	}
	cs.deleting = true
	enqueue := !cs.inJobQueue
	if enqueue {
		cs.inJobQueue = true
	}
	m.mu.Unlock()

	if enqueue {
		m.jobs.Push(job{id: id})
	}
	return true
}

// StartRender submits editor text for rendering. The pending slot is
// overwritten unconditionally: while a render is in flight, later
// submissions supersede each other and only the newest is rendered next.
// It reports false when the id is unknown or being deleted.
func (m *RenderManager) StartRender(text, path string, id ClientID, isDirty bool) bool {
	m.mu.Lock()
	cs, ok := m.clients[id]
	if !ok || cs.deleting {
		m.mu.Unlock()
		return false
	}
	cs.pending = pendingRender{editorText: text, filePath: path, isDirty: isDirty}
	cs.needsProcessing = true
	enqueue := !cs.inJobQueue
	if enqueue {
		cs.inJobQueue = true
	}
	m.mu.Unlock()

	if enqueue {
		m.jobs.Push(job{id: id})
	}
	return true
}

// GetQueue returns the client's mailbox, nil for unknown ids. Deleting
// clients still expose their mailbox so a viewer can drain the final
// shutdown command.
func (m *RenderManager) GetQueue(id ClientID) *Fifo[Event] {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.clients[id]
	if !ok {
		return nil
	}
	return cs.mailbox
}

// GetRenderResults resolves a viewer's request path against the client's
// latest render. On LookupInline the returned string is the HTML body; on
// LookupOnDisk it is the filesystem path to serve; on LookupMiss it is
// empty.
func (m *RenderManager) GetRenderResults(id ClientID, urlPath string) (string, Lookup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.clients[id]
	if !ok || cs.last.renderedPath == "" {
		return "", LookupMiss
	}
	if normalizeURLPath(urlPath) != normalizeURLPath(cs.last.renderedPath) {
		return "", LookupMiss
	}
	if cs.last.htmlInline {
		return cs.last.html, LookupInline
	}
	return cs.last.renderedPath, LookupOnDisk
}

// LastProjectPath reports the project directory of the client's most
// recent render, empty for single-file renders and unknown ids.
func (m *RenderManager) LastProjectPath(id ClientID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.clients[id]; ok {
		return cs.last.projectPath
	}
	return ""
}

// ClientCount reports the number of registered clients, deleting ones
// included.
func (m *RenderManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// ShuttingDown reports whether service-wide shutdown has been requested.
func (m *RenderManager) ShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shuttingDown
}

// ShutdownClient starts the per-client teardown: a shutdown command goes
// on the mailbox for the viewer to acknowledge, and a fallback timer
// deletes the client in case the viewer never drains it.
func (m *RenderManager) ShutdownClient(id ClientID) bool {
	m.mu.Lock()
	cs, ok := m.clients[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	cs.mailbox.Push(Event{Kind: EventCommand, Text: CommandShutdown})
	time.AfterFunc(m.shutdownFallback, func() {
		if m.DeleteClient(id) {
			m.log.Debug(context.Background(),
				"viewer never acknowledged shutdown, deleting client", "client_id", int(id))
		}
	})
	return true
}

// Shutdown drains every client, waits for the registry to empty, then
// stops the workers. It blocks until the choreography completes or ctx is
// canceled.
func (m *RenderManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	ids := make([]ClientID, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	m.log.Info(ctx, "shutting down", "clients", len(ids))
	if len(ids) == 0 {
		m.signalAllDeleted()
	}
	for _, id := range ids {
		m.ShutdownClient(id)
	}

	select {
	case <-m.allDeleted:
	case <-ctx.Done():
		return ctx.Err()
	}

	// One sentinel per worker; each worker exits on the first one it sees.
	for i := 0; i < m.workers; i++ {
		m.jobs.Push(job{stop: true})
	}
	m.wg.Wait()
	m.jobs.Close()
	m.log.Info(ctx, "render workers stopped")
	return nil
}

func (m *RenderManager) signalAllDeleted() {
	m.allDeletedOnce.Do(func() { close(m.allDeleted) })
}

// normalizeURLPath maps a filesystem path or a route suffix to the
// slash-prefixed POSIX form used for comparisons.
func normalizeURLPath(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// pathToURL renders a filesystem path as the percent-encoded URL path sent
// in url events.
func pathToURL(p string) string {
	u := url.URL{Path: normalizeURLPath(p)}
	return u.EscapedPath()
}
