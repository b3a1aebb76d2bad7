package manager

import (
	"context"

	"github.com/codechat-live/codechat-server/internal/renderer"
)

func (m *RenderManager) worker(ctx context.Context, n int) {
	log := m.log.With("worker", n)
	for {
		j, ok := m.jobs.Pop(ctx)
		if !ok || j.stop {
			log.Debug(ctx, "render worker stopping")
			return
		}
		m.processClient(ctx, j.id)
	}
}

// processClient performs one worker pass for a dequeued client: either the
// tombstone cleanup or one render cycle.
func (m *RenderManager) processClient(ctx context.Context, id ClientID) {
	m.mu.Lock()
	cs, ok := m.clients[id]
	if !ok {
		m.mu.Unlock()
		m.log.Error(ctx, nil, "dequeued an unknown client", "client_id", int(id))
		return
	}

	if cs.deleting {
		delete(m.clients, id)
		remaining := len(m.clients)
		shuttingDown := m.shuttingDown
		m.mu.Unlock()

		cs.mailbox.Close()
		m.log.Info(ctx, "deleted client", "client_id", int(id))
		if remaining == 0 && shuttingDown {
			m.signalAllDeleted()
		}
		return
	}

	if !cs.inJobQueue || !cs.needsProcessing {
		m.log.Warn(ctx, nil, "dequeued client in an inconsistent state",
			"client_id", int(id),
			"in_job_queue", cs.inJobQueue,
			"needs_processing", cs.needsProcessing)
	}
	// Clear the flag before snapshotting: a submission landing after this
	// point re-sets it and is picked up by the re-enqueue check below.
	cs.needsProcessing = false
	pending := cs.pending
	m.mu.Unlock()

	res := renderer.RenderFile(ctx, pending.editorText, pending.filePath, func(chunk string) {
		cs.mailbox.Push(Event{Kind: EventBuild, Text: chunk})
	}, pending.isDirty)

	if res.Performed {
		m.mu.Lock()
		cs.last = lastRender{
			renderedPath: res.RenderedPath,
			projectPath:  res.ProjectPath,
			html:         res.HTML,
			htmlInline:   res.HTMLInline,
			editorText:   pending.editorText,
		}
		m.mu.Unlock()

		// The state update precedes the url event, so a viewer reacting to
		// the event always sees this render's results.
		cs.mailbox.Push(Event{Kind: EventErrors, Text: res.ErrText})
		cs.mailbox.Push(Event{Kind: EventURL, Text: urlEventText(res.RenderedPath)})
	}

	m.mu.Lock()
	requeue := cs.needsProcessing || cs.deleting
	if !requeue {
		cs.inJobQueue = false
	}
	m.mu.Unlock()
	if requeue {
		m.jobs.Push(job{id: id})
	}
}

func urlEventText(renderedPath string) string {
	if renderedPath == "" {
		return ""
	}
	return pathToURL(renderedPath)
}
