//go:build property

package manager

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSchedulingProperties validates the queueing contract against
// arbitrary submission bursts.
func TestSchedulingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234) // For reproducible results
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// Property: however many submissions land before the worker runs, the
	// client occupies at most one queue slot and the snapshot is the
	// newest text.
	properties.Property("bursts coalesce to the latest submission", prop.ForAll(
		func(texts []string) bool {
			m := NewRenderManager(Options{Workers: 1})
			id, err := m.CreateClient()
			if err != nil {
				return false
			}
			for _, text := range texts {
				if !m.StartRender(text, "x.md", id, false) {
					return false
				}
				if m.jobs.Len() > 1 {
					return false
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			j, ok := m.jobs.Pop(ctx)
			if !ok || j.stop {
				return false
			}
			m.processClient(context.Background(), j.id)

			html, lookup := m.GetRenderResults(id, "/x.md")
			return lookup == LookupInline &&
				strings.Contains(html, texts[len(texts)-1]) &&
				m.jobs.Len() == 0
		},
		gen.SliceOf(gen.Identifier()).SuchThat(func(v []string) bool { return len(v) > 0 }),
	))

	// Property: every render cycle produces exactly one errors event
	// followed by exactly one url event.
	properties.Property("each cycle emits errors then url", prop.ForAll(
		func(text string) bool {
			m := NewRenderManager(Options{Workers: 1})
			id, err := m.CreateClient()
			if err != nil {
				return false
			}
			q := m.GetQueue(id)
			if !m.StartRender(text, "doc.md", id, false) {
				return false
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			j, ok := m.jobs.Pop(ctx)
			if !ok {
				return false
			}
			m.processClient(context.Background(), j.id)

			if q.Len() != 2 {
				return false
			}
			first, _ := q.Pop(ctx)
			second, _ := q.Pop(ctx)
			return first.Kind == EventErrors && second.Kind == EventURL
		},
		gen.Identifier(),
	))

	// Property: the queue preserves insertion order for any payload
	// sequence.
	properties.Property("fifo order is insertion order", prop.ForAll(
		func(values []int) bool {
			q := NewFifo[int]()
			for _, v := range values {
				q.Push(v)
			}
			q.Close()
			ctx := context.Background()
			for _, want := range values {
				got, ok := q.Pop(ctx)
				if !ok || got != want {
					return false
				}
			}
			_, ok := q.Pop(ctx)
			return !ok
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
