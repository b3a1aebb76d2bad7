package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchRecorder collects handler deliveries from the debounce goroutine.
type batchRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *batchRecorder) handler(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *batchRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, batch := range r.batches {
		out = append(out, batch...)
	}
	return out
}

func (r *batchRecorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.batches)
}

func startWatcher(t *testing.T, opts Options, rec *batchRecorder) {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 20 * time.Millisecond
	}
	w, err := New(opts, rec.handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestWatcherDeliversWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &batchRecorder{}
	startWatcher(t, Options{Paths: []string{dir}, Patterns: []string{"*.md"}}, rec)

	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# hi\n"), 0o644))

	require.Eventually(t, func() bool {
		return slices.Contains(rec.all(), path)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherFiltersByPattern(t *testing.T) {
	dir := t.TempDir()
	rec := &batchRecorder{}
	startWatcher(t, Options{Paths: []string{dir}, Patterns: []string{"*.md"}}, rec)

	skipped := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(skipped, []byte("skip"), 0o644))
	wanted := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(wanted, []byte("keep"), 0o644))

	require.Eventually(t, func() bool {
		return slices.Contains(rec.all(), wanted)
	}, 3*time.Second, 10*time.Millisecond)
	assert.NotContains(t, rec.all(), skipped)
}

func TestWatcherWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	rec := &batchRecorder{}
	startWatcher(t, Options{Paths: []string{dir}, Patterns: []string{"*.md"}}, rec)

	sub := filepath.Join(dir, "chapter")
	require.NoError(t, os.Mkdir(sub, 0o755))
	inner := filepath.Join(sub, "page.md")

	// The directory watch is installed asynchronously, so keep rewriting
	// until a write lands after it.
	require.Eventually(t, func() bool {
		os.WriteFile(inner, []byte("text"), 0o644)
		return slices.Contains(rec.all(), inner)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherBatchesAreSortedAndUnique(t *testing.T) {
	dir := t.TempDir()
	rec := &batchRecorder{}
	startWatcher(t, Options{Paths: []string{dir}, Debounce: 100 * time.Millisecond}, rec)

	b := filepath.Join(dir, "b.md")
	a := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("bb"), 0o644))

	require.Eventually(t, func() bool {
		all := rec.all()
		return slices.Contains(all, a) && slices.Contains(all, b)
	}, 3*time.Second, 10*time.Millisecond)

	for _, batch := range rec.snapshot() {
		assert.True(t, slices.IsSorted(batch), "batch %v is not sorted", batch)
		assert.Equal(t, len(batch), len(slices.Compact(slices.Clone(batch))),
			"batch %v has duplicates", batch)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		ignore   []string
		path     string
		want     bool
	}{
		{"no patterns matches everything", nil, nil, "/tmp/any.file", true},
		{"base name pattern", []string{"*.md"}, nil, "/docs/readme.md", true},
		{"base name pattern misses", []string{"*.md"}, nil, "/docs/readme.rst", false},
		{"ignore wins over pattern", []string{"*"}, []string{"*.tmp"}, "/docs/scratch.tmp", false},
		{"slash pattern matches full path", []string{"**/docs/**"}, nil, "/home/me/docs/a.md", true},
		{"slash ignore prunes build output", nil, []string{"**/_build/**"}, "/proj/_build/out.html", false},
		{"second pattern matches", []string{"*.rst", "*.md"}, nil, "/d/x.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Watcher{opts: Options{Patterns: tt.patterns, IgnorePatterns: tt.ignore}}
			assert.Equal(t, tt.want, w.Matches(tt.path))
		})
	}
}
