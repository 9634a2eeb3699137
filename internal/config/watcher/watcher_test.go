package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpWrite, "write"},
		{OpCreate, "create"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"single write", []Operation{OpWrite}, OpWrite},
		{"create then write", []Operation{OpCreate, OpWrite}, OpCreate},
		{"write then remove", []Operation{OpWrite, OpRemove}, OpRemove},
		{"remove then create", []Operation{OpRemove, OpCreate}, OpWrite},
		{"rename then write", []Operation{OpRename, OpWrite}, OpWrite},
		{"write then rename", []Operation{OpWrite, OpRename}, OpRename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pending := make(map[string]Event)
			for _, op := range tt.ops {
				coalesce(pending, Event{Path: "/a.yaml", Op: op})
			}
			require.Len(t, pending, 1)
			assert.Equal(t, tt.want, pending["/a.yaml"].Op)
		})
	}
}

func TestWatcher_Add(t *testing.T) {
	dir := t.TempDir()
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(filepath.Join(dir, "b.yaml"), filepath.Join(dir, "a.yaml")))
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yaml")}, w.Files())

	assert.Error(t, w.Add(filepath.Join(dir, "missing", "c.yaml")))

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Add(filepath.Join(dir, "d.yaml")), ErrClosed)
}

func runWatcher(t *testing.T, w *Watcher) <-chan []Event {
	t.Helper()
	got := make(chan []Event, 16)
	w.OnChange(func(events []Event) { got <- events })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return got
}

func waitEvents(t *testing.T, got <-chan []Event) []Event {
	t.Helper()
	select {
	case events := <-got:
		return events
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
		return nil
	}
}

func TestWatcher_DeliversWatchedFileOnly(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "train.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(target, []byte("a: 1\n"), 0o644))

	w, err := New(WithDebounce(50 * time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Add(target))
	got := runWatcher(t, w)

	require.NoError(t, os.WriteFile(other, []byte("b: 1\n"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("a: 2\n"), 0o644))

	events := waitEvents(t, got)
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, target, e.Path)
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "train.yaml")
	require.NoError(t, os.WriteFile(target, []byte("a: 0\n"), 0o644))

	w, err := New(WithDebounce(200 * time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Add(target))
	got := runWatcher(t, w)

	for i := 1; i <= 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte("a: 1\n"), 0o644))
	}

	events := waitEvents(t, got)
	require.Len(t, events, 1)
	assert.Equal(t, target, events[0].Path)
}

func TestWatcher_DetectsCreate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "later.yaml")

	w, err := New(WithDebounce(0))
	require.NoError(t, err)
	require.NoError(t, w.Add(target))
	got := runWatcher(t, w)

	require.NoError(t, os.WriteFile(target, []byte("a: 1\n"), 0o644))

	events := waitEvents(t, got)
	require.NotEmpty(t, events)
	assert.Equal(t, target, events[0].Path)
	assert.Equal(t, OpCreate, events[0].Op)
}

func TestWatcher_RunStopsOnClose(t *testing.T) {
	w, err := New()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	require.NoError(t, w.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
}
