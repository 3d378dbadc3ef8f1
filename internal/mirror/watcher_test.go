package mirror

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watchDir(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	// macos is funny =)
	// tmpdir lives in /var/folders but it's actually symlink to /private/var/folders
	tempDir, err := filepath.EvalSymlinks(tempDir)
	require.NoError(t, err, "failed to evaluate symlinks")
	return tempDir
}

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w := NewWatcher(dir)
	w.SetDebounceTimeout(50 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()), "failed to start watcher")
	t.Cleanup(w.Stop)
	return w
}

func waitReady(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for watcher ready")
	}
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, w *Watcher, within time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		require.FailNowf(t, "unexpected event", "%s %s", ev.Kind, ev.Path)
	case <-time.After(within):
	}
}

func TestNewWatcher(t *testing.T) {
	w := NewWatcher("/test/path")

	assert.Equal(t, "/test/path", w.watchDir)
	assert.Nil(t, w.events)
	assert.Nil(t, w.rawEvents)
	assert.NotNil(t, w.known)
	assert.NotNil(t, w.done)
	assert.NotNil(t, w.ready)
}

func TestWatcherInitialScan(t *testing.T) {
	dir := watchDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("b"), 0o644))

	w := startWatcher(t, dir)
	waitReady(t, w)

	got := map[string]EventKind{}
	for i := 0; i < 2; i++ {
		ev := nextEvent(t, w)
		got[ev.Path] = ev.Kind
	}

	assert.Equal(t, EventAdded, got[filepath.Join(dir, "existing.txt")])
	assert.Equal(t, EventAdded, got[filepath.Join(dir, "sub", "nested.txt")])
}

func TestWatcherScanHonorsFilter(t *testing.T) {
	dir := watchDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("s"), 0o644))

	w := NewWatcher(dir)
	w.SetDebounceTimeout(50 * time.Millisecond)
	w.FilterPaths(func(path string) bool {
		return strings.HasPrefix(filepath.Base(path), "skip")
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	waitReady(t, w)

	ev := nextEvent(t, w)
	assert.Equal(t, filepath.Join(dir, "keep.txt"), ev.Path)
	expectNoEvent(t, w, 300*time.Millisecond)
}

func TestWatcherCreateEmitsAdded(t *testing.T) {
	dir := watchDir(t)
	w := startWatcher(t, dir)
	waitReady(t, w)

	testFile := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("hello world"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Kind)
	assert.Equal(t, testFile, ev.Path)
}

func TestWatcherWriteToKnownEmitsModified(t *testing.T) {
	dir := watchDir(t)
	w := startWatcher(t, dir)
	waitReady(t, w)

	testFile := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("v1"), 0o644))

	first := nextEvent(t, w)
	require.Equal(t, EventAdded, first.Kind)

	// past the debounce window, a second write is a separate event
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(testFile, []byte("v2"), 0o644))

	second := nextEvent(t, w)
	assert.Equal(t, EventModified, second.Kind)
	assert.Equal(t, testFile, second.Path)
}

func TestWatcherScannedFileWriteIsModified(t *testing.T) {
	dir := watchDir(t)
	testFile := filepath.Join(dir, "preexisting.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("v1"), 0o644))

	w := startWatcher(t, dir)
	waitReady(t, w)

	first := nextEvent(t, w)
	require.Equal(t, EventAdded, first.Kind)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(testFile, []byte("v2"), 0o644))

	second := nextEvent(t, w)
	assert.Equal(t, EventModified, second.Kind)
}

func TestWatcherRemoveThenRecreateIsAdded(t *testing.T) {
	dir := watchDir(t)
	w := startWatcher(t, dir)
	waitReady(t, w)

	testFile := filepath.Join(dir, "cycle.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("v1"), 0o644))
	require.Equal(t, EventAdded, nextEvent(t, w).Kind)

	require.NoError(t, os.Remove(testFile))
	// removals are forgotten, not reported
	expectNoEvent(t, w, 300*time.Millisecond)

	require.NoError(t, os.WriteFile(testFile, []byte("v2"), 0o644))
	ev := nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Kind, "a re-created path starts over as added")
}

func TestWatcherDirectoryCreateNotReported(t *testing.T) {
	dir := watchDir(t)
	w := startWatcher(t, dir)
	waitReady(t, w)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "newdir"), 0o755))
	expectNoEvent(t, w, 300*time.Millisecond)

	// but a file inside it is
	testFile := filepath.Join(dir, "newdir", "inner.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("x"), 0o644))
	ev := nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Kind)
	assert.Equal(t, testFile, ev.Path)
}

func TestWatcherStopClosesEvents(t *testing.T) {
	dir := watchDir(t)
	w := NewWatcher(dir)
	w.SetDebounceTimeout(50 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	waitReady(t, w)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		assert.Fail(t, "Stop() took too long, goroutines may not have shut down properly")
	}

	// events channel drains and closes after Stop()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				return
			}
		case <-deadline:
			assert.Fail(t, "events channel should be closed after Stop()")
			return
		}
	}
}
