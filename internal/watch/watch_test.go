package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return w
}

func TestWatcher_ReportsStoreWrites(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "privileged.db")
	require.NoError(t, os.WriteFile(db, nil, 0o644))

	w := startWatcher(t)
	var hits atomic.Int32
	require.NoError(t, w.Add(db, func() { hits.Add(1) }))

	require.NoError(t, os.WriteFile(db+"-wal", []byte("page"), 0o644))
	require.Eventually(t, func() bool { return hits.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "privileged.db")
	other := filepath.Join(dir, "state.db")

	w := startWatcher(t)
	var dbHits atomic.Int32
	require.NoError(t, w.Add(db, func() { dbHits.Add(1) }))

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(db, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return dbHits.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, w.lookup(other))
	assert.NotNil(t, w.lookup(db+"-shm"))
}

func TestWatcher_SharedDirectory(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.db")
	b := filepath.Join(dir, "b.db")

	w := startWatcher(t)
	var aHits, bHits atomic.Int32
	require.NoError(t, w.Add(a, func() { aHits.Add(1) }))
	require.NoError(t, w.Add(b, func() { bHits.Add(1) }))

	require.NoError(t, os.WriteFile(b, []byte("x"), 0o644))
	require.Eventually(t, func() bool { return bHits.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, aHits.Load())
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := startWatcher(t)
	err := w.Add(filepath.Join(t.TempDir(), "missing", "x.db"), func() {})
	assert.Error(t, err)
}
