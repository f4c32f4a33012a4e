package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func run(t *testing.T, w *Watcher, build func() error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, build)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return cancel
}

func waitFor(cond func() bool) bool {
	for i := 0; i < 30; i++ {
		if cond() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cond()
}

func TestWatchTriggersBuild(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.xule")
	os.WriteFile(file, []byte("output r 1"), 0o644)

	w, err := New([]string{dir}, ".xule")
	if err != nil {
		t.Fatal(err)
	}
	var builds atomic.Int32
	run(t, w, func() error { builds.Add(1); return nil })

	os.WriteFile(file, []byte("output r 2"), 0o644)
	if !waitFor(func() bool { return builds.Load() > 0 }) {
		t.Fatal("expected build to be triggered")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, ".xule")
	if err != nil {
		t.Fatal(err)
	}
	var builds atomic.Int32
	run(t, w, func() error { builds.Add(1); return nil })

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	time.Sleep(3 * Settle)
	if n := builds.Load(); n != 0 {
		t.Errorf("expected no build, got %d", n)
	}
}

func TestWatchNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, ".xule")
	if err != nil {
		t.Fatal(err)
	}
	var builds atomic.Int32
	run(t, w, func() error { builds.Add(1); return errors.New("still broken") })

	sub := filepath.Join(dir, "sub")
	os.Mkdir(sub, 0o755)
	time.Sleep(3 * Settle)
	os.WriteFile(filepath.Join(sub, "b.xule"), []byte("output b 1"), 0o644)
	if !waitFor(func() bool { return builds.Load() > 0 }) {
		t.Fatal("expected a change in a new subdirectory to trigger a build")
	}
}

func TestNewMissingDirectory(t *testing.T) {
	if _, err := New([]string{filepath.Join(t.TempDir(), "missing")}, ".xule"); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
