package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func start(t *testing.T, dir string, opts Options) (builds <-chan struct{}, stop func()) {
	t.Helper()
	ch := make(chan struct{}, 16)
	ready := make(chan struct{})
	opts.Ready = func() { close(ready) }
	if opts.Debounce == 0 {
		opts.Debounce = 20 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{dir}, func(context.Context) error {
			ch <- struct{}{}
			return nil
		}, opts)
	}()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return ch, func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}
}

func waitBuild(t *testing.T, builds <-chan struct{}) {
	t.Helper()
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after change")
	}
}

func TestRunRebuildsOnChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	builds, stop := start(t, dir, Options{Extensions: []string{".erd"}})
	defer stop()

	waitBuild(t, builds) // initial build

	if err := os.WriteFile(filepath.Join(dir, "a.erd"), []byte(":A\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitBuild(t, builds)

	// ignored extension
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-builds:
		t.Fatal("rebuilt for an ignored file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRunWatchesNewDirectories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	builds, stop := start(t, dir, Options{Extensions: []string{".erd"}})
	defer stop()
	waitBuild(t, builds)

	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// give the loop a moment to add the new directory
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(sub, "b.erd"), []byte(":B\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitBuild(t, builds)
}

func TestRunDebouncesBursts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	builds, stop := start(t, dir, Options{Debounce: 300 * time.Millisecond})
	defer stop()
	waitBuild(t, builds)

	for i := range 5 {
		name := filepath.Join(dir, "f.erd")
		if err := os.WriteFile(name, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	waitBuild(t, builds)
	select {
	case <-builds:
		t.Fatal("burst caused more than one rebuild")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRunBuildErrorsKeepWatching(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, []string{dir}, func(context.Context) error {
			calls.Add(1)
			return errors.New("broken schema")
		}, Options{Debounce: 10 * time.Millisecond, Ready: func() { close(ready) }})
	}()
	<-ready
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v, want nil after a failing build", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("builds = %d, want 1", calls.Load())
	}
}

func TestRunMissingDirectory(t *testing.T) {
	t.Parallel()
	err := Run(context.Background(), []string{filepath.Join(t.TempDir(), "missing")},
		func(context.Context) error { return nil }, Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestRelevant(t *testing.T) {
	t.Parallel()
	exts := []string{".erd", ".toml"}
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/p/a.erd", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/p/erd-catalyst.toml", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/p/a.erd", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "/p/a.erd", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/p/a.sql", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/p/.a.erd.swp", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/p/a.erd~", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		if got := relevant(tt.event, exts); got != tt.want {
			t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
		}
	}
	if !relevant(fsnotify.Event{Name: "x.any", Op: fsnotify.Write}, nil) {
		t.Error("no extension filter should accept every file")
	}
}
