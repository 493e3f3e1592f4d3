package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func event(path string, t ChangeType) ChangeEvent {
	return ChangeEvent{Latest: map[string]ChangeType{path: t}, Timestamp: time.Now()}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want ChangeType
		ok   bool
	}{
		{fsnotify.Write, ChangeTypeModified, true},
		{fsnotify.Create, ChangeTypeModified, true},
		{fsnotify.Remove, ChangeTypeRemoved, true},
		{fsnotify.Rename, ChangeTypeRemoved, true},
		{fsnotify.Chmod, 0, false},
	}

	for _, tt := range tests {
		got, ok := Classify(tt.op)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Classify(%v) = %v, %v; want %v, %v", tt.op, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan ChangeEvent, 10)
	d := NewDebouncer(input, 30*time.Millisecond, time.Second)
	d.Start(ctx)

	input <- event("/tmp/mesh.yaml", ChangeTypeRemoved)
	input <- event("/tmp/mesh.yaml", ChangeTypeModified)
	input <- event("/tmp/mesh.yaml", ChangeTypeModified)

	select {
	case batch := <-d.Output():
		if len(batch.Latest) != 1 || batch.Latest["/tmp/mesh.yaml"] != ChangeTypeModified {
			t.Errorf("Unexpected batch: %+v", batch.Latest)
		}
		if !NeedsRestart(batch) {
			t.Error("Expected restart for rename-then-write")
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for debounced batch")
	}

	select {
	case batch := <-d.Output():
		t.Errorf("Unexpected second batch: %+v", batch.Latest)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_MaxWaitBoundsLatency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := make(chan ChangeEvent)
	d := NewDebouncer(input, 50*time.Millisecond, 120*time.Millisecond)
	d.Start(ctx)

	// Keep the quiet period from ever expiring
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				select {
				case input <- event("/tmp/mesh.yaml", ChangeTypeModified):
				case <-stop:
					return
				}
			}
		}
	}()
	defer close(stop)

	select {
	case <-d.Output():
	case <-time.After(time.Second):
		t.Fatal("Expected a flush after maxWait despite continuous events")
	}
}

func TestDebouncer_ClosesOutputWhenInputCloses(t *testing.T) {
	input := make(chan ChangeEvent, 1)
	d := NewDebouncer(input, time.Hour, time.Hour)
	d.Start(context.Background())

	input <- event("/tmp/mesh.yaml", ChangeTypeModified)
	close(input)

	batch, ok := <-d.Output()
	if !ok || len(batch.Latest) != 1 {
		t.Fatalf("Expected pending batch flushed on close, got %+v %v", batch, ok)
	}
	if _, ok := <-d.Output(); ok {
		t.Error("Expected output closed")
	}
}

func TestNeedsRestart_RemovedOnly(t *testing.T) {
	if NeedsRestart(event("/tmp/mesh.yaml", ChangeTypeRemoved)) {
		t.Error("Removal alone should not restart")
	}
}

func TestWatchTopology_RestartsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.yaml")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("nodes: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var restarts atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- WatchTopology(ctx, path, func() { restarts.Add(1) })
	}()

	// Give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(other, []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(DefaultQuietPeriod * 2)
	if n := restarts.Load(); n != 0 {
		t.Fatalf("Unrelated file triggered %d restarts", n)
	}

	if err := os.WriteFile(path, []byte("nodes: [{id: 0}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for restarts.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for restart")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WatchTopology returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WatchTopology did not stop after cancel")
	}
}
