package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestNotifierSignalsNewJob(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := New(ctx, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer n.Close()

	if err := os.WriteFile(filepath.Join(dir, "cyl.0.abc.yml"), []byte("id: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-n.C():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestNewMissingDir(t *testing.T) {
	if _, err := New(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/q/a.yml", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "/q/a.yml", Op: fsnotify.Rename}, true},
		{fsnotify.Event{Name: "/q/a.yml", Op: fsnotify.Remove}, false},
		{fsnotify.Event{Name: "/q/a.yml.lock", Op: fsnotify.Create}, false},
		{fsnotify.Event{Name: "/q/.a.yml.tmp", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/q/a.yml", Op: fsnotify.Chmod}, false},
	}
	for _, tt := range tests {
		if got := relevant(tt.event); got != tt.want {
			t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
		}
	}
}

func TestNotifyCoalesces(t *testing.T) {
	n := &Notifier{c: make(chan struct{}, 1)}
	n.notify()
	n.notify()
	n.notify()

	<-n.C()
	select {
	case <-n.C():
		t.Error("expected notifications to be coalesced")
	default:
	}
}
