package valuez

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestChannelWatcher_ForwardsValues(t *testing.T) {
	source := make(chan []byte, 3)
	source <- []byte("one")
	source <- []byte("two")
	source <- []byte("three")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := NewChannelWatcher(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	for i, exp := range []string{"one", "two", "three"} {
		select {
		case v := <-out:
			if string(v) != exp {
				t.Errorf("expected %s, got %s", exp, v)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for value %d", i)
		}
	}
}

func TestChannelWatcher_ClosesOnSourceClose(t *testing.T) {
	source := make(chan []byte, 1)
	source <- []byte("value")
	close(source)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := NewChannelWatcher(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	<-out

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for close")
	}
}

func TestChannelWatcher_ClosesOnContextCancel(t *testing.T) {
	source := make(chan []byte)
	ctx, cancel := context.WithCancel(context.Background())

	out, err := NewChannelWatcher(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for close")
	}
}

func TestSyncChannelWatcher_ReturnsSource(t *testing.T) {
	source := make(chan []byte, 1)
	source <- []byte("direct")

	out, err := NewSyncChannelWatcher(source).Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if v := <-out; string(v) != "direct" {
		t.Errorf("expected direct, got %s", v)
	}
}

func TestFileWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"port": 1}`), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case v := <-out:
		if string(v) != `{"port": 1}` {
			t.Errorf("unexpected initial document %s", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for initial document")
	}

	if err := os.WriteFile(path, []byte(`{"port": 2}`), 0o600); err != nil {
		t.Fatalf("failed to rewrite file: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-out:
			if string(v) == `{"port": 2}` {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for update")
		}
	}
}

func TestFileWatcher_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	if _, err := NewFileWatcher(path).Watch(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}
