package testing

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/valuez"
)

func newPoint(t *testing.T) *valuez.Store {
	t.Helper()
	s := valuez.New("point")
	if _, err := s.Property("x", 0, "integer"); err != nil {
		t.Fatalf("Property(x) error = %v", err)
	}
	if _, err := s.Property("y", 0, "integer"); err != nil {
		t.Fatalf("Property(y) error = %v", err)
	}
	return s
}

func TestWaitFor(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		result := WaitFor(t, 100*time.Millisecond, func() bool {
			return true
		})
		if !result {
			t.Error("expected WaitFor to return true")
		}
	})

	t.Run("condition never met", func(t *testing.T) {
		result := WaitFor(t, 50*time.Millisecond, func() bool {
			return false
		})
		if result {
			t.Error("expected WaitFor to return false on timeout")
		}
	})
}

func TestRecorder(t *testing.T) {
	s := newPoint(t)
	r := NewRecorder(t, s)

	if _, err := s.Do("setX", 3); err != nil {
		t.Fatalf("Do(setX) error = %v", err)
	}
	if _, err := s.Do("setY", "bob"); err != nil {
		t.Fatalf("Do(setY) error = %v", err)
	}

	r.RequireSnapshots(t,
		map[string]any{"x": 0, "y": 0},
		map[string]any{"x": 3, "y": 0},
	)
	if got := r.Last(); got["x"] != 3 {
		t.Errorf("expected last x 3, got %v", got["x"])
	}
	errs := r.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if errs[0].Message != "y must be a integer" {
		t.Errorf("unexpected message %q", errs[0].Message)
	}

	r.Stop()
	if _, err := s.Do("setX", 4); err != nil {
		t.Fatalf("Do(setX) error = %v", err)
	}
	if n := len(r.Snapshots()); n != 2 {
		t.Errorf("expected recording to stop at 2 snapshots, got %d", n)
	}
}

func TestRequireSnapshot(t *testing.T) {
	s := newPoint(t)
	if err := s.Set("y", 4); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	RequireSnapshot(t, s, map[string]any{"x": 0, "y": 4})
}

func TestNewTestBinding(t *testing.T) {
	s := newPoint(t)
	b, ch := NewTestBinding(t, s)

	ch <- []byte(`{"x": 1, "y": 2}`)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	RequireState(t, b, valuez.StateHealthy)
	if !WaitForState(t, b, valuez.StateHealthy, 100*time.Millisecond) {
		t.Error("expected binding to reach healthy state")
	}

	ch <- []byte(`{"x": "bob"}`)
	if !b.Process(context.Background()) {
		t.Fatal("expected Process to handle the document")
	}
	RequireState(t, b, valuez.StateDegraded)
	RequireSnapshot(t, s, map[string]any{"x": float64(1), "y": float64(2)})
}
