// Package testing provides helpers for testing code built on valuez stores
// and bindings.
package testing

import (
	"reflect"
	"testing"
	"time"

	"github.com/zoobzio/valuez"
)

// Recorder collects everything a store emits.
type Recorder struct {
	snapshots []map[string]any
	errors    []*valuez.StoreError
	subs      []*valuez.Subscription
}

// NewRecorder subscribes to store's snapshots and errors. The current
// snapshot is recorded immediately. Subscriptions end when the test does.
func NewRecorder(t *testing.T, store *valuez.Store) *Recorder {
	t.Helper()
	r := &Recorder{}
	r.subs = append(r.subs,
		store.Subscribe(func(c valuez.Container) {
			r.snapshots = append(r.snapshots, valuez.Plain(c))
		}),
		store.SubscribeErrors(func(e *valuez.StoreError) {
			r.errors = append(r.errors, e)
		}),
	)
	t.Cleanup(r.Stop)
	return r
}

// Stop ends recording.
func (r *Recorder) Stop() {
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
}

// Snapshots returns the recorded snapshots as plain maps, oldest first.
func (r *Recorder) Snapshots() []map[string]any {
	return append([]map[string]any(nil), r.snapshots...)
}

// Last returns the most recent snapshot, or nil.
func (r *Recorder) Last() map[string]any {
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

// Errors returns the recorded errors, oldest first.
func (r *Recorder) Errors() []*valuez.StoreError {
	return append([]*valuez.StoreError(nil), r.errors...)
}

// RequireSnapshots fails the test unless the recorded snapshots equal want.
func (r *Recorder) RequireSnapshots(t *testing.T, want ...map[string]any) {
	t.Helper()
	if !reflect.DeepEqual(r.snapshots, want) {
		t.Fatalf("expected snapshots %v, got %v", want, r.snapshots)
	}
}

// RequireSnapshot fails the test unless store's current snapshot equals
// want.
func RequireSnapshot(t *testing.T, store *valuez.Store, want map[string]any) {
	t.Helper()
	if got := valuez.Plain(store.Value()); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected snapshot %v, got %v", want, got)
	}
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the binding reaches the expected state or
// timeout occurs.
func WaitForState(t *testing.T, b *valuez.Binding, expected valuez.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return b.State() == expected
	})
}

// RequireState fails the test immediately if the binding is not in the
// expected state.
func RequireState(t *testing.T, b *valuez.Binding, expected valuez.State) {
	t.Helper()
	if got := b.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// NewTestBinding binds store to a sync channel watcher in sync mode.
// Returns the binding and a channel for sending documents.
func NewTestBinding(t *testing.T, store *valuez.Store) (*valuez.Binding, chan<- []byte) {
	t.Helper()
	ch := make(chan []byte, 10)
	b := valuez.Bind(store, valuez.NewSyncChannelWatcher(ch)).SyncMode()
	return b, ch
}
