package valuez

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the default debounce duration for document processing.
const DefaultDebounce = 100 * time.Millisecond

// Binding keeps a store in step with an external source. Each document the
// watcher produces is decoded with the codec and applied to the store as one
// transaction, so a document either lands whole or not at all.
//
// Once started, the binding's goroutine drives the store. Other goroutines
// must go through Exec to touch it.
type Binding struct {
	store          *Store
	watcher        Watcher
	codec          Codec
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	clock          clockz.Clock
	onStop         func(State)

	state        atomic.Int32
	applied      atomic.Bool
	lastError    atomic.Pointer[error]
	errorHistory *errorRing

	mu      sync.Mutex
	started bool
	exec    sync.Mutex

	// For sync mode: channel to receive documents.
	docs <-chan []byte
}

// Bind creates a Binding that loads documents from watcher into store.
//
//	b := valuez.Bind(store, valuez.NewFileWatcher("settings.yaml")).
//	    Codec(valuez.YAMLCodec{}).
//	    Debounce(200 * time.Millisecond)
//	if err := b.Start(ctx); err != nil {
//	    log.Printf("initial settings rejected: %v", err)
//	}
func Bind(store *Store, watcher Watcher) *Binding {
	b := &Binding{
		store:        store,
		watcher:      watcher,
		codec:        JSONCodec{},
		debounce:     DefaultDebounce,
		clock:        clockz.RealClock,
		errorHistory: newErrorRing(0),
	}
	b.state.Store(int32(StateLoading))
	return b
}

// Debounce sets how long to wait for the source to settle. Documents
// arriving within this duration are coalesced; only the last is applied.
// Must be called before Start.
func (b *Binding) Debounce(d time.Duration) *Binding {
	b.debounce = d
	return b
}

// SyncMode processes documents only through Process, with no goroutine or
// debouncing. Must be called before Start.
func (b *Binding) SyncMode() *Binding {
	b.syncMode = true
	return b
}

// Clock sets the clock used for debouncing and the startup timeout. Must be
// called before Start.
func (b *Binding) Clock(clock clockz.Clock) *Binding {
	b.clock = clock
	return b
}

// Codec sets how documents are decoded. Default: JSONCodec. Must be called
// before Start.
func (b *Binding) Codec(codec Codec) *Binding {
	b.codec = codec
	return b
}

// StartupTimeout bounds the wait for the first document. Default: no
// timeout. Must be called before Start.
func (b *Binding) StartupTimeout(d time.Duration) *Binding {
	b.startupTimeout = d
	return b
}

// OnStop sets a callback invoked with the final state when watching stops.
// Must be called before Start.
func (b *Binding) OnStop(fn func(State)) *Binding {
	b.onStop = fn
	return b
}

// ErrorHistorySize sets how many recent errors ErrorHistory retains. With 0
// (the default) only LastError is kept. Must be called before Start.
func (b *Binding) ErrorHistorySize(n int) *Binding {
	b.errorHistory = newErrorRing(n)
	return b
}

// Store returns the bound store.
func (b *Binding) Store() *Store { return b.store }

// State returns the current state.
func (b *Binding) State() State {
	return State(b.state.Load())
}

// LastError returns the error from the last rejected document, or nil once
// a document has applied since.
func (b *Binding) LastError() error {
	ptr := b.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns recent errors, oldest first. It is cleared whenever a
// document applies.
func (b *Binding) ErrorHistory() []*StoreError {
	return b.errorHistory.all()
}

// Exec runs fn with exclusive access to the store, serialized with document
// processing.
func (b *Binding) Exec(fn func(s *Store) error) error {
	b.exec.Lock()
	defer b.exec.Unlock()
	return fn(b.store)
}

// Start begins watching. It blocks until the first document is processed
// and returns its error, if any; a rejected first document leaves the
// binding watching for a better one.
//
// In sync mode, Start only processes the first document. Call Process for
// each later one.
//
// Start can only be called once.
func (b *Binding) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("binding already started")
	}
	b.started = true
	b.mu.Unlock()

	capitan.Emit(ctx, BindingStarted,
		KeyStore.Field(b.store.Name()),
		KeyDebounce.Field(b.debounce),
	)

	docs, err := b.watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	startupCtx := ctx
	if b.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = b.clock.WithTimeout(ctx, b.startupTimeout)
		defer cancel()
	}

	var initialErr error
	select {
	case <-startupCtx.Done():
		if b.startupTimeout > 0 && errors.Is(startupCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("startup timeout: watcher did not emit initial document within %v", b.startupTimeout)
		}
		return startupCtx.Err()
	case raw, ok := <-docs:
		if !ok {
			return errors.New("watcher closed before emitting initial document")
		}
		initialErr = b.process(ctx, raw)
	}

	if b.syncMode {
		b.docs = docs
		return initialErr
	}

	go b.watch(ctx, docs)
	return initialErr
}

// Process applies the next pending document. It is only available in sync
// mode and reports false when nothing is waiting or the watcher has closed.
func (b *Binding) Process(ctx context.Context) bool {
	if !b.syncMode {
		return false
	}
	select {
	case raw, ok := <-b.docs:
		if !ok {
			return false
		}
		_ = b.process(ctx, raw) //nolint:errcheck // recorded via setError
		return true
	default:
		return false
	}
}

// process decodes one document and applies it.
func (b *Binding) process(ctx context.Context, raw []byte) error {
	oldState := b.State()
	capitan.Emit(ctx, BindingDocumentReceived,
		KeyStore.Field(b.store.Name()),
	)

	var values map[string]any
	if err := b.codec.Unmarshal(raw, &values); err != nil {
		b.setError("decode", err)
		b.transitionState(ctx, oldState, b.failureState())
		capitan.Emit(ctx, BindingDecodeFailed,
			KeyStore.Field(b.store.Name()),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("decode failed: %w", err)
	}

	if err := b.Exec(func(s *Store) error { return s.Apply(values) }); err != nil {
		b.setError("apply", err)
		b.transitionState(ctx, oldState, b.failureState())
		capitan.Emit(ctx, BindingApplyFailed,
			KeyStore.Field(b.store.Name()),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("apply failed: %w", err)
	}

	b.applied.Store(true)
	b.lastError.Store(nil)
	b.errorHistory.clear()
	b.transitionState(ctx, oldState, StateHealthy)
	capitan.Emit(ctx, BindingApplySucceeded,
		KeyStore.Field(b.store.Name()),
	)
	return nil
}

func (b *Binding) failureState() State {
	if !b.applied.Load() {
		return StateEmpty
	}
	return StateDegraded
}

func (b *Binding) transitionState(ctx context.Context, oldState, newState State) {
	if oldState == newState {
		return
	}
	b.state.Store(int32(newState))
	capitan.Emit(ctx, BindingStateChanged,
		KeyStore.Field(b.store.Name()),
		KeyOldState.Field(oldState.String()),
		KeyNewState.Field(newState.String()),
	)
}

func (b *Binding) setError(source string, err error) {
	e := err
	b.lastError.Store(&e)
	b.errorHistory.push(&StoreError{
		Store:   b.store.Name(),
		Source:  source,
		Message: err.Error(),
		Err:     err,
	})
}

// watch applies documents with debouncing until ctx is canceled or the
// watcher closes.
func (b *Binding) watch(ctx context.Context, docs <-chan []byte) {
	defer func() {
		final := b.State()
		capitan.Emit(ctx, BindingStopped,
			KeyStore.Field(b.store.Name()),
			KeyState.Field(final.String()),
		)
		if b.onStop != nil {
			b.onStop(final)
		}
	}()

	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-docs:
			if !ok {
				if hasPending {
					_ = b.process(ctx, pending) //nolint:errcheck // recorded via setError
				}
				return
			}
			pending = raw
			hasPending = true

			if timer == nil {
				timer = b.clock.NewTimer(b.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(b.debounce)
			}

		case <-timerC:
			if hasPending {
				_ = b.process(ctx, pending) //nolint:errcheck // recorded via setError
				hasPending = false
			}
		}
	}
}
