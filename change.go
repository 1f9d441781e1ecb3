package valuez

import (
	"reflect"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zoobzio/clockz"
)

// ChangeEvent is what a Change pushes to its subscribers each time its value
// or stage moves.
type ChangeEvent struct {
	Value  any
	Stage  Stage
	Action string
}

// Change carries one attempted update through a sequence of stages.
//
// A change starts at StageBegin and ends at StageComplete. Handlers
// registered on its Dispatcher run as it enters each stage and may rewrite
// the carried value (Next) or abort the change (Error). An aborted change
// runs no further stages and never commits.
//
// A Change is not safe for concurrent use.
type Change struct {
	// ID uniquely identifies the change.
	ID string

	// Action names the operation being performed, e.g. "next".
	Action string

	value     any
	lastValue any
	stages    []Stage
	pos       int
	stage     Stage

	thrown   error
	thrownAt Stage
	errors   []Diagnostic
	added    []Diagnostic
	notes    []string

	redundant  bool
	result     any
	terminated bool
	dirty      bool
	annotated  bool

	owner      any
	dispatcher *Dispatcher
	subject    *Subject[ChangeEvent]
	clock      clockz.Clock
	equal      func(a, b any) bool
	started    time.Time
	finished   time.Time

	// Owner hooks.
	perform   func(c *Change) (any, error)
	performed bool
	hooks     map[Stage]func(c *Change)
	commit    func(c *Change)
}

// ChangeOption configures a Change.
type ChangeOption func(*Change)

// WithStages sets the intermediate stages. Begin and complete are always
// added.
func WithStages(stages ...Stage) ChangeOption {
	return func(c *Change) { c.stages = normalizeStages(stages) }
}

// WithDispatcher sets the dispatcher whose handlers run for this change.
func WithDispatcher(d *Dispatcher) ChangeOption {
	return func(c *Change) { c.dispatcher = d }
}

// WithOwner sets the owner passed to predicates.
func WithOwner(owner any) ChangeOption {
	return func(c *Change) { c.owner = owner }
}

// WithClock sets the clock used for timing.
func WithClock(clock clockz.Clock) ChangeOption {
	return func(c *Change) { c.clock = clock }
}

// WithEqual sets the comparison used to flag redundant changes.
func WithEqual(fn func(a, b any) bool) ChangeOption {
	return func(c *Change) { c.equal = fn }
}

// WithPerform attaches the action run at the process stage. Errors and
// panics become the change's terminal error.
func WithPerform(fn func(c *Change) (any, error)) ChangeOption {
	return func(c *Change) { c.perform = fn }
}

// WithCommit attaches the callback run when the change completes without
// error.
func WithCommit(fn func(c *Change)) ChangeOption {
	return func(c *Change) { c.commit = fn }
}

// withHook attaches an owner hook that runs after the stage's handlers.
func withHook(stage Stage, fn func(c *Change)) ChangeOption {
	return func(c *Change) {
		if c.hooks == nil {
			c.hooks = make(map[Stage]func(*Change))
		}
		c.hooks[stage] = fn
	}
}

// NewChange creates a change for action carrying value. lastValue is the
// value in place before the change.
func NewChange(action string, value, lastValue any, opts ...ChangeOption) *Change {
	c := &Change{
		ID:         ulid.Make().String(),
		Action:     action,
		value:      value,
		lastValue:  lastValue,
		stages:     normalizeStages(DefaultStages),
		stage:      StageBegin,
		dispatcher: DefaultDispatcher(),
		clock:      clockz.RealClock,
		equal:      reflect.DeepEqual,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.clock.Now()
	c.subject = NewBehaviorSubject(ChangeEvent{Value: value, Stage: StageBegin, Action: action})
	return c
}

// Value returns the value currently carried.
func (c *Change) Value() any { return c.value }

// LastValue returns the value in place before the change.
func (c *Change) LastValue() any { return c.lastValue }

// Stage returns the current stage.
func (c *Change) Stage() Stage { return c.stage }

// Stages returns the full stage sequence.
func (c *Change) Stages() []Stage { return append([]Stage(nil), c.stages...) }

// Err returns the terminal error, if any.
func (c *Change) Err() error { return c.thrown }

// ThrownAt returns the stage at which the change errored.
func (c *Change) ThrownAt() Stage { return c.thrownAt }

// Errors returns the diagnostics accumulated during this change: the
// owner's validation result followed by any added by handlers.
func (c *Change) Errors() []Diagnostic {
	if len(c.errors)+len(c.added) == 0 {
		return nil
	}
	out := make([]Diagnostic, 0, len(c.errors)+len(c.added))
	out = append(out, c.errors...)
	return append(out, c.added...)
}

// Notes returns annotations attached by handlers.
func (c *Change) Notes() []string { return append([]string(nil), c.notes...) }

// Redundant reports whether the committed value equals the previous value.
func (c *Change) Redundant() bool { return c.redundant }

// Result returns what the performed action returned.
func (c *Change) Result() any { return c.result }

// Owner returns the field or store that created the change.
func (c *Change) Owner() any { return c.owner }

// Done reports whether the change has completed or errored.
func (c *Change) Done() bool { return c.terminated }

// Started returns when the change was created.
func (c *Change) Started() time.Time { return c.started }

// Finished returns when the change terminated, or the zero time.
func (c *Change) Finished() time.Time { return c.finished }

// Duration returns how long the change ran.
func (c *Change) Duration() time.Duration {
	if c.finished.IsZero() {
		return c.clock.Since(c.started)
	}
	return c.finished.Sub(c.started)
}

// Note attaches a free-form annotation.
func (c *Change) Note(note string) {
	c.notes = append(c.notes, note)
}

// AddDiagnostic records a diagnostic against the change. For field changes
// this marks the value invalid.
func (c *Change) AddDiagnostic(d Diagnostic) {
	c.added = append(c.added, d)
}

// Subscribe observes the change's events. Subscribers receive the current
// event immediately, then every value or stage update, then exactly one
// terminal notification.
func (c *Change) Subscribe(o Observer[ChangeEvent]) *Subscription {
	return c.subject.Subscribe(o)
}

// Next rewrites the carried value without moving stage.
func (c *Change) Next(value any) {
	if c.terminated {
		return
	}
	c.value = value
	c.dirty = true
	c.emit()
}

// NextStage enters stage, emits, and runs its handlers. Entering
// StageComplete terminates the change.
func (c *Change) NextStage(stage Stage) {
	if c.terminated {
		return
	}
	for i := c.pos; i < len(c.stages); i++ {
		if c.stages[i] == stage {
			c.pos = i + 1
			break
		}
	}
	if stage == StageComplete && !c.performed && c.perform != nil {
		c.run()
		if c.terminated {
			return
		}
	}
	if stage != c.stage {
		c.stage = stage
		c.emit()
	}

	if c.dispatcher != nil {
		c.dispatcher.dispatch(c)
	}
	if c.terminated {
		return
	}
	if hook := c.hooks[stage]; hook != nil {
		if err := safely(func() { hook(c) }); err != nil {
			c.Error(err)
			return
		}
	}
	if stage == StageProcess && !c.performed && c.perform != nil {
		c.run()
	}
	if stage == StageComplete && !c.terminated {
		c.finish()
	}
}

// Execute runs every remaining stage in order and returns the terminal error.
func (c *Change) Execute() error {
	for !c.terminated && c.pos < len(c.stages) {
		c.NextStage(c.stages[c.pos])
	}
	return c.thrown
}

// Error aborts the change. No further stages run and nothing is committed.
func (c *Change) Error(err error) {
	if c.terminated || err == nil {
		return
	}
	c.thrown = err
	c.thrownAt = c.stage
	c.terminated = true
	c.finished = c.clock.Now()
	c.subject.Error(err)
}

// Complete enters StageComplete, committing the change.
func (c *Change) Complete() {
	c.NextStage(StageComplete)
}

func (c *Change) run() {
	c.performed = true
	var (
		result any
		err    error
	)
	if perr := safely(func() { result, err = c.perform(c) }); perr != nil {
		err = perr
	}
	if err != nil {
		c.Error(err)
		return
	}
	c.result = result
}

func (c *Change) finish() {
	c.redundant = c.equal(c.value, c.lastValue)
	if c.commit != nil {
		if err := safely(func() { c.commit(c) }); err != nil {
			c.Error(err)
			return
		}
	}
	c.terminated = true
	c.finished = c.clock.Now()
	c.subject.Complete()
}

func (c *Change) emit() {
	c.subject.Next(ChangeEvent{Value: c.value, Stage: c.stage, Action: c.Action})
}
