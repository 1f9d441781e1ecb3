package valuez

import (
	"fmt"
	"reflect"

	"github.com/zoobzio/clockz"
)

// Emission is what a Field pushes on every committed update: the attempted
// value, its diagnostics, and the last value that had none.
type Emission struct {
	Value     any
	Meta      []Diagnostic
	LastValid any
}

// Valid reports whether the emission carries no diagnostics.
func (e Emission) Valid() bool { return len(e.Meta) == 0 }

// Field is a single named reactive value.
//
// Every update runs as a Change through the field's stage sequence. The
// MetaList annotates the value at the pending stage (or at commit if the
// sequence has no pending stage). Invalid values are still emitted so that
// consumers can show them, but only valid values become LastValid.
//
// A Field is not safe for concurrent use.
type Field struct {
	name       string
	value      any
	lastValid  any
	diags      []Diagnostic
	metas      *MetaList
	subject    *Subject[Emission]
	changes    *Subject[*Change]
	equal      func(a, b any) bool
	dispatcher *Dispatcher
	stages     stageConfig
	parent     *stageConfig
	clock      clockz.Clock
	owner      any
	strict     bool
	completed  bool
}

// NewField creates a field using the default registry and dispatcher.
// Filters are anything Registry.Meta accepts.
func NewField(name string, initial any, filters ...any) (*Field, error) {
	return newField(name, initial, DefaultRegistry(), nil, filters)
}

func newField(name string, initial any, registry *Registry, orderKeys []Order, filters []any) (*Field, error) {
	metas := NewMetaList(orderKeys)
	for _, spec := range filters {
		m, err := registry.Meta(spec)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		metas.Add(m)
	}

	f := &Field{
		name:       name,
		value:      initial,
		metas:      metas,
		changes:    NewSubject[*Change](),
		equal:      reflect.DeepEqual,
		dispatcher: DefaultDispatcher(),
		clock:      clockz.RealClock,
	}
	f.owner = f
	f.diags = metas.Annotate(initial)
	if len(f.diags) == 0 {
		f.lastValid = initial
	}
	f.subject = NewBehaviorSubject(f.emission())
	return f, nil
}

// Name returns the field's name.
func (f *Field) Name() string { return f.name }

// Value returns the latest attempted value.
func (f *Field) Value() any { return f.value }

// LastValid returns the latest value that passed validation.
func (f *Field) LastValid() any { return f.lastValid }

// Meta returns the diagnostics for the latest value.
func (f *Field) Meta() []Diagnostic { return append([]Diagnostic(nil), f.diags...) }

// Valid reports whether the latest value passed validation.
func (f *Field) Valid() bool { return len(f.diags) == 0 }

// Metas returns the field's MetaList. Adding metas affects later updates.
func (f *Field) Metas() *MetaList { return f.metas }

// Completed reports whether Complete has been called.
func (f *Field) Completed() bool { return f.completed }

// Strict makes Next return ErrCompleted after Complete instead of ignoring
// the call.
func (f *Field) Strict() *Field {
	f.strict = true
	return f
}

// Equal sets the comparison used to flag redundant changes.
func (f *Field) Equal(fn func(a, b any) bool) *Field {
	f.equal = fn
	return f
}

// Dispatcher sets the dispatcher whose handlers see this field's changes.
func (f *Field) Dispatcher(d *Dispatcher) *Field {
	f.dispatcher = d
	return f
}

// Stages sets the stage sequence used for action.
func (f *Field) Stages(action string, stages ...Stage) *Field {
	f.stages.set(action, stages)
	return f
}

// Subscribe observes the field. The current emission is replayed.
func (f *Field) Subscribe(o Observer[Emission]) *Subscription {
	return f.subject.Subscribe(o)
}

// SubscribeFunc is shorthand for Subscribe with only a Next callback.
func (f *Field) SubscribeFunc(fn func(Emission)) *Subscription {
	return f.subject.SubscribeFunc(fn)
}

// Changes observes every change the field creates, before its stages run.
func (f *Field) Changes() Observable[*Change] {
	return f.changes
}

// Next attempts to replace the field's value. It returns the change that
// carried the update and the change's terminal error, if a handler aborted
// it. Validation failures are not errors; they are reported as diagnostics.
//
// After Complete, Next does nothing and returns (nil, nil), or ErrCompleted
// for strict fields.
func (f *Field) Next(value any) (*Change, error) {
	if f.completed {
		if f.strict {
			return nil, fmt.Errorf("field %q: %w", f.name, ErrCompleted)
		}
		return nil, nil
	}
	c := f.newChange(ActionNext, value)
	f.changes.Next(c)
	err := c.Execute()
	return c, err
}

// Complete terminates the field.
func (f *Field) Complete() {
	if f.completed {
		return
	}
	f.completed = true
	f.subject.Complete()
	f.changes.Complete()
}

func (f *Field) newChange(action string, value any) *Change {
	return NewChange(action, value, f.value,
		WithStages(f.stageList(action)...),
		WithDispatcher(f.dispatcher),
		WithOwner(f.owner),
		WithClock(f.clock),
		WithEqual(f.equal),
		withHook(StagePending, f.annotate),
		WithCommit(f.commit),
	)
}

// stageList resolves the stages for action: the field's own configuration
// first, then its store's.
func (f *Field) stageList(action string) []Stage {
	if stages, ok := f.stages.actions[action]; ok {
		return stages
	}
	if f.stages.defaults != nil || f.parent == nil {
		return f.stages.resolve(action)
	}
	return f.parent.resolve(action)
}

func (f *Field) annotate(c *Change) {
	c.errors = f.metas.Annotate(c.value)
	c.annotated = true
	c.dirty = false
}

type fieldState struct {
	value     any
	lastValid any
	diags     []Diagnostic
}

func (f *Field) commit(c *Change) {
	if c.dirty || !c.annotated {
		f.annotate(c)
	}
	f.apply(fieldState{value: c.value, lastValid: f.lastValid, diags: c.Errors()})
}

// apply installs state, promoting the value to LastValid when it has no
// diagnostics, and emits.
func (f *Field) apply(s fieldState) {
	f.value = s.value
	f.diags = s.diags
	f.lastValid = s.lastValid
	if len(s.diags) == 0 {
		f.lastValid = s.value
	}
	if !f.completed {
		f.subject.Next(f.emission())
	}
}

func (f *Field) state() fieldState {
	return fieldState{value: f.value, lastValid: f.lastValid, diags: f.diags}
}

// restore puts back a previously captured state without re-validating.
func (f *Field) restore(s fieldState) {
	f.value = s.value
	f.diags = s.diags
	f.lastValid = s.lastValid
	if !f.completed {
		f.subject.Next(f.emission())
	}
}

func (f *Field) emission() Emission {
	return Emission{Value: f.value, Meta: f.Meta(), LastValid: f.lastValid}
}
