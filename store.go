package valuez

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultErrorHistorySize is the number of errors a store retains for
// ErrorHistory unless configured otherwise.
const DefaultErrorHistorySize = 16

// entry is a named member of a store: either a field or a nested store.
type entry struct {
	name  string
	field *Field
	child *Store
}

// Store aggregates named fields, nested stores, virtuals and methods under
// one observable snapshot.
//
// Every valid field commit produces a new snapshot built from each field's
// last valid value plus every virtual. Invalid values never reach the
// snapshot; they are pushed to the store's error channel instead. While a
// transaction or derivation is in flight, emission is deferred and the
// intermediate updates coalesce into a single snapshot.
//
// A Store is not safe for concurrent use. Drive it from one goroutine, for
// example through a Binding.
type Store struct {
	name         string
	newContainer func() Container

	entries      map[string]*entry
	order        []string
	virtuals     map[string]*virtual
	virtualOrder []string
	methods      map[string]*method
	setters      map[string]string
	deriving     map[string]bool

	blocker *Blocker
	pending bool
	txn     *transaction
	inv     *invocation

	values    *Subject[Container]
	errs      *Subject[*StoreError]
	errorRing *errorRing
	subs      []*Subscription

	registry   *Registry
	dispatcher *Dispatcher
	stages     stageConfig
	orderKeys  []Order
	clock      clockz.Clock
	metrics    MetricsProvider
	tracer     trace.Tracer
	ctx        context.Context

	throws    bool
	sealed    bool
	completed bool
	restoring bool
}

// New creates a store whose snapshots are Records.
func New(name string) *Store {
	return newStore(name, NewRecord)
}

// NewMap creates a store whose snapshots are OrderedMaps, keeping fields in
// registration order.
func NewMap(name string) *Store {
	return newStore(name, NewOrderedMap)
}

func newStore(name string, container func() Container) *Store {
	s := &Store{
		name:         name,
		newContainer: container,
		entries:      make(map[string]*entry),
		virtuals:     make(map[string]*virtual),
		methods:      make(map[string]*method),
		setters:      make(map[string]string),
		deriving:     make(map[string]bool),
		blocker:      NewBlocker(),
		errs:         NewSubject[*StoreError](),
		errorRing:    newErrorRing(DefaultErrorHistorySize),
		registry:     DefaultRegistry(),
		dispatcher:   DefaultDispatcher(),
		clock:        clockz.RealClock,
		metrics:      NoOpMetricsProvider{},
		tracer:       otel.Tracer("github.com/zoobzio/valuez"),
		ctx:          context.Background(),
	}
	s.subs = append(s.subs, s.blocker.Subscribe(s.onBlocker))
	return s
}

// Throws makes setters and methods return their errors in addition to
// reporting them on the error channel.
func (s *Store) Throws() *Store {
	s.throws = true
	return s
}

// Clock sets the clock used to time changes. Affects fields added later.
func (s *Store) Clock(clock clockz.Clock) *Store {
	s.clock = clock
	return s
}

// Metrics sets the metrics provider.
func (s *Store) Metrics(m MetricsProvider) *Store {
	s.metrics = m
	return s
}

// Tracer sets the tracer used for method spans.
func (s *Store) Tracer(t trace.Tracer) *Store {
	s.tracer = t
	return s
}

// Registry sets the validator registry used to resolve field filters.
// Affects fields added later.
func (s *Store) Registry(r *Registry) *Store {
	s.registry = r
	return s
}

// Dispatcher sets the dispatcher whose handlers see this store's changes.
// Affects fields added later.
func (s *Store) Dispatcher(d *Dispatcher) *Store {
	s.dispatcher = d
	return s
}

// Context sets the context passed to signals and spans.
func (s *Store) Context(ctx context.Context) *Store {
	s.ctx = ctx
	return s
}

// ErrorHistorySize sets how many errors ErrorHistory retains. Previously
// recorded errors are discarded.
func (s *Store) ErrorHistorySize(n int) *Store {
	s.errorRing = newErrorRing(n)
	return s
}

// OrderKeys sets the MetaList level ordering for fields added later.
func (s *Store) OrderKeys(keys ...Order) *Store {
	s.orderKeys = append([]Order(nil), keys...)
	return s
}

// DefaultStages sets the stage sequence for every action without its own.
func (s *Store) DefaultStages(stages ...Stage) *Store {
	s.stages.defaults = append([]Stage{}, stages...)
	return s
}

// Stages sets the stage sequence for one action. Use ActionNext for field
// updates or a method name for that method.
func (s *Store) Stages(action string, stages ...Stage) *Store {
	s.stages.set(action, stages)
	return s
}

// Seal rejects any further registration.
func (s *Store) Seal() *Store {
	s.sealed = true
	return s
}

// Name returns the store's name.
func (s *Store) Name() string { return s.name }

// Completed reports whether Complete has been called.
func (s *Store) Completed() bool { return s.completed }

// Blocked reports whether emission is currently deferred.
func (s *Store) Blocked() bool { return s.blocker.Blocked() }

func (s *Store) checkRegister(name string) error {
	switch {
	case s.completed:
		return fmt.Errorf("store %q: %w", s.name, ErrCompleted)
	case s.sealed:
		return fmt.Errorf("store %q: %w", s.name, ErrSealed)
	}
	return ValidateName(name)
}

// taken reports whether name is already used by a field, store, method or
// generated setter.
func (s *Store) taken(name string) bool {
	if _, ok := s.entries[name]; ok {
		return true
	}
	if _, ok := s.methods[name]; ok {
		return true
	}
	_, ok := s.setters[name]
	return ok
}

func (s *Store) addEntry(name string) (string, error) {
	if err := s.checkRegister(name); err != nil {
		return "", err
	}
	if s.taken(name) {
		return "", fmt.Errorf("store %q: %q: %w", s.name, name, ErrDuplicateName)
	}
	setter, err := SetterName(name)
	if err != nil {
		return "", err
	}
	if s.taken(setter) {
		return "", fmt.Errorf("store %q: setter %q: %w", s.name, setter, ErrDuplicateName)
	}
	return setter, nil
}

// Property adds a field with an initial value and validators. Filters are
// anything Registry.Meta accepts. The field gets a generated setter, e.g.
// "first name" is set through Do("setFirstName", v).
func (s *Store) Property(name string, initial any, filters ...any) (*Field, error) {
	setter, err := s.addEntry(name)
	if err != nil {
		return nil, err
	}
	f, err := newField(name, initial, s.registry, s.orderKeys, filters)
	if err != nil {
		return nil, err
	}
	f.dispatcher = s.dispatcher
	f.parent = &s.stages
	f.clock = s.clock
	f.owner = s

	s.entries[name] = &entry{name: name, field: f}
	s.order = append(s.order, name)
	s.setters[setter] = name

	s.subs = append(s.subs,
		f.Changes().Subscribe(Observer[*Change]{Next: func(c *Change) { s.watchChange(name, c) }}),
		f.SubscribeFunc(func(em Emission) { s.onField(name, em) }),
	)
	return f, nil
}

// AddStore nests child under name. The child's snapshot appears as a nested
// container and its errors are forwarded to this store's error channel.
// Setting name with a map applies the map to the child.
func (s *Store) AddStore(name string, child *Store) error {
	setter, err := s.addEntry(name)
	if err != nil {
		return err
	}
	if child == s || child.contains(s) {
		return fmt.Errorf("store %q: nesting %q would create a cycle: %w", s.name, name, ErrCircular)
	}
	s.entries[name] = &entry{name: name, child: child}
	s.order = append(s.order, name)
	s.setters[setter] = name

	skip := true
	s.subs = append(s.subs,
		child.Subscribe(func(Container) {
			if skip {
				return
			}
			s.emit()
		}),
		child.SubscribeErrors(func(e *StoreError) {
			forwarded := *e
			forwarded.Source = name + "." + e.Source
			s.report(&forwarded)
		}),
	)
	skip = false
	return nil
}

// contains reports whether target is nested anywhere below s.
func (s *Store) contains(target *Store) bool {
	for _, e := range s.entries {
		if e.child == nil {
			continue
		}
		if e.child == target || e.child.contains(target) {
			return true
		}
	}
	return false
}

// Field returns the named field.
func (s *Store) Field(name string) (*Field, bool) {
	e, ok := s.entries[name]
	if !ok || e.field == nil {
		return nil, false
	}
	return e.field, true
}

// Child returns the named nested store.
func (s *Store) Child(name string) (*Store, bool) {
	e, ok := s.entries[name]
	if !ok || e.child == nil {
		return nil, false
	}
	return e.child, true
}

// Names returns fields and nested stores in registration order, followed by
// virtuals not shadowed by a field.
func (s *Store) Names() []string {
	names := append([]string(nil), s.order...)
	for _, name := range s.virtualOrder {
		if _, ok := s.entries[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}

// Setters returns the generated setter names mapped to their fields.
func (s *Store) Setters() map[string]string {
	out := make(map[string]string, len(s.setters))
	for k, v := range s.setters {
		out[k] = v
	}
	return out
}

// Set updates a field. Unknown names are always an error. Validation and
// handler failures go to the error channel and are returned only when the
// store throws.
func (s *Store) Set(name string, value any) error {
	if s.completed {
		if s.throws {
			return fmt.Errorf("store %q: %w", s.name, ErrCompleted)
		}
		return nil
	}
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("store %q: %q: %w", s.name, name, ErrUnknownName)
	}
	if e.child != nil {
		values, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("store %q: %q is a store and needs a map, got %T", s.name, name, value)
		}
		err := e.child.Apply(values)
		if err != nil && s.throwing() {
			return err
		}
		return nil
	}

	c, err := e.field.Next(value)
	if !s.throwing() {
		return nil
	}
	if err != nil {
		return err
	}
	if c != nil {
		if diags := c.Errors(); len(diags) > 0 {
			return &ValidationError{Field: name, Diagnostics: diags}
		}
	}
	return nil
}

// throwing reports whether failures are returned to the caller: the store
// throws, or a throwing method is running.
func (s *Store) throwing() bool {
	return s.throws || (s.inv != nil && s.inv.throws)
}

// Get returns a field's last valid value, a nested store's snapshot, or a
// virtual's derived value.
func (s *Store) Get(name string) (any, error) {
	if e, ok := s.entries[name]; ok {
		if e.field != nil {
			return e.field.LastValid(), nil
		}
		return e.child.Value(), nil
	}
	if v, ok := s.virtuals[name]; ok {
		return s.Derive(name, v.fn)
	}
	return nil, fmt.Errorf("store %q: %q: %w", s.name, name, ErrUnknownName)
}

// Value builds the current snapshot. Virtuals are included only when the
// store is not blocked; a failing virtual is reported and left out.
func (s *Store) Value() Container {
	c := s.newContainer()
	for _, name := range s.order {
		e := s.entries[name]
		if e.field != nil {
			c.Set(name, e.field.LastValid())
		} else {
			c.Set(name, e.child.Value())
		}
	}
	if s.blocker.Blocked() {
		return c
	}
	for _, name := range s.virtualOrder {
		if _, shadowed := s.entries[name]; shadowed {
			continue
		}
		v, err := s.Derive(name, s.virtuals[name].fn)
		if err != nil {
			s.reportVirtual(name, err)
			continue
		}
		c.Set(name, v)
	}
	return c
}

// Subscribe observes snapshots. The current snapshot is replayed.
func (s *Store) Subscribe(fn func(Container)) *Subscription {
	sub := s.valuesSubject().SubscribeFunc(fn)
	s.subs = append(s.subs, sub)
	return sub
}

// Values returns the snapshot stream.
func (s *Store) Values() Observable[Container] {
	return s.valuesSubject()
}

// valuesSubject creates the snapshot subject on first use, seeded with the
// current snapshot. Nothing is built while no one is listening.
func (s *Store) valuesSubject() *Subject[Container] {
	if s.values == nil {
		s.values = NewBehaviorSubject(s.Value())
		if s.completed {
			s.values.Complete()
		}
	}
	return s.values
}

// Errors returns the error stream. Errors are not replayed.
func (s *Store) Errors() Observable[*StoreError] {
	return s.errs
}

// SubscribeErrors observes errors reported after the call.
func (s *Store) SubscribeErrors(fn func(*StoreError)) *Subscription {
	sub := s.errs.SubscribeFunc(fn)
	s.subs = append(s.subs, sub)
	return sub
}

// LastError returns the most recent error, or nil.
func (s *Store) LastError() *StoreError {
	return s.errorRing.last()
}

// ErrorHistory returns retained errors, oldest first.
func (s *Store) ErrorHistory() []*StoreError {
	return s.errorRing.all()
}

// ClearErrors forgets recorded errors.
func (s *Store) ClearErrors() {
	s.errorRing.clear()
}

// Complete tears the store down: subscribers receive completion, nested
// stores and fields are completed, and later updates are ignored.
func (s *Store) Complete() {
	if s.completed {
		return
	}
	s.completed = true
	if s.values != nil {
		s.values.Complete()
	}
	s.errs.Complete()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	for _, name := range s.order {
		e := s.entries[name]
		if e.field != nil {
			e.field.Complete()
		} else {
			e.child.Complete()
		}
	}
	s.blocker.Complete()
	capitan.Emit(s.ctx, StoreCompleted, KeyStore.Field(s.name))
}

func (s *Store) onBlocker(count int) {
	if count == 0 && s.pending {
		s.pending = false
		s.emit()
	}
}

func (s *Store) onField(name string, em Emission) {
	if em.Valid() {
		if !s.restoring {
			capitan.Emit(s.ctx, FieldChanged, KeyStore.Field(s.name), KeyField.Field(name))
		}
		s.emit()
		return
	}
	if s.restoring {
		return
	}
	s.reportField(name, em)
}

// watchChange times each field change for metrics and reports changes that
// a handler aborted.
func (s *Store) watchChange(name string, c *Change) {
	c.Subscribe(Observer[ChangeEvent]{
		Error: func(err error) {
			s.report(&StoreError{
				Store:   s.name,
				Source:  name,
				Field:   name,
				Value:   c.Value(),
				Message: err.Error(),
				Err:     err,
			})
			s.metrics.OnFieldChange(s.name, name, false, c.Duration())
		},
		Complete: func() {
			s.metrics.OnFieldChange(s.name, name, len(c.Errors()) == 0, c.Duration())
		},
	})
}

// emit pushes a snapshot, or marks one pending while blocked.
func (s *Store) emit() {
	if s.completed {
		return
	}
	if s.blocker.Blocked() {
		s.pending = true
		return
	}
	if s.values == nil {
		return
	}
	snap := s.Value()
	s.values.Next(snap)
	s.metrics.OnSnapshot(s.name)
	capitan.Emit(s.ctx, SnapshotEmitted, KeyStore.Field(s.name), KeyFields.Field(snap.Len()))
}

func (s *Store) report(e *StoreError) {
	s.errorRing.push(e)
	s.errs.Next(e)
}

func (s *Store) reportField(name string, em Emission) {
	msgs := make([]string, len(em.Meta))
	for i, d := range em.Meta {
		msgs[i] = name + " " + d.Message
	}
	msg := strings.Join(msgs, "; ")
	for inv := s.inv; inv != nil; inv = inv.parent {
		if inv.rejected == nil {
			inv.rejected = &ValidationError{Field: name, Diagnostics: em.Meta}
		}
	}
	capitan.Emit(s.ctx, FieldRejected,
		KeyStore.Field(s.name),
		KeyField.Field(name),
		KeyError.Field(msg),
	)
	s.report(&StoreError{
		Store:       s.name,
		Source:      name,
		Field:       name,
		Value:       em.Value,
		Message:     msg,
		Diagnostics: em.Meta,
	})
}

func (s *Store) reportVirtual(name string, err error) {
	s.report(&StoreError{
		Store:   s.name,
		Source:  name,
		Message: err.Error(),
		Err:     err,
	})
}

// fieldRef is a field with the store that owns it.
type fieldRef struct {
	store *Store
	field *Field
	state fieldState
}

// capture records the state of every field, nested stores included.
func (s *Store) capture(out []fieldRef) []fieldRef {
	for _, name := range s.order {
		e := s.entries[name]
		if e.field != nil {
			out = append(out, fieldRef{store: s, field: e.field, state: e.field.state()})
		} else {
			out = e.child.capture(out)
		}
	}
	return out
}

// rollback restores captured fields whose state has moved.
func rollback(refs []fieldRef) {
	for _, r := range refs {
		if reflect.DeepEqual(r.field.state(), r.state) {
			continue
		}
		r.store.restoring = true
		r.field.restore(r.state)
		r.store.restoring = false
	}
}
