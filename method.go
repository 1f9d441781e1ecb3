package valuez

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zoobzio/capitan"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ActionTransact is the action name used by Transact and Apply.
const ActionTransact = "transact"

// MethodFunc is a store action. Its arguments are those passed to Do.
type MethodFunc func(s *Store, args ...any) (any, error)

type method struct {
	name   string
	fn     MethodFunc
	trans  bool
	throws bool
}

// MethodOption configures a method.
type MethodOption func(*method)

// Trans runs the method as a transaction: its field updates coalesce into
// one snapshot, and if it fails every field it touched is rolled back.
func Trans() MethodOption {
	return func(m *method) { m.trans = true }
}

// Throws makes the method return its error to the caller as well as
// reporting it on the error channel. While it runs, field updates return
// their validation failures, and a rejected update fails the method even if
// its body ignores the error.
func Throws() MethodOption {
	return func(m *method) { m.throws = true }
}

// Method registers an action callable through Do.
func (s *Store) Method(name string, fn MethodFunc, opts ...MethodOption) error {
	if err := s.checkRegister(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("store %q: method %q is nil", s.name, name)
	}
	if _, ok := s.virtuals[name]; ok || s.taken(name) {
		return fmt.Errorf("store %q: %q: %w", s.name, name, ErrDuplicateName)
	}
	m := &method{name: name, fn: fn}
	for _, opt := range opts {
		opt(m)
	}
	s.methods[name] = m
	return nil
}

// Methods returns the registered method names, sorted.
func (s *Store) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Do invokes a method or a generated setter by name. Unknown names are
// always an error. Action failures go to the error channel and are returned
// only when the method or the store throws.
func (s *Store) Do(name string, args ...any) (any, error) {
	if s.completed {
		if s.throws {
			return nil, fmt.Errorf("store %q: %w", s.name, ErrCompleted)
		}
		return nil, nil
	}
	if field, ok := s.setters[name]; ok {
		if len(args) != 1 {
			return nil, fmt.Errorf("store %q: %s takes one argument, got %d", s.name, name, len(args))
		}
		return nil, s.Set(field, args[0])
	}
	m, ok := s.methods[name]
	if !ok {
		return nil, fmt.Errorf("store %q: %q: %w", s.name, name, ErrUnknownName)
	}
	result, err := s.invoke(m, args)
	if err != nil && (m.throws || s.throwing()) {
		return nil, err
	}
	return result, nil
}

// Transact runs fn as a transaction. Unlike Do, the error is always
// returned.
func (s *Store) Transact(fn func(s *Store) error) error {
	if s.completed {
		return fmt.Errorf("store %q: %w", s.name, ErrCompleted)
	}
	m := &method{
		name:  ActionTransact,
		trans: true,
		fn: func(s *Store, _ ...any) (any, error) {
			return nil, fn(s)
		},
	}
	_, err := s.invoke(m, nil)
	return err
}

// Apply sets several fields in one transaction, in key order. The first
// unknown name or invalid value fails the transaction and restores every
// field.
func (s *Store) Apply(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return s.Transact(func(s *Store) error {
		for _, k := range keys {
			e, ok := s.entries[k]
			if !ok {
				return fmt.Errorf("store %q: %q: %w", s.name, k, ErrUnknownName)
			}
			if e.child != nil {
				nested, ok := values[k].(map[string]any)
				if !ok {
					return fmt.Errorf("store %q: %q is a store and needs a map, got %T", s.name, k, values[k])
				}
				if err := e.child.Apply(nested); err != nil {
					return err
				}
				continue
			}
			c, err := e.field.Next(values[k])
			if err != nil {
				return err
			}
			if c != nil && len(c.Errors()) > 0 {
				return &ValidationError{Field: k, Diagnostics: c.Errors()}
			}
		}
		return nil
	})
}

// Load decodes data with codec and applies it.
func (s *Store) Load(data []byte, codec Codec) error {
	var values map[string]any
	if err := codec.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("store %q: decode: %w", s.name, err)
	}
	return s.Apply(values)
}

// Dump encodes the current snapshot with codec.
func (s *Store) Dump(codec Codec) ([]byte, error) {
	return codec.Marshal(Plain(s.Value()))
}

// invoke runs m as a Change so that dispatcher handlers see it. The
// performer runs at the process stage.
func (s *Store) invoke(m *method, args []any) (any, error) {
	ctx, span := s.tracer.Start(s.ctx, "valuez.action",
		trace.WithAttributes(
			attribute.String("valuez.store", s.name),
			attribute.String("valuez.action", m.name),
		),
	)
	defer span.End()

	var txn *transaction
	if m.trans {
		txn = s.begin()
	}
	inv := &invocation{throws: m.throws || s.throwing(), parent: s.inv}
	s.inv = inv

	c := NewChange(m.name, args, nil,
		WithStages(s.stages.resolve(m.name)...),
		WithDispatcher(s.dispatcher),
		WithOwner(s),
		WithClock(s.clock),
		WithPerform(func(c *Change) (any, error) {
			args, ok := c.Value().([]any)
			if !ok {
				args = []any{c.Value()}
			}
			result, err := m.fn(s, args...)
			if err == nil && inv.throws && inv.rejected != nil {
				return nil, inv.rejected
			}
			return result, err
		}),
	)
	err := c.Execute()
	s.inv = inv.parent

	if txn != nil {
		s.end(txn, err)
	}
	s.metrics.OnAction(s.name, m.name, err, c.Duration())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		capitan.Emit(ctx, ActionFailed,
			KeyStore.Field(s.name),
			KeyAction.Field(m.name),
			KeyStage.Field(string(c.ThrownAt())),
			KeyError.Field(err.Error()),
		)
		// Field rejections already reached the error channel.
		var verr *ValidationError
		if !errors.As(err, &verr) {
			s.report(&StoreError{
				Store:   s.name,
				Source:  m.name,
				Value:   args,
				Message: err.Error(),
				Err:     err,
			})
		}
		return nil, err
	}

	capitan.Emit(ctx, ActionSucceeded,
		KeyStore.Field(s.name),
		KeyAction.Field(m.name),
		KeyDuration.Field(c.Duration()),
	)
	return c.Result(), nil
}

// invocation is a running method. Field rejections reported while it runs
// are recorded so that a throwing method can surface them.
type invocation struct {
	throws   bool
	rejected *ValidationError
	parent   *invocation
}

// transaction holds the store's blocker and the field states to restore if
// it fails. Transactions nest; only the outermost discards a pending
// snapshot on failure.
type transaction struct {
	token  *Token
	saved  []fieldRef
	parent *transaction
}

func (s *Store) begin() *transaction {
	t := &transaction{
		token:  s.blocker.Block(),
		saved:  s.capture(nil),
		parent: s.txn,
	}
	s.txn = t
	return t
}

func (s *Store) end(t *transaction, err error) {
	s.txn = t.parent
	if err != nil {
		rollback(t.saved)
		if t.parent == nil {
			s.pending = false
		}
		s.metrics.OnRollback(s.name)
		capitan.Emit(s.ctx, TransactionRolledBack,
			KeyStore.Field(s.name),
			KeyError.Field(err.Error()),
		)
	}
	t.token.Done()
}
