package valuez

import "fmt"

// Order positions a Meta within a MetaList. Orders are compared with ==, so
// use comparable values such as ints or strings.
type Order = any

// Fault is returned by a Test when a value fails.
type Fault struct {
	Message string

	// Stop halts evaluation of the remaining validators in the MetaList.
	Stop bool
}

// Test checks a value. prior holds the diagnostics already produced in the
// current evaluation pass and must not be modified. A nil return means the
// value passes.
type Test func(value any, prior []Diagnostic, config any) *Fault

// Check adapts a message-returning function into a Test. An empty message
// means the value passes.
func Check(fn func(value any) string) Test {
	return func(value any, _ []Diagnostic, _ any) *Fault {
		if msg := fn(value); msg != "" {
			return &Fault{Message: msg}
		}
		return nil
	}
}

// Diagnostic is a non-fatal validation failure.
type Diagnostic struct {
	Name    string
	Message string
	Level   Order
	Stop    bool
}

// Meta is a single named validation rule. A Meta is immutable once built.
type Meta struct {
	name   string
	order  Order
	config any
	test   Test
}

// MetaOption configures a Meta at construction.
type MetaOption func(*Meta)

// WithName sets the name used in diagnostics.
func WithName(name string) MetaOption {
	return func(m *Meta) { m.name = name }
}

// WithOrder sets the priority level of the Meta.
func WithOrder(order Order) MetaOption {
	return func(m *Meta) { m.order = order }
}

// WithConfig sets the opaque config passed to the test.
func WithConfig(config any) MetaOption {
	return func(m *Meta) { m.config = config }
}

// NewMeta builds a Meta using the default registry. See Registry.Meta.
func NewMeta(spec any, opts ...MetaOption) (*Meta, error) {
	return DefaultRegistry().Meta(spec, opts...)
}

// Name returns the Meta's name.
func (m *Meta) Name() string { return m.name }

// Order returns the Meta's priority level.
func (m *Meta) Order() Order { return m.order }

// Config returns the Meta's config.
func (m *Meta) Config() any { return m.config }

// Process evaluates value and returns a diagnostic, or nil if it passes.
func (m *Meta) Process(value any, prior []Diagnostic) *Diagnostic {
	fault := m.test(value, prior, m.config)
	if fault == nil {
		return nil
	}
	return &Diagnostic{
		Name:    m.name,
		Message: fault.Message,
		Level:   m.order,
		Stop:    fault.Stop,
	}
}

func (m *Meta) signature() string {
	return fmt.Sprintf("%s:%v", m.name, m.order)
}
