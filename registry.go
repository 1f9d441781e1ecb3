package valuez

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Registry resolves validator names to tests. Built-in type checks live at
// order "type" and "required" at order "required"; everything else defaults
// to order 0.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]registryEntry
	validate *validator.Validate
}

type registryEntry struct {
	test  Test
	order Order
	tag   string
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry holding the built-in validators.
func NewRegistry() *Registry {
	r := &Registry{
		entries:  make(map[string]registryEntry),
		validate: validator.New(),
	}
	for name, kind := range typeChecks {
		r.mustRegister(name, typeCheck(name, kind), "type")
	}
	r.mustRegister("required", Check(func(v any) string {
		if isEmpty(v) {
			return "is required"
		}
		return ""
	}), "required")
	for _, tag := range []string{"email", "url", "uuid", "hostname", "ip"} {
		if err := r.RegisterTag(tag, tag); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a named test. Any test already registered under name is an
// ErrDuplicateValidator; functions cannot be compared, so a redefinition
// cannot be told apart from a repeat.
func (r *Registry) Register(name string, test Test, order Order) error {
	return r.register(name, registryEntry{test: test, order: order})
}

func (r *Registry) register(name string, e registryEntry) error {
	if e.test == nil {
		return fmt.Errorf("validator %q: %w", name, ErrInvalidValidator)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[name]; ok {
		if e.tag != "" && existing.tag == e.tag {
			return nil
		}
		return fmt.Errorf("validator %q: %w", name, ErrDuplicateValidator)
	}
	r.entries[name] = e
	return nil
}

// RegisterTag registers a validator backed by a go-playground/validator tag
// expression, e.g. RegisterTag("port", "min=1,max=65535"). Registering the
// same tag under the same name again is a no-op; a different tag is an
// ErrDuplicateValidator.
func (r *Registry) RegisterTag(name, tag string) error {
	if tag == "" {
		return fmt.Errorf("validator %q: empty tag: %w", name, ErrInvalidValidator)
	}
	validate := r.validate
	test := func(value any, _ []Diagnostic, _ any) (fault *Fault) {
		defer func() {
			if p := recover(); p != nil {
				fault = &Fault{Message: fmt.Sprintf("must satisfy %s", tag)}
			}
		}()
		if value == nil {
			return &Fault{Message: fmt.Sprintf("must satisfy %s", tag)}
		}
		if err := validate.Var(value, tag); err != nil {
			return &Fault{Message: fmt.Sprintf("must be a valid %s", name)}
		}
		return nil
	}
	return r.register(name, registryEntry{test: test, order: 0, tag: tag})
}

// Lookup returns the test and default order registered under name.
func (r *Registry) Lookup(name string) (Test, Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, nil, false
	}
	return e.test, e.order, true
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Meta builds a Meta from spec, which may be:
//   - a Test or a func(any) string, wrapped as a new Meta (order 0);
//   - a registered name, resolved through the registry. An unknown name yields
//     a Meta that always fails, so the mistake shows up as a diagnostic;
//   - a *Meta, returned unchanged (options are ignored).
//
// Any other spec is a configuration error.
func (r *Registry) Meta(spec any, opts ...MetaOption) (*Meta, error) {
	var m *Meta
	switch s := spec.(type) {
	case *Meta:
		if s == nil {
			return nil, fmt.Errorf("nil meta: %w", ErrInvalidValidator)
		}
		return s, nil
	case Test:
		m = &Meta{name: "test", order: 0, test: s}
	case func(any, []Diagnostic, any) *Fault:
		m = &Meta{name: "test", order: 0, test: s}
	case func(any) string:
		m = &Meta{name: "test", order: 0, test: Check(s)}
	case string:
		if test, order, ok := r.Lookup(s); ok {
			m = &Meta{name: s, order: order, test: test}
		} else {
			msg := fmt.Sprintf("unknown validator %q", s)
			m = &Meta{name: s, order: 0, test: func(any, []Diagnostic, any) *Fault {
				return &Fault{Message: msg}
			}}
		}
	default:
		return nil, fmt.Errorf("%T: %w", spec, ErrInvalidValidator)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (r *Registry) mustRegister(name string, test Test, order Order) {
	if err := r.Register(name, test, order); err != nil {
		panic(err)
	}
}

var typeChecks = map[string]func(reflect.Value) bool{
	"string": func(v reflect.Value) bool { return v.Kind() == reflect.String },
	"number": func(v reflect.Value) bool { return isIntKind(v.Kind()) || isFloatKind(v.Kind()) },
	"integer": func(v reflect.Value) bool {
		if isIntKind(v.Kind()) {
			return true
		}
		if isFloatKind(v.Kind()) {
			f := v.Float()
			return !math.IsInf(f, 0) && f == math.Trunc(f)
		}
		return false
	},
	"boolean": func(v reflect.Value) bool { return v.Kind() == reflect.Bool },
	"array": func(v reflect.Value) bool {
		return v.Kind() == reflect.Slice || v.Kind() == reflect.Array
	},
	"object": func(v reflect.Value) bool {
		k := v.Kind()
		if k == reflect.Pointer {
			k = v.Type().Elem().Kind()
		}
		return k == reflect.Map || k == reflect.Struct
	},
	"function": func(v reflect.Value) bool { return v.Kind() == reflect.Func },
}

func typeCheck(name string, ok func(reflect.Value) bool) Test {
	msg := "must be a " + name
	return Check(func(value any) string {
		if value == nil {
			return msg
		}
		if !ok(reflect.ValueOf(value)) {
			return msg
		}
		return ""
	})
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// isEmpty mirrors the form package notion of "missing".
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
