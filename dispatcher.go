package valuez

import (
	"fmt"
	"reflect"
	"regexp"
	"sync"
)

// HandlerFunc runs when a Change enters a matching stage. It may call
// c.Next to rewrite the value seen by later stages, or c.Error to abort.
type HandlerFunc func(c *Change)

// Predicate is a functional condition evaluated with the change's current
// value, the change itself and the change's owner (a *Field or *Store).
type Predicate func(value any, c *Change, owner any) bool

// Matcher tests a single condition field.
type Matcher interface {
	Match(v any) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(v any) bool

// Match implements Matcher.
func (f MatcherFunc) Match(v any) bool { return f(v) }

// Is matches values equal to want with ==.
func Is(want any) Matcher {
	want = normalize(want)
	return MatcherFunc(func(v any) bool {
		v = normalize(v)
		if !isComparable(v) || !isComparable(want) {
			return false
		}
		return v == want
	})
}

// Like matches string values against a regular expression.
func Like(pattern string) Matcher {
	return Pattern(regexp.MustCompile(pattern))
}

// Pattern matches string values against re.
func Pattern(re *regexp.Regexp) Matcher {
	return MatcherFunc(func(v any) bool {
		s, ok := normalize(v).(string)
		return ok && re.MatchString(s)
	})
}

// OneOf matches values equal to any of the candidates.
func OneOf(candidates ...any) Matcher {
	matchers := make([]Matcher, len(candidates))
	for i, c := range candidates {
		matchers[i] = Is(c)
	}
	return MatcherFunc(func(v any) bool {
		for _, m := range matchers {
			if m.Match(v) {
				return true
			}
		}
		return false
	})
}

// Equal matches values deeply equal to want.
func Equal(want any) Matcher {
	want = normalize(want)
	return MatcherFunc(func(v any) bool {
		return reflect.DeepEqual(normalize(v), want)
	})
}

// Condition selects the changes a handler runs for. Nil fields match
// everything.
type Condition struct {
	Action Matcher
	Stage  Matcher
	When   Predicate
}

func (c Condition) matches(ch *Change) bool {
	if c.Action != nil && !c.Action.Match(ch.Action) {
		return false
	}
	if c.Stage != nil && !c.Stage.Match(ch.stage) {
		return false
	}
	if c.When != nil && !c.When(ch.value, ch, ch.owner) {
		return false
	}
	return true
}

type handler struct {
	cond Condition
	fn   HandlerFunc
}

// Dispatcher holds stage handlers. Handlers run synchronously, in
// registration order, as changes pass through matching stages.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []*handler
}

var (
	defaultDispatcher     *Dispatcher
	defaultDispatcherOnce sync.Once
)

// DefaultDispatcher returns the process-wide dispatcher.
func DefaultDispatcher() *Dispatcher {
	defaultDispatcherOnce.Do(func() {
		defaultDispatcher = NewDispatcher()
	})
	return defaultDispatcher
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// On registers fn for changes matching cond. The returned function removes
// the handler.
func (d *Dispatcher) On(cond Condition, fn HandlerFunc) func() {
	h := &handler{cond: cond, fn: fn}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, e := range d.handlers {
				if e == h {
					d.handlers = append(d.handlers[:i], d.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// dispatch runs the handlers matching c's current stage. A panicking
// handler errors the change.
func (d *Dispatcher) dispatch(c *Change) {
	d.mu.RLock()
	handlers := append([]*handler(nil), d.handlers...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if c.terminated {
			return
		}
		if !h.cond.matches(c) {
			continue
		}
		if err := safely(func() { h.fn(c) }); err != nil {
			c.Error(err)
		}
	}
}

// safely runs fn and converts a panic into an error.
func safely(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", p)
		}
	}()
	fn()
	return nil
}

func normalize(v any) any {
	if s, ok := v.(Stage); ok {
		return string(s)
	}
	return v
}

func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}
