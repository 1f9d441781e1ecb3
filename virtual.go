package valuez

import (
	"fmt"

	"github.com/zoobzio/capitan"
)

// VirtualFunc derives a value from the store. It may read fields and other
// virtuals through Get.
type VirtualFunc func(s *Store, args ...any) (any, error)

type virtual struct {
	name          string
	fn            VirtualFunc
	allowRedefine bool
}

// VirtualOption configures a virtual.
type VirtualOption func(*virtual)

// AllowRedefine lets a later AddVirtual with the same name replace this one.
func AllowRedefine() VirtualOption {
	return func(v *virtual) { v.allowRedefine = true }
}

// AddVirtual registers a derived value. It appears in every snapshot under
// name unless a field of the same name shadows it.
func (s *Store) AddVirtual(name string, fn VirtualFunc, opts ...VirtualOption) error {
	if err := s.checkRegister(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("store %q: virtual %q: %w", s.name, name, ErrInvalidValidator)
	}
	if _, ok := s.methods[name]; ok {
		return fmt.Errorf("store %q: %q: %w", s.name, name, ErrDuplicateName)
	}
	if _, ok := s.setters[name]; ok {
		return fmt.Errorf("store %q: %q: %w", s.name, name, ErrDuplicateName)
	}

	v := &virtual{name: name, fn: fn}
	for _, opt := range opts {
		opt(v)
	}
	if prev, ok := s.virtuals[name]; ok {
		if !prev.allowRedefine {
			return fmt.Errorf("store %q: virtual %q: %w", s.name, name, ErrDuplicateName)
		}
	} else {
		s.virtualOrder = append(s.virtualOrder, name)
	}
	s.virtuals[name] = v
	s.emit()
	return nil
}

// Derive runs fn as the derivation of name. Emission is deferred while it
// runs. Reading name again from inside fn fails with ErrCircular instead of
// recursing.
func (s *Store) Derive(name string, fn VirtualFunc, args ...any) (any, error) {
	if s.deriving[name] {
		capitan.Emit(s.ctx, VirtualCircular, KeyStore.Field(s.name), KeyField.Field(name))
		return nil, fmt.Errorf("store %q: virtual %q: %w", s.name, name, ErrCircular)
	}
	// The mark must be gone before the blocker releases, since the release
	// may emit a pending snapshot that derives name again.
	s.deriving[name] = true
	return s.blocker.Do(func() (any, error) {
		defer delete(s.deriving, name)
		return fn(s, args...)
	})
}
