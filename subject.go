package valuez

import "sync"

// Observer receives notifications from an Observable. Any callback may be nil.
type Observer[T any] struct {
	Next     func(T)
	Error    func(error)
	Complete func()
}

// Observable is anything that can be subscribed to.
type Observable[T any] interface {
	Subscribe(o Observer[T]) *Subscription
}

// Subscription represents an active registration with an Observable.
type Subscription struct {
	mu     sync.Mutex
	closed bool
	cancel func()
}

// Unsubscribe stops delivery to the observer. Calling it more than once is safe.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Closed reports whether the subscription has been cancelled.
func (s *Subscription) Closed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// closedSubscription returns a subscription that is already cancelled.
func closedSubscription() *Subscription {
	return &Subscription{closed: true}
}

type subscriber[T any] struct {
	observer Observer[T]
	sub      *Subscription
}

// Subject is a synchronous multicast emitter. When created with
// NewBehaviorSubject it replays the latest value to late subscribers.
//
// Delivery happens on the calling goroutine, depth-first, in subscription
// order. No lock is held while observers run, so an observer may push to the
// same subject again.
type Subject[T any] struct {
	mu          sync.Mutex
	replay      bool
	hasValue    bool
	value       T
	subscribers []*subscriber[T]
	done        bool
	err         error
}

// NewSubject creates a hot subject that does not replay values.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// NewBehaviorSubject creates a subject holding an initial value which is
// delivered to every new subscriber along with later values.
func NewBehaviorSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{replay: true, hasValue: true, value: initial}
}

// Subscribe registers an observer. A terminated subject delivers only its
// terminal notification and returns a closed subscription.
func (s *Subject[T]) Subscribe(o Observer[T]) *Subscription {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			if o.Error != nil {
				o.Error(err)
			}
		} else if o.Complete != nil {
			o.Complete()
		}
		return closedSubscription()
	}

	entry := &subscriber[T]{observer: o}
	sub := &Subscription{}
	sub.cancel = func() { s.remove(entry) }
	entry.sub = sub
	s.subscribers = append(s.subscribers, entry)

	replay, value := s.replay && s.hasValue, s.value
	s.mu.Unlock()

	if replay && o.Next != nil {
		o.Next(value)
	}
	return sub
}

// SubscribeFunc is shorthand for subscribing with only a Next callback.
func (s *Subject[T]) SubscribeFunc(fn func(T)) *Subscription {
	return s.Subscribe(Observer[T]{Next: fn})
}

// Next pushes a value to every current subscriber.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.value = v
	s.hasValue = true
	targets := s.snapshot()
	s.mu.Unlock()

	for _, t := range targets {
		if t.sub.Closed() {
			continue
		}
		if t.observer.Next != nil {
			t.observer.Next(v)
		}
	}
}

// Error terminates the subject with err.
func (s *Subject[T]) Error(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	targets := s.snapshot()
	s.subscribers = nil
	s.mu.Unlock()

	for _, t := range targets {
		if t.sub.Closed() {
			continue
		}
		if t.observer.Error != nil {
			t.observer.Error(err)
		}
	}
}

// Complete terminates the subject successfully.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	targets := s.snapshot()
	s.subscribers = nil
	s.mu.Unlock()

	for _, t := range targets {
		if t.sub.Closed() {
			continue
		}
		if t.observer.Complete != nil {
			t.observer.Complete()
		}
	}
}

// Value returns the latest value and whether one has been pushed.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Closed reports whether the subject has completed or errored.
func (s *Subject[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the terminal error, if any.
func (s *Subject[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Len returns the number of active subscribers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Subject[T]) snapshot() []*subscriber[T] {
	out := make([]*subscriber[T], len(s.subscribers))
	copy(out, s.subscribers)
	return out
}

func (s *Subject[T]) remove(entry *subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.subscribers {
		if e == entry {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// Map derives an observable that applies fn to every value of src.
func Map[A, B any](src Observable[A], fn func(A) B) Observable[B] {
	return observableFunc[B](func(o Observer[B]) *Subscription {
		return src.Subscribe(Observer[A]{
			Next: func(a A) {
				if o.Next != nil {
					o.Next(fn(a))
				}
			},
			Error:    o.Error,
			Complete: o.Complete,
		})
	})
}

// Distinct derives an observable that suppresses values whose key equals the
// key of the previously delivered value. Each subscription tracks its own
// last key.
func Distinct[T any, K comparable](src Observable[T], key func(T) K) Observable[T] {
	return observableFunc[T](func(o Observer[T]) *Subscription {
		var (
			last K
			seen bool
		)
		return src.Subscribe(Observer[T]{
			Next: func(v T) {
				k := key(v)
				if seen && k == last {
					return
				}
				last, seen = k, true
				if o.Next != nil {
					o.Next(v)
				}
			},
			Error:    o.Error,
			Complete: o.Complete,
		})
	})
}

type observableFunc[T any] func(Observer[T]) *Subscription

func (f observableFunc[T]) Subscribe(o Observer[T]) *Subscription {
	return f(o)
}
