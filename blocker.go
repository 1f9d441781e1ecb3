package valuez

import "sync"

// Blocker counts outstanding operations. A store holds a token while a
// transaction or virtual derivation is in flight and emits its snapshot
// only once the count returns to zero.
type Blocker struct {
	mu      sync.Mutex
	count   int
	subject *Subject[int]
}

// Token releases one unit of a Blocker.
type Token struct {
	once    sync.Once
	blocker *Blocker
}

// NewBlocker creates a blocker with no outstanding tokens.
func NewBlocker() *Blocker {
	return &Blocker{subject: NewBehaviorSubject(0)}
}

// Block takes a token.
func (b *Blocker) Block() *Token {
	b.mu.Lock()
	b.count++
	n := b.count
	b.mu.Unlock()
	b.subject.Next(n)
	return &Token{blocker: b}
}

// Done releases the token. Only the first call has an effect.
func (t *Token) Done() {
	t.once.Do(func() {
		b := t.blocker
		b.mu.Lock()
		b.count--
		n := b.count
		b.mu.Unlock()
		b.subject.Next(n)
	})
}

// Count returns the number of outstanding tokens.
func (b *Blocker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Blocked reports whether any token is outstanding.
func (b *Blocker) Blocked() bool {
	return b.Count() > 0
}

// Subscribe observes the outstanding count. Consecutive repeats are
// suppressed and the current count is delivered immediately.
func (b *Blocker) Subscribe(fn func(count int)) *Subscription {
	return Distinct[int, int](b.subject, func(n int) int { return n }).
		Subscribe(Observer[int]{Next: fn})
}

// Do runs fn while holding a token. A panic in fn is recovered and returned
// as the error.
func (b *Blocker) Do(fn func() (any, error)) (result any, err error) {
	token := b.Block()
	defer token.Done()
	if perr := safely(func() { result, err = fn() }); perr != nil {
		return nil, perr
	}
	return result, err
}

// Complete terminates the count stream.
func (b *Blocker) Complete() {
	b.subject.Complete()
}
