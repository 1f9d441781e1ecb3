package valuez

import "sync"

// errorRing keeps the most recent store errors. A ring of size zero keeps
// only the latest one.
type errorRing struct {
	mu     sync.RWMutex
	errors []*StoreError
	size   int
	head   int
	count  int
	latest *StoreError
}

// newErrorRing creates a ring holding up to size errors.
func newErrorRing(size int) *errorRing {
	if size < 0 {
		size = 0
	}
	return &errorRing{
		errors: make([]*StoreError, size),
		size:   size,
	}
}

// push records err.
func (r *errorRing) push(err *StoreError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest = err
	if r.size == 0 {
		return
	}
	r.errors[r.head] = err
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// last returns the most recent error, or nil.
func (r *errorRing) last() *StoreError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// clear forgets every recorded error.
func (r *errorRing) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.errors {
		r.errors[i] = nil
	}
	r.head = 0
	r.count = 0
	r.latest = nil
}

// all returns the retained errors, oldest first.
func (r *errorRing) all() []*StoreError {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}
	result := make([]*StoreError, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		result[i] = r.errors[(start+i)%r.size]
	}
	return result
}
