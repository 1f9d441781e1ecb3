package valuez

import (
	"sort"
	"strings"
	"sync"
)

// DefaultOrderKeys is the priority ordering used when none is given.
var DefaultOrderKeys = []Order{"required", "type", 0, 1, 2}

// MetaList is an ordered, leveled collection of Metas.
//
// Annotate evaluates one level at a time. As soon as a level produces a
// diagnostic, later levels are skipped; a diagnostic with Stop set halts
// evaluation immediately, including the rest of its own level.
type MetaList struct {
	metas     []*Meta
	orderKeys []Order

	mu        sync.Mutex
	signature string
	levels    [][]*Meta
}

// NewMetaList creates a list with the given priority ordering. A nil
// orderKeys uses DefaultOrderKeys.
func NewMetaList(orderKeys []Order, metas ...*Meta) *MetaList {
	if orderKeys == nil {
		orderKeys = DefaultOrderKeys
	}
	l := &MetaList{orderKeys: append([]Order(nil), orderKeys...)}
	l.Add(metas...)
	return l
}

// Add appends metas. Nil entries are ignored.
func (l *MetaList) Add(metas ...*Meta) {
	for _, m := range metas {
		if m != nil {
			l.metas = append(l.metas, m)
		}
	}
	l.invalidate()
}

func (l *MetaList) invalidate() {
	l.mu.Lock()
	l.levels = nil
	l.mu.Unlock()
}

// Remove drops every meta with the given name and reports whether any were
// removed.
func (l *MetaList) Remove(name string) bool {
	kept := l.metas[:0]
	removed := false
	for _, m := range l.metas {
		if m.name == name {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(l.metas); i++ {
		l.metas[i] = nil
	}
	l.metas = kept
	if removed {
		l.invalidate()
	}
	return removed
}

// Metas returns a copy of the metas in insertion order.
func (l *MetaList) Metas() []*Meta {
	return append([]*Meta(nil), l.metas...)
}

// Len returns the number of metas.
func (l *MetaList) Len() int {
	return len(l.metas)
}

// OrderKeys returns the declared priority ordering.
func (l *MetaList) OrderKeys() []Order {
	return append([]Order(nil), l.orderKeys...)
}

// Annotate evaluates value and returns the diagnostics in a deterministic
// order. A nil result means the value is valid.
func (l *MetaList) Annotate(value any) []Diagnostic {
	var out []Diagnostic
	for _, level := range l.orderMetas() {
		before := len(out)
		for _, m := range level {
			d := m.Process(value, out)
			if d == nil {
				continue
			}
			out = append(out, *d)
			if d.Stop {
				return out
			}
		}
		if len(out) > before {
			return out
		}
	}
	return out
}

// orderMetas returns metas grouped by order, memoized on the (name, order)
// signature of the current meta set.
func (l *MetaList) orderMetas() [][]*Meta {
	parts := make([]string, len(l.metas))
	for i, m := range l.metas {
		parts[i] = m.signature()
	}
	sig := strings.Join(parts, "|")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.levels != nil && sig == l.signature {
		return l.levels
	}

	type group struct {
		order Order
		rank  int
		metas []*Meta
	}
	var groups []*group
	index := make(map[Order]*group)
	for _, m := range l.metas {
		g, ok := index[m.order]
		if !ok {
			g = &group{order: m.order, rank: l.rank(m.order)}
			index[m.order] = g
			groups = append(groups, g)
		}
		g.metas = append(g.metas, m)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].rank < groups[j].rank
	})

	levels := make([][]*Meta, len(groups))
	for i, g := range groups {
		levels[i] = g.metas
	}
	l.signature = sig
	l.levels = levels
	return levels
}

// rank is the position of order in orderKeys; unlisted orders rank last.
func (l *MetaList) rank(order Order) int {
	for i, k := range l.orderKeys {
		if k == order {
			return i
		}
	}
	return len(l.orderKeys)
}
