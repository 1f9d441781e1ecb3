package valuez

import (
	"encoding/json"
	"fmt"
)

// Serializer reduces a projected snapshot to a string. Watch suppresses a
// projection whose serialization equals the previous one.
type Serializer func(Container) string

// StableSerializer renders a container as JSON with sorted keys.
func StableSerializer(c Container) string {
	plain := Plain(c)
	b, err := json.Marshal(plain)
	if err != nil {
		return fmt.Sprintf("%v", plain)
	}
	return string(b)
}

// Watch calls fn with the projection of each snapshot onto names, skipping
// projections that serialize the same as the last one delivered. With no
// names the whole snapshot is watched. A nil serializer means
// StableSerializer. The current projection is delivered immediately.
func (s *Store) Watch(fn func(Container), serializer Serializer, names ...string) (*Subscription, error) {
	for _, name := range names {
		if _, ok := s.entries[name]; ok {
			continue
		}
		if _, ok := s.virtuals[name]; ok {
			continue
		}
		return nil, fmt.Errorf("store %q: watch %q: %w", s.name, name, ErrUnknownName)
	}
	if serializer == nil {
		serializer = StableSerializer
	}

	project := func(snap Container) Container {
		if len(names) == 0 {
			return snap
		}
		out := s.newContainer()
		for _, name := range names {
			if v, ok := snap.Get(name); ok {
				out.Set(name, v)
				continue
			}
			if v, err := s.Get(name); err == nil {
				out.Set(name, v)
			}
		}
		return out
	}

	projected := Map[Container, Container](s.valuesSubject(), project)
	sub := Distinct[Container, string](projected, serializer).
		Subscribe(Observer[Container]{Next: fn})
	s.subs = append(s.subs, sub)
	return sub, nil
}
