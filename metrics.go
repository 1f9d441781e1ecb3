package valuez

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus,
// StatsD, etc. Implement this interface to receive callbacks on key store
// events.
type MetricsProvider interface {
	// OnFieldChange is called when a field commits. valid reports whether the
	// value passed validation.
	OnFieldChange(store, field string, valid bool, duration time.Duration)

	// OnAction is called when a store method finishes. err is nil on success.
	OnAction(store, action string, err error, duration time.Duration)

	// OnSnapshot is called when a store emits a snapshot.
	OnSnapshot(store string)

	// OnRollback is called when a failed transaction restores its fields.
	OnRollback(store string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnFieldChange(_, _ string, _ bool, _ time.Duration) {}
func (NoOpMetricsProvider) OnAction(_, _ string, _ error, _ time.Duration)     {}
func (NoOpMetricsProvider) OnSnapshot(_ string)                               {}
func (NoOpMetricsProvider) OnRollback(_ string)                               {}
