package valuez

// State is the health of a Binding.
type State int32

const (
	// StateLoading means no document has been processed yet.
	StateLoading State = iota

	// StateHealthy means the last document was applied to the store.
	StateHealthy

	// StateDegraded means the last document was rejected. The store keeps
	// the values from the last document that applied.
	StateDegraded

	// StateEmpty means no document has ever applied. The binding keeps
	// watching for one that does.
	StateEmpty
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}
