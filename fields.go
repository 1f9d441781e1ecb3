package valuez

import "github.com/zoobzio/capitan"

// Field keys for store and binding events.
var (
	// KeyStore is the name of the store.
	KeyStore = capitan.NewStringKey("store")

	// KeyField is the name of the field or virtual involved.
	KeyField = capitan.NewStringKey("field")

	// KeyAction is the name of the action being performed.
	KeyAction = capitan.NewStringKey("action")

	// KeyStage is the stage at which a change errored.
	KeyStage = capitan.NewStringKey("stage")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyDuration is how long a change or action took.
	KeyDuration = capitan.NewDurationKey("duration")

	// KeyFields is the number of entries in an emitted snapshot.
	KeyFields = capitan.NewIntKey("fields")

	// KeyState is the current state of a Binding.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")
)
