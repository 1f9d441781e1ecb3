package valuez

import "github.com/zoobzio/capitan"

// Field signals.
var (
	// FieldChanged is emitted when a field commits a valid value.
	FieldChanged = capitan.NewSignal(
		"valuez.field.changed",
		"Field committed a valid value",
	)

	// FieldRejected is emitted when a field value fails validation.
	FieldRejected = capitan.NewSignal(
		"valuez.field.rejected",
		"Field value failed validation",
	)
)

// Store signals.
var (
	// ActionSucceeded is emitted when a store method completes.
	ActionSucceeded = capitan.NewSignal(
		"valuez.action.succeeded",
		"Store action completed",
	)

	// ActionFailed is emitted when a store method errors.
	ActionFailed = capitan.NewSignal(
		"valuez.action.failed",
		"Store action failed",
	)

	// VirtualCircular is emitted when a virtual is read while being derived.
	VirtualCircular = capitan.NewSignal(
		"valuez.virtual.circular",
		"Circular virtual derivation",
	)

	// SnapshotEmitted is emitted each time a store pushes a snapshot.
	SnapshotEmitted = capitan.NewSignal(
		"valuez.store.snapshot",
		"Store snapshot emitted",
	)

	// TransactionRolledBack is emitted when a failed transaction restores
	// its fields.
	TransactionRolledBack = capitan.NewSignal(
		"valuez.transaction.rolledback",
		"Transaction rolled back",
	)

	// StoreCompleted is emitted when a store is torn down.
	StoreCompleted = capitan.NewSignal(
		"valuez.store.completed",
		"Store completed",
	)
)

// Binding signals.
var (
	// BindingStarted is emitted when a Binding begins watching.
	BindingStarted = capitan.NewSignal(
		"valuez.binding.started",
		"Binding watching started",
	)

	// BindingStopped is emitted when a Binding stops watching.
	BindingStopped = capitan.NewSignal(
		"valuez.binding.stopped",
		"Binding watching stopped",
	)

	// BindingStateChanged is emitted when a Binding transitions between states.
	BindingStateChanged = capitan.NewSignal(
		"valuez.binding.state.changed",
		"Binding state transition",
	)

	// BindingDocumentReceived is emitted when raw data arrives from the watcher.
	BindingDocumentReceived = capitan.NewSignal(
		"valuez.binding.document.received",
		"Raw document received from watcher",
	)

	// BindingDecodeFailed is emitted when a document cannot be decoded.
	BindingDecodeFailed = capitan.NewSignal(
		"valuez.binding.decode.failed",
		"Document decode failed",
	)

	// BindingApplyFailed is emitted when a decoded document is rejected.
	BindingApplyFailed = capitan.NewSignal(
		"valuez.binding.apply.failed",
		"Document rejected by store",
	)

	// BindingApplySucceeded is emitted when a document is applied.
	BindingApplySucceeded = capitan.NewSignal(
		"valuez.binding.apply.succeeded",
		"Document applied to store",
	)
)
