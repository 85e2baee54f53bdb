package core

import "github.com/cryguy/xchg/internal/handles"

// Adapter implements the typed-array exchange primitives for exactly one
// runtime implementation.
type Adapter interface {
	// Name identifies the runtime the adapter serves.
	Name() string

	// Create allocates a typed array of kind holding data and returns a
	// handle to it.
	Create(kind ElementKind, data []float64) (*handles.Handle, error)

	// UpdateWithData overwrites the array's contents in place. The length of
	// raw must equal the array's byte length.
	UpdateWithData(h *handles.Handle, raw []byte) error

	// FromValue copies the array's elements out as host numbers.
	FromValue(h *handles.Handle) ([]float64, error)

	// RawFromValue copies the array's underlying bytes out verbatim.
	RawFromValue(h *handles.Handle) ([]byte, error)

	// TypeFromValue reports the value's element kind, or None when it is
	// not a typed array the adapter can map.
	TypeFromValue(h *handles.Handle) (ElementKind, error)

	// Import pins the value of a global variable and returns a handle.
	Import(globalName string) (*handles.Handle, error)

	// Evaluate evaluates a JS expression and returns a handle to the result.
	Evaluate(expr string) (*handles.Handle, error)

	// Export assigns the handle's value to a global variable.
	Export(h *handles.Handle, globalName string) error

	// WithHeap runs fn with exclusive access to the runtime heap, so that
	// scripts never interleave with an exchange operation.
	WithHeap(fn func(rt JSRuntime) error) error

	// Reclaim unpins values whose handles were fully released and returns
	// how many were unpinned.
	Reclaim() int

	// Reset drops every pinned value and starts a fresh registry. Handles
	// issued before the reset are rejected afterwards.
	Reset() error

	// Registry returns the registry handles are currently issued from.
	Registry() *handles.Registry
}

// AdapterProvider is implemented by runtimes that ship their own adapter.
type AdapterProvider interface {
	Adapter() Adapter
}
