// Package jsbridge implements the typed-array exchange primitives on top of
// core.JSRuntime and core.BinaryTransferer. Engine packages supply the
// runtime and an Inspector for their own kind tagging scheme.
package jsbridge

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
	"github.com/cryguy/xchg/internal/handles"
)

// Global names used to move bytes across the boundary. The __tmp_ prefix
// matches the cleanup sweep run by Reset.
const (
	inGlobal  = "__tmp_xchg_in"
	outGlobal = "__tmp_xchg_out"
)

// pinKey identifies a value in the runtime's pin table.
type pinKey int64

// expr returns the JS expression that reads the pinned value.
func (k pinKey) expr() string {
	return fmt.Sprintf("globalThis.__xchg_pins[%d]", int64(k))
}

// Inspector maps a pinned runtime value to its public element kind.
type Inspector interface {
	// KindOf inspects the value produced by the JS expression pin.
	KindOf(pin string) (core.ElementKind, error)
}

// Adapter implements core.Adapter for one runtime instance. Heap access is
// serialized by mu; handle reference counts are not.
type Adapter struct {
	name     string
	rt       core.JSRuntime
	bt       core.BinaryTransferer
	inspect  Inspector
	maxBytes int
	log      *zap.Logger

	mu      sync.Mutex
	reg     *handles.Registry
	nextPin pinKey
}

var _ core.Adapter = (*Adapter)(nil)

// Options configures an Adapter.
type Options struct {
	// MaxArrayBytes caps the byte size Create will attempt. Zero disables
	// the cap.
	MaxArrayBytes int
	Logger        *zap.Logger
}

// New installs the pin table in rt and returns an adapter for it. A nil
// inspector selects the class-tag inspector.
func New(name string, rt core.JSRuntime, bt core.BinaryTransferer, inspect Inspector, opts Options) (*Adapter, error) {
	if inspect == nil {
		inspect = TagInspector{RT: rt}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := rt.Eval(setupPinsJS); err != nil {
		return nil, fmt.Errorf("installing pin table: %w", err)
	}
	return &Adapter{
		name:     name,
		rt:       rt,
		bt:       bt,
		inspect:  inspect,
		maxBytes: opts.MaxArrayBytes,
		log:      logger.With(zap.String("component", "adapter"), zap.String("engine", name)),
		reg:      handles.NewRegistry(),
	}, nil
}

// Name returns the engine name the adapter was created with.
func (a *Adapter) Name() string { return a.name }

// Registry returns the registry handles are currently issued from.
func (a *Adapter) Registry() *handles.Registry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reg
}

// Create allocates a typed array of kind inside the runtime and fills it
// with data converted element by element.
func (a *Adapter) Create(kind core.ElementKind, data []float64) (*handles.Handle, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: cannot create %s", core.ErrUnsupportedKind, kind)
	}
	if size := len(data) * kind.Size(); a.maxBytes > 0 && size > a.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", core.ErrAllocation, size, a.maxBytes)
	}
	raw, err := core.EncodeElements(kind, data)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()

	if err := a.bt.WriteBinaryToJS(inGlobal, raw); err != nil {
		a.dropTemp(inGlobal)
		return nil, fmt.Errorf("%w: %s of %d elements: %v", core.ErrAllocation, kind, len(data), err)
	}
	key := a.allocPin()
	if err := a.rt.Eval(createJS(key, kind)); err != nil {
		a.dropTemp(inGlobal)
		return nil, fmt.Errorf("%w: %s of %d elements: %v", core.ErrAllocation, kind, len(data), err)
	}
	return a.reg.Acquire(key), nil
}

// UpdateWithData overwrites the array's bytes in place. The array is left
// untouched unless len(raw) equals its byte length.
func (a *Adapter) UpdateWithData(h *handles.Handle, raw []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	key, err := a.pinOf(h)
	if err != nil {
		return err
	}

	if _, err := a.requireArray(key); err != nil {
		return err
	}
	n, err := a.byteLength(key)
	if err != nil {
		return err
	}
	if len(raw) != n {
		return &core.LengthMismatchError{Want: n, Got: len(raw)}
	}
	if n == 0 {
		return nil
	}
	if err := a.bt.WriteBinaryToJS(inGlobal, raw); err != nil {
		a.dropTemp(inGlobal)
		return fmt.Errorf("staging update bytes: %w", err)
	}
	if err := a.rt.Eval(updateJS(key)); err != nil {
		a.dropTemp(inGlobal)
		return fmt.Errorf("writing update into %s: %w", key.expr(), err)
	}
	return nil
}

// FromValue copies the array's elements out, widening each to float64.
func (a *Adapter) FromValue(h *handles.Handle) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	key, err := a.pinOf(h)
	if err != nil {
		return nil, err
	}

	kind, err := a.requireArray(key)
	if err != nil {
		return nil, err
	}
	raw, err := a.readRaw(key)
	if err != nil {
		return nil, err
	}
	return core.DecodeElements(kind, raw)
}

// RawFromValue copies the array's underlying bytes out verbatim.
func (a *Adapter) RawFromValue(h *handles.Handle) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	key, err := a.pinOf(h)
	if err != nil {
		return nil, err
	}

	if _, err := a.requireArray(key); err != nil {
		return nil, err
	}
	return a.readRaw(key)
}

// TypeFromValue reports the value's element kind through the engine's
// inspector. Values that are not typed arrays report None.
func (a *Adapter) TypeFromValue(h *handles.Handle) (core.ElementKind, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	key, err := a.pinOf(h)
	if err != nil {
		return core.None, err
	}
	return a.inspect.KindOf(key.expr())
}

// Import pins the global named globalName. Identifiers resolve the way a
// script reference would, so top-level let and const bindings are found
// as well as properties of globalThis.
func (a *Adapter) Import(globalName string) (*handles.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()

	ref := fmt.Sprintf("globalThis[%q]", globalName)
	check := fmt.Sprintf("%q in globalThis", globalName)
	if isIdentifier(globalName) {
		ref = "(" + globalName + ")"
		check = fmt.Sprintf("(function() { try { void %s; return true; } catch (e) { return false; } })()", ref)
	}
	ok, err := a.rt.EvalBool(check)
	if err != nil {
		return nil, fmt.Errorf("checking global %q: %w", globalName, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: global %q", core.ErrNotFound, globalName)
	}
	return a.pinLocked(ref)
}

// Evaluate evaluates expr and pins its result.
func (a *Adapter) Evaluate(expr string) (*handles.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	return a.pinLocked("(" + expr + ")")
}

// Export assigns the handle's value to globalThis[globalName].
func (a *Adapter) Export(h *handles.Handle, globalName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	key, err := a.pinOf(h)
	if err != nil {
		return err
	}
	if err := a.rt.Eval(fmt.Sprintf("globalThis[%q] = %s;", globalName, key.expr())); err != nil {
		return fmt.Errorf("exporting handle %d as %q: %w", h.ID(), globalName, err)
	}
	return nil
}

// WithHeap runs fn while holding the heap lock. Released values are
// unpinned first.
func (a *Adapter) WithHeap(fn func(rt core.JSRuntime) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reclaimLocked()
	return fn(a.rt)
}

// Reclaim unpins values whose handles were fully released.
func (a *Adapter) Reclaim() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reclaimLocked()
}

// Reset unpins everything, sweeps temporary globals and starts a fresh
// registry. Handles issued earlier become foreign to this adapter.
func (a *Adapter) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if leaked := a.reg.Len(); leaked > 0 {
		a.log.Warn("resetting adapter with live handles", zap.Int("live", leaked))
	}
	a.reg = handles.NewRegistry()
	a.nextPin = 0
	return a.rt.Eval(resetPinsJS)
}

func (a *Adapter) allocPin() pinKey {
	a.nextPin++
	return a.nextPin
}

// pinOf validates h against the current registry and returns its pin key.
// Using a released handle is a host defect and aborts.
func (a *Adapter) pinOf(h *handles.Handle) (pinKey, error) {
	if !a.reg.Owns(h) {
		return 0, core.ErrForeignHandle
	}
	if !h.Live() {
		err := fmt.Errorf("%w: use of released handle %d", core.ErrRefCountInvariant, h.ID())
		core.Abort(err)
		return 0, err
	}
	return h.Ref().(pinKey), nil
}

func (a *Adapter) pinLocked(expr string) (*handles.Handle, error) {
	key := a.allocPin()
	if err := a.rt.Eval(fmt.Sprintf("%s = %s;", key.expr(), expr)); err != nil {
		return nil, fmt.Errorf("pinning %s: %w", expr, err)
	}
	return a.reg.Acquire(key), nil
}

func (a *Adapter) reclaimLocked() int {
	var keys []int64
	n := a.reg.Reclaim(func(ref any) {
		keys = append(keys, int64(ref.(pinKey)))
	})
	if n == 0 {
		return 0
	}
	if err := a.rt.Eval(unpinJS(keys)); err != nil {
		a.log.Error("unpinning released values", zap.Int("count", n), zap.Error(err))
	}
	return n
}

// requireArray returns the value's kind, or ErrUnsupportedKind when the
// value is not a typed array or buffer the adapter can map.
func (a *Adapter) requireArray(key pinKey) (core.ElementKind, error) {
	kind, err := a.inspect.KindOf(key.expr())
	if err != nil {
		return core.None, err
	}
	if !kind.Valid() {
		return core.None, fmt.Errorf("%w: value is not a typed array", core.ErrUnsupportedKind)
	}
	return kind, nil
}

func (a *Adapter) byteLength(key pinKey) (int, error) {
	n, err := a.rt.EvalInt("__xchg_byte_length(" + key.expr() + ")")
	if err != nil {
		return 0, fmt.Errorf("reading byte length: %w", err)
	}
	return n, nil
}

// readRaw snapshots the value's bytes into a fresh host slice.
func (a *Adapter) readRaw(key pinKey) ([]byte, error) {
	n, err := a.byteLength(key)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	if err := a.rt.Eval(snapshotJS(key, a.bt.BinaryMode())); err != nil {
		a.dropTemp(outGlobal)
		return nil, fmt.Errorf("snapshotting %s: %w", key.expr(), err)
	}
	raw, err := a.bt.ReadBinaryFromJS(outGlobal)
	if err != nil {
		a.dropTemp(outGlobal)
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(raw) != n {
		return nil, fmt.Errorf("snapshot returned %d bytes, array holds %d", len(raw), n)
	}
	return raw, nil
}

func (a *Adapter) dropTemp(name string) {
	_ = a.rt.Eval(fmt.Sprintf("delete globalThis[%q];", name))
}

// reservedWords are names that parse as identifiers but are not bindings.
var reservedWords = map[string]bool{
	"arguments": true, "await": true, "break": true, "case": true, "catch": true,
	"class": true, "const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "eval": true,
	"export": true, "extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true, "in": true,
	"instanceof": true, "interface": true, "let": true, "new": true, "null": true,
	"package": true, "private": true, "protected": true, "public": true, "return": true,
	"static": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true,
}

// isIdentifier reports whether name is a plain ASCII identifier that can be
// referenced directly in script source.
func isIdentifier(name string) bool {
	if name == "" || reservedWords[name] {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
