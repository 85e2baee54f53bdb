// Package xchg exchanges typed arrays between Go and an embedded JavaScript
// runtime. An Exchange binds one runtime instance to the adapter that
// knows how to build and read typed arrays inside it; handles returned by
// an Exchange keep their values alive in the runtime heap until released.
package xchg

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
	"github.com/cryguy/xchg/internal/jsbridge"
	"github.com/cryguy/xchg/internal/script"
)

var (
	// ErrUnsupportedRuntime reports a runtime that neither ships an adapter
	// nor supports binary transfer.
	ErrUnsupportedRuntime = errors.New("runtime has no typed-array adapter")
	// ErrClosed reports use of an Exchange after Close.
	ErrClosed = errors.New("exchange is closed")
)

// Exchange forwards the exchange operations to the adapter selected for
// its runtime.
type Exchange struct {
	rt      core.JSRuntime
	adapter core.Adapter
	log     *zap.Logger
	release func()
	closed  atomic.Bool
}

type options struct {
	logger        *zap.Logger
	maxArrayBytes int
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger used by the exchange and a portable adapter.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxArrayBytes caps the size of arrays a portable adapter creates.
// Runtimes that ship their own adapter use their engine configuration.
func WithMaxArrayBytes(n int) Option {
	return func(o *options) { o.maxArrayBytes = n }
}

// New selects an adapter for rt. Runtimes created by this package carry
// their own; any other runtime that implements BinaryTransferer gets the
// portable adapter.
func New(rt JSRuntime, opts ...Option) (*Exchange, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	adapter, err := selectAdapter(rt, o)
	if err != nil {
		return nil, err
	}
	return newExchange(rt, adapter, o.logger, nil), nil
}

func selectAdapter(rt core.JSRuntime, o options) (core.Adapter, error) {
	if p, ok := rt.(core.AdapterProvider); ok {
		return p.Adapter(), nil
	}
	bt, ok := rt.(core.BinaryTransferer)
	if !ok {
		return nil, ErrUnsupportedRuntime
	}
	a, err := jsbridge.New("portable", rt, bt, nil, jsbridge.Options{
		MaxArrayBytes: o.maxArrayBytes,
		Logger:        o.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("installing portable adapter: %w", err)
	}
	return a, nil
}

func newExchange(rt core.JSRuntime, adapter core.Adapter, logger *zap.Logger, release func()) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exchange{
		rt:      rt,
		adapter: adapter,
		log:     logger.With(zap.String("component", "exchange"), zap.String("engine", adapter.Name())),
		release: release,
	}
}

// Backend names the adapter in use ("quickjs", "v8" or "portable").
func (x *Exchange) Backend() string { return x.adapter.Name() }

// Runtime returns the runtime the exchange is bound to.
func (x *Exchange) Runtime() JSRuntime { return x.rt }

// Live returns the number of handles that have not been fully released.
func (x *Exchange) Live() int { return x.adapter.Registry().Len() }

// Create allocates a typed array of kind inside the runtime holding data,
// converted element by element.
func (x *Exchange) Create(kind ElementKind, data []float64) (*Handle, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	return x.adapter.Create(kind, data)
}

// UpdateWithData overwrites the array's bytes. len(raw) must equal the
// array's byte length.
func (x *Exchange) UpdateWithData(h *Handle, raw []byte) error {
	if x.closed.Load() {
		return ErrClosed
	}
	return x.adapter.UpdateWithData(h, raw)
}

// FromValue copies the array's elements out.
func (x *Exchange) FromValue(h *Handle) ([]float64, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	return x.adapter.FromValue(h)
}

// RawFromValue copies the array's bytes out.
func (x *Exchange) RawFromValue(h *Handle) ([]byte, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	return x.adapter.RawFromValue(h)
}

// TypeFromValue reports the value's element kind, None for anything that
// is not a mappable typed array.
func (x *Exchange) TypeFromValue(h *Handle) (ElementKind, error) {
	if x.closed.Load() {
		return None, ErrClosed
	}
	return x.adapter.TypeFromValue(h)
}

// Import returns a handle to globalThis[name].
func (x *Exchange) Import(name string) (*Handle, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	return x.adapter.Import(name)
}

// Evaluate evaluates a JS expression and returns a handle to its value.
func (x *Exchange) Evaluate(expr string) (*Handle, error) {
	if x.closed.Load() {
		return nil, ErrClosed
	}
	return x.adapter.Evaluate(expr)
}

// Export publishes the handle's value as globalThis[name].
func (x *Exchange) Export(h *Handle, name string) error {
	if x.closed.Load() {
		return ErrClosed
	}
	return x.adapter.Export(h, name)
}

// Reclaim unpins values whose handles were released from other goroutines.
// Every other operation reclaims as well; call this when the exchange may
// sit idle.
func (x *Exchange) Reclaim() int {
	if x.closed.Load() {
		return 0
	}
	return x.adapter.Reclaim()
}

// Run compiles source (JavaScript or TypeScript) and evaluates it as a
// script. Top-level declarations, including let and const bindings, can be
// read back with Import and Evaluate.
func (x *Exchange) Run(source string, loader Loader) error {
	if x.closed.Load() {
		return ErrClosed
	}
	code, err := script.Compile(source, loader)
	if err != nil {
		return err
	}
	return x.adapter.WithHeap(func(rt core.JSRuntime) error {
		return rt.Eval(code)
	})
}

// RunFile loads, bundles if needed, and evaluates the script at path.
// Bundled scripts run in a function scope and publish values by assigning
// to globalThis.
func (x *Exchange) RunFile(path string) error {
	if x.closed.Load() {
		return ErrClosed
	}
	code, err := script.Load(path)
	if err != nil {
		return err
	}
	return x.adapter.WithHeap(func(rt core.JSRuntime) error {
		if err := rt.Eval(code); err != nil {
			return fmt.Errorf("running %s: %w", path, err)
		}
		return nil
	})
}

// SetGlobal sets globalThis[name] to a Go value.
func (x *Exchange) SetGlobal(name string, value any) error {
	if x.closed.Load() {
		return ErrClosed
	}
	return x.adapter.WithHeap(func(rt core.JSRuntime) error {
		return rt.SetGlobal(name, value)
	})
}

// Close releases the exchange. Pooled exchanges return their runtime to the
// engine, which unpins every value; handles still held become foreign.
func (x *Exchange) Close() error {
	if !x.closed.CompareAndSwap(false, true) {
		return nil
	}
	if live := x.adapter.Registry().Len(); live > 0 {
		x.log.Debug("closing exchange with live handles", zap.Int("live", live))
	}
	if x.release != nil {
		x.release()
		return nil
	}
	return x.adapter.Reset()
}
