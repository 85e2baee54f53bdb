//go:build v8

package v8engine

import (
	"fmt"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/xchg/internal/core"
)

// kindInspector maps values through V8's public type predicates instead
// of class tags, which scripts can spoof with Symbol.toStringTag.
type kindInspector struct {
	r *v8Runtime
}

func (ki kindInspector) KindOf(pin string) (core.ElementKind, error) {
	val, err := ki.r.ctx.RunScript(pin, "inspect.js")
	if err != nil {
		return core.None, fmt.Errorf("reading pinned value: %w", err)
	}
	if val == nil {
		return core.None, nil
	}
	return kindOfValue(val), nil
}

func kindOfValue(val *v8.Value) core.ElementKind {
	switch {
	case val.IsInt8Array():
		return core.Int8Array
	case val.IsInt16Array():
		return core.Int16Array
	case val.IsInt32Array():
		return core.Int32Array
	case val.IsUint8Array():
		return core.Uint8Array
	case val.IsUint8ClampedArray():
		return core.Uint8ClampedArray
	case val.IsUint16Array():
		return core.Uint16Array
	case val.IsUint32Array():
		return core.Uint32Array
	case val.IsFloat32Array():
		return core.Float32Array
	case val.IsFloat64Array():
		return core.Float64Array
	case val.IsArrayBuffer():
		return core.ArrayBuffer
	default:
		// BigInt64Array, BigUint64Array, DataView and SharedArrayBuffer have
		// no public kind.
		return core.None
	}
}
