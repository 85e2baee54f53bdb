package jsbridge

import (
	"fmt"
	"strings"

	"github.com/cryguy/xchg/internal/core"
)

// TagInspector reads a value's internal typed array name through the
// intrinsic accessors captured by the pin table setup, so an own
// Symbol.toStringTag or a swapped prototype does not change the result.
// Other values, and names without a public mapping such as BigInt64Array,
// DataView or SharedArrayBuffer, report None.
type TagInspector struct {
	RT core.JSRuntime
}

// KindOf implements Inspector.
func (ti TagInspector) KindOf(pin string) (core.ElementKind, error) {
	tag, err := ti.RT.EvalString(fmt.Sprintf("__xchg_kind(%s)", pin))
	if err != nil {
		return core.None, fmt.Errorf("reading typed array name: %w", err)
	}
	return KindFromTag(tag), nil
}

// KindFromTag maps a class tag or constructor name to a kind.
func KindFromTag(tag string) core.ElementKind {
	name := strings.TrimSuffix(strings.TrimPrefix(tag, "[object "), "]")
	switch name {
	case "Int8Array":
		return core.Int8Array
	case "Int16Array":
		return core.Int16Array
	case "Int32Array":
		return core.Int32Array
	case "Uint8Array":
		return core.Uint8Array
	case "Uint8ClampedArray":
		return core.Uint8ClampedArray
	case "Uint16Array":
		return core.Uint16Array
	case "Uint32Array":
		return core.Uint32Array
	case "Float32Array":
		return core.Float32Array
	case "Float64Array":
		return core.Float64Array
	case "ArrayBuffer":
		return core.ArrayBuffer
	default:
		return core.None
	}
}
