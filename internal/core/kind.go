package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// ElementKind identifies the numeric element format of a typed array, or
// None for values that are not typed arrays.
type ElementKind uint8

const (
	None ElementKind = iota
	Int8Array
	Int16Array
	Int32Array
	Uint8Array
	Uint8ClampedArray
	Uint16Array
	Uint32Array
	Float32Array
	Float64Array
	ArrayBuffer
)

// Kinds lists every kind except None, in declaration order.
var Kinds = []ElementKind{
	Int8Array,
	Int16Array,
	Int32Array,
	Uint8Array,
	Uint8ClampedArray,
	Uint16Array,
	Uint32Array,
	Float32Array,
	Float64Array,
	ArrayBuffer,
}

// String returns the script-side constructor name of the kind.
func (k ElementKind) String() string {
	switch k {
	case None:
		return "None"
	case Int8Array:
		return "Int8Array"
	case Int16Array:
		return "Int16Array"
	case Int32Array:
		return "Int32Array"
	case Uint8Array:
		return "Uint8Array"
	case Uint8ClampedArray:
		return "Uint8ClampedArray"
	case Uint16Array:
		return "Uint16Array"
	case Uint32Array:
		return "Uint32Array"
	case Float32Array:
		return "Float32Array"
	case Float64Array:
		return "Float64Array"
	case ArrayBuffer:
		return "ArrayBuffer"
	default:
		return fmt.Sprintf("ElementKind(%d)", uint8(k))
	}
}

// Valid reports whether k names a concrete array kind.
func (k ElementKind) Valid() bool {
	return k >= Int8Array && k <= ArrayBuffer
}

// Size returns the width of one element in bytes. ArrayBuffer counts as
// bytes; None and unknown kinds report 0.
func (k ElementKind) Size() int {
	switch k {
	case Int8Array, Uint8Array, Uint8ClampedArray, ArrayBuffer:
		return 1
	case Int16Array, Uint16Array:
		return 2
	case Int32Array, Uint32Array, Float32Array:
		return 4
	case Float64Array:
		return 8
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ElementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ElementKind) UnmarshalText(b []byte) error {
	parsed, err := ParseElementKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseElementKind maps a constructor name (case-insensitive) to its kind.
func ParseElementKind(name string) (ElementKind, error) {
	if strings.EqualFold(name, "none") {
		return None, nil
	}
	for _, k := range Kinds {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnsupportedKind, name)
}

// EncodeElements converts host numbers into the byte representation of a
// typed array of the given kind, one element at a time, applying the same
// narrowing a script assignment would.
func EncodeElements(kind ElementKind, data []float64) ([]byte, error) {
	size := kind.Size()
	if !kind.Valid() || size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	out := make([]byte, len(data)*size)
	ne := binary.NativeEndian
	for i, v := range data {
		off := i * size
		switch kind {
		case Int8Array:
			out[off] = byte(int8(wrapInt(v, 8)))
		case Uint8Array, ArrayBuffer:
			out[off] = uint8(wrapInt(v, 8))
		case Uint8ClampedArray:
			out[off] = clampUint8(v)
		case Int16Array:
			ne.PutUint16(out[off:], uint16(int16(wrapInt(v, 16))))
		case Uint16Array:
			ne.PutUint16(out[off:], uint16(wrapInt(v, 16)))
		case Int32Array:
			ne.PutUint32(out[off:], uint32(int32(wrapInt(v, 32))))
		case Uint32Array:
			ne.PutUint32(out[off:], uint32(wrapInt(v, 32)))
		case Float32Array:
			ne.PutUint32(out[off:], math.Float32bits(float32(v)))
		case Float64Array:
			ne.PutUint64(out[off:], math.Float64bits(v))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
		}
	}
	return out, nil
}

// DecodeElements reads the byte representation of a typed array back into
// host numbers, widening each element to float64.
func DecodeElements(kind ElementKind, raw []byte) ([]float64, error) {
	size := kind.Size()
	if !kind.Valid() || size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if len(raw)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s element size %d",
			ErrLengthMismatch, len(raw), kind, size)
	}
	n := len(raw) / size
	out := make([]float64, n)
	ne := binary.NativeEndian
	for i := 0; i < n; i++ {
		b := raw[i*size:]
		switch kind {
		case Int8Array:
			out[i] = float64(int8(b[0]))
		case Uint8Array, Uint8ClampedArray, ArrayBuffer:
			out[i] = float64(b[0])
		case Int16Array:
			out[i] = float64(int16(ne.Uint16(b)))
		case Uint16Array:
			out[i] = float64(ne.Uint16(b))
		case Int32Array:
			out[i] = float64(int32(ne.Uint32(b)))
		case Uint32Array:
			out[i] = float64(ne.Uint32(b))
		case Float32Array:
			out[i] = float64(math.Float32frombits(ne.Uint32(b)))
		case Float64Array:
			out[i] = math.Float64frombits(ne.Uint64(b))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
		}
	}
	return out, nil
}

// wrapInt truncates v toward zero and reduces it modulo 2^bits.
// NaN and infinities become 0.
func wrapInt(v float64, bits uint) uint64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(v), float64(uint64(1)<<bits))
	if m < 0 {
		m += float64(uint64(1) << bits)
	}
	return uint64(m)
}

// clampUint8 clamps to [0,255] and rounds half to even.
func clampUint8(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.RoundToEven(v))
}
