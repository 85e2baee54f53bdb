package xchg

// Number is the set of Go numeric types that convert to and from typed
// array elements.
type Number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~float32 | ~float64
}

// CreateOf is Create for any numeric slice. Values are widened to float64
// first, so 64-bit integers above 2^53 lose precision.
func CreateOf[T Number](x *Exchange, kind ElementKind, data []T) (*Handle, error) {
	vals := make([]float64, len(data))
	for i, v := range data {
		vals[i] = float64(v)
	}
	return x.Create(kind, vals)
}

// ValuesOf is FromValue converted to T. Choose T wide enough for the
// array's kind; conversion follows Go rules.
func ValuesOf[T Number](x *Exchange, h *Handle) ([]T, error) {
	vals, err := x.FromValue(h)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = T(v)
	}
	return out, nil
}
