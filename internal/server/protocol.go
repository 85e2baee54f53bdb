package server

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/cryguy/xchg"
)

// Ops understood by the exchange endpoint.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpValues  = "values"
	OpRaw     = "raw"
	OpType    = "type"
	OpEval    = "eval"
	OpImport  = "import"
	OpExport  = "export"
	OpRelease = "release"
	OpSave    = "save"
	OpRestore = "restore"
	OpList    = "list"
)

// Request is one client message. Fields not used by Op are ignored.
type Request struct {
	ID     int64     `json:"id"`
	Op     string    `json:"op"`
	Kind   string    `json:"kind,omitempty"`
	Handle uint64    `json:"handle,omitempty"`
	Values []float64 `json:"values,omitempty"`
	Data   []byte    `json:"data,omitempty"`
	Expr   string    `json:"expr,omitempty"`
	Name   string    `json:"name,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID        int64               `json:"id"`
	OK        bool                `json:"ok"`
	Error     string              `json:"error,omitempty"`
	Code      string              `json:"code,omitempty"`
	Handle    uint64              `json:"handle,omitempty"`
	Kind      string              `json:"kind,omitempty"`
	Values    []Number            `json:"values,omitempty"`
	Data      []byte              `json:"data,omitempty"`
	Snapshots []xchg.SnapshotInfo `json:"snapshots,omitempty"`
}

// Number is an element value. NaN and infinities, which JSON cannot carry,
// encode as null.
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func numbers(vals []float64) []Number {
	out := make([]Number, len(vals))
	for i, v := range vals {
		out[i] = Number(v)
	}
	return out
}

// Error codes carried in Response.Code.
const (
	CodeLengthMismatch  = "length_mismatch"
	CodeAllocation      = "allocation"
	CodeUnsupportedKind = "unsupported_kind"
	CodeNotFound        = "not_found"
	CodeForeignHandle   = "foreign_handle"
	CodeUnknownHandle   = "unknown_handle"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

var errUnknownHandle = errors.New("unknown handle")

func errorCode(err error) string {
	switch {
	case errors.Is(err, xchg.ErrLengthMismatch):
		return CodeLengthMismatch
	case errors.Is(err, xchg.ErrAllocation):
		return CodeAllocation
	case errors.Is(err, xchg.ErrUnsupportedKind):
		return CodeUnsupportedKind
	case errors.Is(err, xchg.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, xchg.ErrForeignHandle):
		return CodeForeignHandle
	case errors.Is(err, errUnknownHandle):
		return CodeUnknownHandle
	case errors.Is(err, errBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
