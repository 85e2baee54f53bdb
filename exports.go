package xchg

import (
	"github.com/cryguy/xchg/internal/core"
	"github.com/cryguy/xchg/internal/handles"
	"github.com/cryguy/xchg/internal/script"
	"github.com/cryguy/xchg/internal/snapshot"
)

// Type aliases re-exporting internal types so callers can use
// xchg.ElementKind, xchg.Handle, etc. without importing internal packages.

type ElementKind = core.ElementKind
type Handle = handles.Handle
type EngineConfig = core.EngineConfig
type LayoutMode = core.LayoutMode
type JSRuntime = core.JSRuntime
type BinaryTransferer = core.BinaryTransferer
type Adapter = core.Adapter
type LengthMismatchError = core.LengthMismatchError
type VersionMismatchError = core.VersionMismatchError
type SnapshotStore = snapshot.Store
type SnapshotInfo = snapshot.Info
type Loader = script.Loader

// Element kinds.
const (
	None              = core.None
	Int8Array         = core.Int8Array
	Int16Array        = core.Int16Array
	Int32Array        = core.Int32Array
	Uint8Array        = core.Uint8Array
	Uint8ClampedArray = core.Uint8ClampedArray
	Uint16Array       = core.Uint16Array
	Uint32Array       = core.Uint32Array
	Float32Array      = core.Float32Array
	Float64Array      = core.Float64Array
	ArrayBuffer       = core.ArrayBuffer
)

// Layout modes.
const (
	LayoutAuto   = core.LayoutAuto
	LayoutStrict = core.LayoutStrict
	LayoutOff    = core.LayoutOff
)

// Script loaders.
const (
	LoaderJS = script.LoaderJS
	LoaderTS = script.LoaderTS
)

// Errors re-exported from core.
var (
	ErrAllocation        = core.ErrAllocation
	ErrLengthMismatch    = core.ErrLengthMismatch
	ErrUnsupportedKind   = core.ErrUnsupportedKind
	ErrVersionMismatch   = core.ErrVersionMismatch
	ErrRefCountInvariant = core.ErrRefCountInvariant
	ErrForeignHandle     = core.ErrForeignHandle
	ErrNotFound          = core.ErrNotFound
)

// Functions re-exported from internal packages.
var (
	Kinds                = core.Kinds
	ParseElementKind     = core.ParseElementKind
	DefaultEngineConfig  = core.DefaultEngineConfig
	SetAbortHandler      = core.SetAbortHandler
	OpenSnapshotStore    = snapshot.Open
	OpenMemorySnapshots  = snapshot.OpenMemory
	ValidateSnapshotName = snapshot.ValidateName
)
