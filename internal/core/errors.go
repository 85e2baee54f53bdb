package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cryguy/xchg/internal/abort"
	"github.com/cryguy/xchg/internal/handles"
)

var (
	// ErrAllocation reports that the runtime heap rejected a new array.
	ErrAllocation = errors.New("typed array allocation failed")
	// ErrLengthMismatch reports a byte length that differs from the target array.
	ErrLengthMismatch = errors.New("byte length mismatch")
	// ErrUnsupportedKind reports an element kind the active runtime cannot map.
	ErrUnsupportedKind = errors.New("unsupported element kind")
	// ErrVersionMismatch reports a runtime whose version does not match the
	// object layout an adapter was built against.
	ErrVersionMismatch = errors.New("runtime version mismatch")
	// ErrRefCountInvariant reports a use-after-release or double release.
	ErrRefCountInvariant = handles.ErrRefCountInvariant
	// ErrForeignHandle reports a handle issued by a different registry.
	ErrForeignHandle = errors.New("handle does not belong to this exchange")
	// ErrNotFound reports a missing global on import.
	ErrNotFound = errors.New("value not found")
)

// LengthMismatchError carries the byte lengths of a rejected update.
type LengthMismatchError struct {
	Want int // byte length of the target array
	Got  int // byte length supplied by the caller
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("byte length mismatch: array holds %d bytes, got %d", e.Want, e.Got)
}

func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }

// VersionMismatchError names the runtime module whose reported version is
// outside the set an adapter's layout assumptions were verified against.
type VersionMismatchError struct {
	Module     string
	Reported   string
	Compatible []string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s %s does not match adapter layout (compatible: %s)",
		e.Module, e.Reported, strings.Join(e.Compatible, ", "))
}

func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// Abort reports a defect that cannot be unwound safely. The default
// handler logs the diagnostic and terminates the process.
func Abort(err error) { abort.Now(err) }

// SetAbortHandler replaces the handler invoked by Abort and returns the
// previous one. Passing nil restores the default.
func SetAbortHandler(h func(error)) func(error) { return abort.SetHandler(h) }
