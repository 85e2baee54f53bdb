// Package handles tracks host-side references to values that live in an
// embedded script runtime's heap.
//
// A Handle is reference counted with lock-free atomics: Retain and Release
// may be called from any goroutine. When the count reaches zero the entry
// leaves the registry and its heap reference is queued; the runtime owner
// drains the queue on its own thread with Reclaim, since unpinning a value
// mutates the runtime heap.
package handles

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cryguy/xchg/internal/abort"
)

// ErrRefCountInvariant reports a use-after-release, double release or count
// overflow.
var ErrRefCountInvariant = errors.New("reference count invariant violated")

// Handle is host code's hold on one heap value.
type Handle struct {
	id   uint64
	ref  any
	refs atomic.Uint32
	reg  *Registry
}

// ID returns the handle's registry-unique, non-zero identifier.
func (h *Handle) ID() uint64 { return h.id }

// Ref returns the adapter-defined reference to the heap value.
func (h *Handle) Ref() any { return h.ref }

// RefCount returns the current reference count.
func (h *Handle) RefCount() uint32 { return h.refs.Load() }

// Live reports whether the handle still holds at least one reference.
func (h *Handle) Live() bool { return h.refs.Load() > 0 }

// Registry returns the registry that issued h.
func (h *Handle) Registry() *Registry { return h.reg }

// Retain adds a reference and returns h. Retaining a released handle or
// overflowing the count aborts the process.
func (h *Handle) Retain() *Handle {
	for {
		old := h.refs.Load()
		if old == 0 {
			abort.Now(fmt.Errorf("%w: retain of released handle %d", ErrRefCountInvariant, h.id))
			return h
		}
		if old == math.MaxUint32 {
			abort.Now(fmt.Errorf("%w: ref count overflow on handle %d", ErrRefCountInvariant, h.id))
			return h
		}
		if h.refs.CompareAndSwap(old, old+1) {
			return h
		}
	}
}

// Release drops a reference. The last release removes the handle from its
// registry and queues the heap value for reclamation. Releasing more times
// than the handle was acquired and retained aborts the process.
func (h *Handle) Release() {
	for {
		old := h.refs.Load()
		if old == 0 {
			abort.Now(fmt.Errorf("%w: ref count underflow on handle %d", ErrRefCountInvariant, h.id))
			return
		}
		if h.refs.CompareAndSwap(old, old-1) {
			if old == 1 {
				h.reg.remove(h)
			}
			return
		}
	}
}

// Registry holds the handles that keep heap values alive.
type Registry struct {
	entries sync.Map // uint64 -> *Handle
	seq     atomic.Uint64
	live    atomic.Int64

	mu      sync.Mutex
	pending []any // heap refs awaiting Reclaim
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Acquire registers a new reference to the heap value identified by ref.
// The returned handle starts with a count of one.
func (r *Registry) Acquire(ref any) *Handle {
	h := &Handle{id: r.seq.Add(1), ref: ref, reg: r}
	h.refs.Store(1)
	r.entries.Store(h.id, h)
	r.live.Add(1)
	return h
}

// Lookup returns the live handle with the given id.
func (r *Registry) Lookup(id uint64) (*Handle, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Handle), true
}

// Owns reports whether h was issued by r.
func (r *Registry) Owns(h *Handle) bool {
	return h != nil && h.reg == r
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return int(r.live.Load())
}

// Pending returns the number of heap refs waiting for Reclaim.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Reclaim hands every queued heap ref to fn and returns how many there
// were. Call it from the thread that owns the runtime heap.
func (r *Registry) Reclaim(fn func(ref any)) int {
	r.mu.Lock()
	refs := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, ref := range refs {
		fn(ref)
	}
	return len(refs)
}

// Range calls fn for each live handle until fn returns false.
func (r *Registry) Range(fn func(h *Handle) bool) {
	r.entries.Range(func(_, v any) bool {
		return fn(v.(*Handle))
	})
}

func (r *Registry) remove(h *Handle) {
	if _, ok := r.entries.LoadAndDelete(h.id); !ok {
		return
	}
	r.live.Add(-1)
	r.mu.Lock()
	r.pending = append(r.pending, h.ref)
	r.mu.Unlock()
}
