package handles

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/cryguy/xchg/internal/abort"
)

// captureAborts swaps the abort handler for one that records errors.
func captureAborts(t *testing.T) *[]error {
	t.Helper()
	var mu sync.Mutex
	var got []error
	prev := abort.SetHandler(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	})
	t.Cleanup(func() { abort.SetHandler(prev) })
	return &got
}

func TestAcquireRelease(t *testing.T) {
	r := NewRegistry()
	h := r.Acquire("pin-1")

	if h.ID() == 0 {
		t.Fatal("handle id must be non-zero")
	}
	if h.RefCount() != 1 {
		t.Errorf("RefCount = %d, want 1", h.RefCount())
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if got, ok := r.Lookup(h.ID()); !ok || got != h {
		t.Error("Lookup did not return the acquired handle")
	}

	h.Release()

	if r.Len() != 0 {
		t.Errorf("Len after release = %d, want 0", r.Len())
	}
	if h.Live() {
		t.Error("handle still live after final release")
	}
	if _, ok := r.Lookup(h.ID()); ok {
		t.Error("released handle still registered")
	}
	if r.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", r.Pending())
	}
}

func TestRetainDelaysRemoval(t *testing.T) {
	r := NewRegistry()
	h := r.Acquire(7)
	h.Retain().Retain()

	h.Release()
	h.Release()
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1 while one reference remains", r.Len())
	}
	h.Release()
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestReclaimDrainsQueue(t *testing.T) {
	r := NewRegistry()
	a := r.Acquire("a")
	b := r.Acquire("b")
	c := r.Acquire("c")
	a.Release()
	c.Release()

	var got []any
	n := r.Reclaim(func(ref any) { got = append(got, ref) })
	if n != 2 {
		t.Errorf("Reclaim returned %d, want 2", n)
	}
	if diff := cmp.Diff([]any{"a", "c"}, got); diff != "" {
		t.Errorf("reclaimed refs mismatch (-want +got):\n%s", diff)
	}
	if r.Reclaim(func(any) { t.Error("queue not drained") }) != 0 {
		t.Error("second Reclaim should be empty")
	}
	if !b.Live() {
		t.Error("unreleased handle reported dead")
	}
}

func TestReleaseUnderflowAborts(t *testing.T) {
	aborts := captureAborts(t)
	r := NewRegistry()
	h := r.Acquire(nil)
	h.Release()
	h.Release()

	if len(*aborts) != 1 {
		t.Fatalf("aborts = %d, want 1", len(*aborts))
	}
	if !errors.Is((*aborts)[0], ErrRefCountInvariant) {
		t.Errorf("abort error = %v, want ErrRefCountInvariant", (*aborts)[0])
	}
	if h.RefCount() != 0 {
		t.Errorf("RefCount = %d after underflow, want 0", h.RefCount())
	}
	if r.Pending() != 1 {
		t.Errorf("Pending = %d, double release must not queue twice", r.Pending())
	}
}

func TestRetainReleasedAborts(t *testing.T) {
	aborts := captureAborts(t)
	h := NewRegistry().Acquire(nil)
	h.Release()
	h.Retain()

	if len(*aborts) != 1 || !errors.Is((*aborts)[0], ErrRefCountInvariant) {
		t.Fatalf("aborts = %v, want one ErrRefCountInvariant", *aborts)
	}
}

func TestRetainOverflowAborts(t *testing.T) {
	aborts := captureAborts(t)
	h := NewRegistry().Acquire(nil)
	h.refs.Store(math.MaxUint32)
	h.Retain()

	if len(*aborts) != 1 {
		t.Fatalf("aborts = %d, want 1", len(*aborts))
	}
	if h.RefCount() != math.MaxUint32 {
		t.Errorf("RefCount = %d, overflow must not wrap", h.RefCount())
	}
}

func TestOwns(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()
	h := r1.Acquire(nil)
	if !r1.Owns(h) {
		t.Error("issuing registry should own handle")
	}
	if r2.Owns(h) {
		t.Error("other registry should not own handle")
	}
	if r1.Owns(nil) {
		t.Error("nil handle is never owned")
	}
}

func TestConcurrentRetainRelease(t *testing.T) {
	aborts := captureAborts(t)
	r := NewRegistry()
	h := r.Acquire("shared")

	const workers, rounds = 16, 1000
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for j := 0; j < rounds; j++ {
				h.Retain()
				h.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if h.RefCount() != 1 {
		t.Errorf("RefCount = %d, want 1", h.RefCount())
	}
	h.Release()
	if r.Len() != 0 || r.Pending() != 1 {
		t.Errorf("Len = %d Pending = %d, want 0 and 1", r.Len(), r.Pending())
	}
	if len(*aborts) != 0 {
		t.Errorf("unexpected aborts: %v", *aborts)
	}
}

func TestConcurrentAcquireUniqueIDs(t *testing.T) {
	r := NewRegistry()
	const n = 256
	ids := make(chan uint64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ids <- r.Acquire(nil).ID()
			return nil
		})
	}
	_ = g.Wait()
	close(ids)

	seen := make(map[uint64]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if r.Len() != n {
		t.Errorf("Len = %d, want %d", r.Len(), n)
	}
}
