package xchg

import (
	"context"
	"fmt"
)

// SaveSnapshot stores the bytes and kind of the array behind h under name.
func (x *Exchange) SaveSnapshot(ctx context.Context, store *SnapshotStore, name string, h *Handle) error {
	kind, err := x.TypeFromValue(h)
	if err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: value is not a typed array", ErrUnsupportedKind)
	}
	raw, err := x.RawFromValue(h)
	if err != nil {
		return err
	}
	return store.Save(ctx, name, kind, raw)
}

// RestoreSnapshot recreates the array stored under name and returns a
// handle to it. The bytes are restored verbatim.
func (x *Exchange) RestoreSnapshot(ctx context.Context, store *SnapshotStore, name string) (*Handle, error) {
	snap, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	h, err := x.Create(snap.Kind, make([]float64, snap.Size/snap.Kind.Size()))
	if err != nil {
		return nil, err
	}
	if err := x.UpdateWithData(h, snap.Data); err != nil {
		h.Release()
		return nil, fmt.Errorf("restoring snapshot %q: %w", name, err)
	}
	return h, nil
}
