package snapshot

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cryguy/xchg/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadSmall(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	raw, _ := core.EncodeElements(core.Int32Array, []float64{1, -2, 3})

	if err := s.Save(ctx, "small", core.Int32Array, raw); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load(ctx, "small")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Kind != core.Int32Array || snap.Compressed || snap.Size != 12 {
		t.Errorf("info = %+v", snap.Info)
	}
	if !bytes.Equal(snap.Data, raw) {
		t.Errorf("data = %v, want %v", snap.Data, raw)
	}
}

func TestSaveLoadCompressed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	raw := bytes.Repeat([]byte{1, 2, 3, 4}, 4096)

	if err := s.Save(ctx, "big", core.Uint8Array, raw); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load(ctx, "big")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Compressed {
		t.Error("repetitive payload should be stored compressed")
	}
	if !bytes.Equal(snap.Data, raw) {
		t.Error("decompressed data differs")
	}
}

func TestLoadRejectsNonArrayKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, kind, size, encoding, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"odd", "None", 4, encodingRaw, []byte{1, 2, 3, 4}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "odd"); !errors.Is(err, core.ErrUnsupportedKind) {
		t.Errorf("err = %v, want ErrUnsupportedKind", err)
	}
}

func TestLoadRejectsPartialElements(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, kind, size, encoding, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"ragged", "Int32Array", 6, encodingRaw, make([]byte, 6), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "ragged"); !errors.Is(err, core.ErrLengthMismatch) {
		t.Errorf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestLoadCompressedSizeBound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	raw := bytes.Repeat([]byte{7}, 1<<16)
	if err := s.Save(ctx, "big", core.Uint8Array, raw); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE snapshots SET size = 16 WHERE name = ?`, "big"); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load(ctx, "big")
	var lm *core.LengthMismatchError
	if !errors.As(err, &lm) {
		t.Fatalf("err = %v, want LengthMismatchError", err)
	}
	if lm.Want != 16 || lm.Got != 17 {
		t.Errorf("mismatch = %+v, want Want=16 Got=17", lm)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, "x", core.Uint8Array, []byte{1})
	if err := s.Save(ctx, "x", core.Uint16Array, []byte{2, 0}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Load(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if snap.Kind != core.Uint16Array || !bytes.Equal(snap.Data, []byte{2, 0}) {
		t.Errorf("snapshot = %+v %v", snap.Info, snap.Data)
	}
}

func TestSaveRejects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Save(ctx, "a", core.Float64Array, make([]byte, 7)); !errors.Is(err, core.ErrLengthMismatch) {
		t.Errorf("partial element err = %v", err)
	}
	if err := s.Save(ctx, "a", core.None, nil); !errors.Is(err, core.ErrUnsupportedKind) {
		t.Errorf("None kind err = %v", err)
	}
	for _, name := range []string{"", "../x", "a/b", "a\\b", string([]byte{'a', 0})} {
		if err := s.Save(ctx, name, core.Uint8Array, nil); err == nil {
			t.Errorf("name %q accepted", name)
		}
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, "b", core.Uint8Array, []byte{1})
	_ = s.Save(ctx, "a", core.Float32Array, make([]byte, 8))

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	infos, _ = s.List(ctx)
	if len(infos) != 1 {
		t.Errorf("len = %d, want 1", len(infos))
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "main")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), "k", core.Uint8Array, []byte{9}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(dir, "main")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	snap, err := s.Load(context.Background(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(snap.Data, []byte{9}) {
		t.Errorf("data = %v", snap.Data)
	}

	if _, err := Open(dir, "../escape"); err == nil {
		t.Error("Open accepted traversal name")
	}
}
