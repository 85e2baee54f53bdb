package xchg

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.PoolSize = 1
	x, err := NewRuntime(cfg, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	t.Cleanup(func() { x.Close() })
	return x
}

func TestExchangeRoundTrip(t *testing.T) {
	x := newTestExchange(t)
	tests := []struct {
		kind ElementKind
		in   []float64
		want []float64
	}{
		{Int8Array, []float64{-128, 127, 128}, []float64{-128, 127, -128}},
		{Uint8Array, []float64{0, 255, 256}, []float64{0, 255, 0}},
		{Uint8ClampedArray, []float64{-10, 300, 128}, []float64{0, 255, 128}},
		{Int16Array, []float64{-1, 32767}, []float64{-1, 32767}},
		{Uint16Array, []float64{65535, -1}, []float64{65535, 65535}},
		{Int32Array, []float64{1, -2, 3}, []float64{1, -2, 3}},
		{Uint32Array, []float64{4294967295}, []float64{4294967295}},
		{Float32Array, []float64{0.5, -2.25}, []float64{0.5, -2.25}},
		{Float64Array, []float64{math.Pi, math.Inf(-1)}, []float64{math.Pi, math.Inf(-1)}},
		{ArrayBuffer, []float64{1, 2, 3}, []float64{1, 2, 3}},
		{Float64Array, []float64{}, []float64{}},
	}
	for _, tt := range tests {
		h, err := x.Create(tt.kind, tt.in)
		if err != nil {
			t.Fatalf("Create(%s): %v", tt.kind, err)
		}
		got, err := x.FromValue(h)
		if err != nil {
			t.Fatalf("FromValue(%s): %v", tt.kind, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tt.kind, diff)
		}
		kind, err := x.TypeFromValue(h)
		if err != nil || kind != tt.kind {
			t.Errorf("TypeFromValue = %s, %v; want %s", kind, err, tt.kind)
		}
		h.Release()
	}
	if x.Live() != 0 {
		t.Errorf("Live = %d after releasing every handle", x.Live())
	}
}

func TestExchangeLengthMismatch(t *testing.T) {
	x := newTestExchange(t)
	h, err := x.Create(Int32Array, []float64{1, -2, 3})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	err = x.UpdateWithData(h, make([]byte, 10))
	var lm *LengthMismatchError
	if !errors.As(err, &lm) || lm.Want != 12 || lm.Got != 10 {
		t.Fatalf("err = %v, want LengthMismatchError{12, 10}", err)
	}
	got, _ := x.FromValue(h)
	if diff := cmp.Diff([]float64{1, -2, 3}, got); diff != "" {
		t.Errorf("contents changed (-want +got):\n%s", diff)
	}
}

func TestExchangeRunAndImport(t *testing.T) {
	x := newTestExchange(t)
	src := `const n: number = 4;
var ramp = new Float32Array(n);
for (let i = 0; i < n; i++) ramp[i] = i / 2;`
	if err := x.Run(src, LoaderTS); err != nil {
		t.Fatal(err)
	}
	h, err := x.Import("ramp")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	got, err := ValuesOf[float32](x, h)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{0, 0.5, 1, 1.5}, got); diff != "" {
		t.Errorf("ramp (-want +got):\n%s", diff)
	}
}

func TestExchangeRunConstImport(t *testing.T) {
	x := newTestExchange(t)
	if err := x.Run("const ramp = new Float32Array([1, 2]);", LoaderJS); err != nil {
		t.Fatal(err)
	}
	h, err := x.Import("ramp")
	if err != nil {
		t.Fatalf("Import(ramp): %v", err)
	}
	defer h.Release()
	got, err := x.FromValue(h)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 2}, got); diff != "" {
		t.Errorf("ramp (-want +got):\n%s", diff)
	}
}

func TestExchangeGenerics(t *testing.T) {
	x := newTestExchange(t)
	h, err := CreateOf(x, Uint16Array, []uint16{1, 65535})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	got, err := ValuesOf[uint16](x, h)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint16{1, 65535}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestExchangeSetGlobalExport(t *testing.T) {
	x := newTestExchange(t)
	if err := x.SetGlobal("scale", 3); err != nil {
		t.Fatal(err)
	}
	h, err := x.Create(Int32Array, []float64{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	if err := x.Export(h, "input"); err != nil {
		t.Fatal(err)
	}
	out, err := x.Evaluate(`input.map(function(v) { return v * scale; })`)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Release()
	got, _ := x.FromValue(out)
	if diff := cmp.Diff([]float64{3, 6}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestExchangeClose(t *testing.T) {
	x := newTestExchange(t)
	h, err := x.Create(Uint8Array, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	if err := x.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := x.FromValue(h); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := x.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestEngineOpen(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.PoolSize = 2
	e := NewEngine(cfg, nil)
	defer e.Shutdown()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			x, err := e.Open(context.Background())
			if err != nil {
				return err
			}
			defer x.Close()
			h, err := x.Create(Float64Array, []float64{float64(i)})
			if err != nil {
				return err
			}
			defer h.Release()
			got, err := x.FromValue(h)
			if err != nil {
				return err
			}
			if got[0] != float64(i) {
				return errors.New("value crossed exchanges")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseFromOtherGoroutine(t *testing.T) {
	x := newTestExchange(t)
	var hs []*Handle
	for i := 0; i < 16; i++ {
		h, err := x.Create(Uint8Array, []float64{float64(i)})
		if err != nil {
			t.Fatal(err)
		}
		hs = append(hs, h)
	}

	var g errgroup.Group
	for _, h := range hs {
		g.Go(func() error {
			h.Retain()
			h.Release()
			h.Release()
			return nil
		})
	}
	_ = g.Wait()

	if x.Live() != 0 {
		t.Errorf("Live = %d, want 0", x.Live())
	}
	if n := x.Reclaim(); n != 16 {
		t.Errorf("Reclaim = %d, want 16", n)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	x := newTestExchange(t)
	store, err := OpenMemorySnapshots()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	h, err := x.Create(Float32Array, []float64{0.25, -8, 1e6})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	if err := x.SaveSnapshot(ctx, store, "weights", h); err != nil {
		t.Fatal(err)
	}

	r, err := x.RestoreSnapshot(ctx, store, "weights")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Release()
	kind, _ := x.TypeFromValue(r)
	if kind != Float32Array {
		t.Errorf("restored kind = %s", kind)
	}
	want, _ := x.RawFromValue(h)
	got, _ := x.RawFromValue(r)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("restored bytes differ:\n%s", diff)
	}

	obj, err := x.Evaluate(`({})`)
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Release()
	if err := x.SaveSnapshot(ctx, store, "obj", obj); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("snapshot of plain object err = %v", err)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if info.Engine != backendName || info.Module == "" {
		t.Errorf("Info = %+v", info)
	}
}
