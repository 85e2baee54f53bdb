//go:build !v8

package xchg

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cryguy/xchg/internal/core"
	"github.com/cryguy/xchg/internal/quickjs"
)

// bareRuntime hides the engine's own adapter so New falls back to the
// portable one.
type bareRuntime struct {
	core.JSRuntime
	core.BinaryTransferer
}

func TestNewSelectsPortableAdapter(t *testing.T) {
	inst, err := quickjs.NewRuntime(DefaultEngineConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer inst.Close()

	native, err := New(inst)
	if err != nil {
		t.Fatal(err)
	}
	if native.Backend() != "quickjs" {
		t.Errorf("Backend = %q, want quickjs", native.Backend())
	}

	inst2, err := quickjs.NewRuntime(DefaultEngineConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer inst2.Close()
	x, err := New(bareRuntime{inst2, inst2}, WithMaxArrayBytes(16))
	if err != nil {
		t.Fatal(err)
	}
	if x.Backend() != "portable" {
		t.Errorf("Backend = %q, want portable", x.Backend())
	}

	h, err := x.Create(Int16Array, []float64{-3, 4})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	got, _ := x.FromValue(h)
	if diff := cmp.Diff([]float64{-3, 4}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := x.Create(Float64Array, make([]float64, 3)); !errors.Is(err, ErrAllocation) {
		t.Errorf("err = %v, want ErrAllocation", err)
	}
}

// evalOnly implements JSRuntime without binary transfer.
type evalOnly struct{}

func (evalOnly) Eval(string) error                 { return nil }
func (evalOnly) EvalString(string) (string, error) { return "", nil }
func (evalOnly) EvalBool(string) (bool, error)     { return false, nil }
func (evalOnly) EvalInt(string) (int, error)       { return 0, nil }
func (evalOnly) RegisterFunc(string, any) error    { return nil }
func (evalOnly) SetGlobal(string, any) error       { return nil }

func TestNewUnsupportedRuntime(t *testing.T) {
	if _, err := New(evalOnly{}); !errors.Is(err, ErrUnsupportedRuntime) {
		t.Errorf("err = %v, want ErrUnsupportedRuntime", err)
	}
}
