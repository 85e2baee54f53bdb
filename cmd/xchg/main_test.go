package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "usage:") {
		t.Errorf("stderr = %q", errOut.String())
	}
	if code := run([]string{"frobnicate"}, &out, &errOut); code != 2 {
		t.Errorf("unknown command exit = %d", code)
	}
}

func TestVersionJSON(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"version", "-format", "json"}, &out, &errOut); code != 0 {
		t.Fatalf("exit = %d: %s", code, errOut.String())
	}
	var v versionInfo
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Version != "dev" || v.Engine.Engine == "" {
		t.Errorf("version = %+v", v)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gen.js")
	src := `const clamped = new Uint8ClampedArray([-10, 300, 128]);
let plain = { a: 1 };`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	code := run([]string{"inspect", path, "clamped", "plain"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit = %d: %s", code, errOut.String())
	}
	var reports []struct {
		Name       string    `yaml:"name"`
		Kind       string    `yaml:"kind"`
		Length     int       `yaml:"length"`
		ByteLength int       `yaml:"byte_length"`
		Values     []float64 `yaml:"values"`
	}
	if err := yaml.Unmarshal(out.Bytes(), &reports); err != nil {
		t.Fatalf("yaml: %v\n%s", err, out.String())
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %+v", reports)
	}
	if reports[0].Kind != "Uint8ClampedArray" || reports[0].ByteLength != 3 {
		t.Errorf("clamped = %+v", reports[0])
	}
	if len(reports[0].Values) != 3 || reports[0].Values[0] != 0 || reports[0].Values[1] != 255 {
		t.Errorf("clamped values = %v", reports[0].Values)
	}
	if reports[1].Kind != "None" {
		t.Errorf("plain kind = %q", reports[1].Kind)
	}
}

func TestInspectMissingGlobal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.js")
	if err := os.WriteFile(path, []byte(`var x = 1;`), 0o644); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	if code := run([]string{"inspect", path, "nope"}, &out, &errOut); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "nope") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestSnapshotsSaveList(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XCHG_SNAPSHOTS_DATA_DIR", dir)
	script := filepath.Join(dir, "gen.js")
	if err := os.WriteFile(script, []byte(`var w = new Float32Array([1, 2, 3]);`), 0o644); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"snapshots", "save", script, "w", "weights"}, &out, &errOut); code != 0 {
		t.Fatalf("save exit = %d: %s", code, errOut.String())
	}
	out.Reset()
	if code := run([]string{"snapshots", "-format", "json", "list"}, &out, &errOut); code != 0 {
		t.Fatalf("list exit = %d: %s", code, errOut.String())
	}
	var infos []struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
		Size int    `json:"size"`
	}
	if err := json.Unmarshal(out.Bytes(), &infos); err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != "weights" || infos[0].Kind != "Float32Array" || infos[0].Size != 12 {
		t.Errorf("infos = %+v", infos)
	}
}
