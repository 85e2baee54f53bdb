package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryguy/xchg/internal/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := core.DefaultEngineConfig()
	if cfg.Engine != def {
		t.Errorf("engine = %+v, want %+v", cfg.Engine, def)
	}
	if cfg.Server.IdleTimeout != 5*time.Minute {
		t.Errorf("idle timeout = %v", cfg.Server.IdleTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xchg.yaml")
	content := `
engine:
  pool_size: 4
  layout_mode: strict
server:
  addr: ":9000"
  idle_timeout: 30s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.PoolSize != 4 {
		t.Errorf("pool size = %d, want 4", cfg.Engine.PoolSize)
	}
	if cfg.Engine.LayoutMode != core.LayoutStrict {
		t.Errorf("layout mode = %q", cfg.Engine.LayoutMode)
	}
	if cfg.Engine.MemoryLimitMB != core.DefaultEngineConfig().MemoryLimitMB {
		t.Errorf("unset key lost its default: %d", cfg.Engine.MemoryLimitMB)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.IdleTimeout != 30*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("XCHG_ENGINE_MAX_ARRAY_BYTES", "4096")
	t.Setenv("XCHG_LOG_FORMAT", "console")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.MaxArrayBytes != 4096 {
		t.Errorf("max array bytes = %d, want 4096", cfg.Engine.MaxArrayBytes)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
}

func TestLoadRejectsBadLayout(t *testing.T) {
	t.Setenv("XCHG_ENGINE_LAYOUT_MODE", "sometimes")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown layout mode")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
