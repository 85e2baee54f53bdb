// Package config loads xchg configuration from defaults, an optional YAML
// file and XCHG_ environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cryguy/xchg/internal/core"
)

// EnvPrefix prefixes environment overrides: XCHG_ENGINE_POOL_SIZE sets
// engine.pool_size.
const EnvPrefix = "XCHG"

type Config struct {
	Engine    core.EngineConfig `mapstructure:"engine"`
	Server    ServerConfig      `mapstructure:"server"`
	Snapshots SnapshotConfig    `mapstructure:"snapshots"`
	Log       LogConfig         `mapstructure:"log"`
}

// ServerConfig configures the remote exchange endpoint.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Maximum concurrent connections; each holds one pooled runtime.
	MaxConns        int           `mapstructure:"max_conns"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
}

type SnapshotConfig struct {
	DataDir string `mapstructure:"data_dir"`
	Store   string `mapstructure:"store"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. An empty configPath uses defaults and the
// environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	def := core.DefaultEngineConfig()
	v.SetDefault("engine.pool_size", def.PoolSize)
	v.SetDefault("engine.memory_limit_mb", def.MemoryLimitMB)
	v.SetDefault("engine.max_array_bytes", def.MaxArrayBytes)
	v.SetDefault("engine.layout_mode", string(def.LayoutMode))

	v.SetDefault("server.addr", "127.0.0.1:7420")
	v.SetDefault("server.max_conns", def.PoolSize)
	v.SetDefault("server.max_message_bytes", 16<<20)
	v.SetDefault("server.idle_timeout", "5m")

	v.SetDefault("snapshots.data_dir", "./data")
	v.SetDefault("snapshots.store", "default")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Engine.LayoutMode {
	case core.LayoutAuto, core.LayoutStrict, core.LayoutOff:
	default:
		return fmt.Errorf("engine.layout_mode: unknown mode %q", c.Engine.LayoutMode)
	}
	if c.Engine.PoolSize < 1 {
		return fmt.Errorf("engine.pool_size must be at least 1")
	}
	if c.Engine.MaxArrayBytes < 0 {
		return fmt.Errorf("engine.max_array_bytes must not be negative")
	}
	if c.Server.MaxConns < 1 {
		return fmt.Errorf("server.max_conns must be at least 1")
	}
	return nil
}
