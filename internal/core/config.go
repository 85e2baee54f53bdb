package core

// LayoutMode controls whether an adapter may read engine internals whose
// layout is not part of the engine's public API.
type LayoutMode string

const (
	// LayoutAuto uses the layout when the engine version is known to match
	// and otherwise falls back to the portable transfer path.
	LayoutAuto LayoutMode = "auto"
	// LayoutStrict requires a matching engine version and aborts otherwise.
	LayoutStrict LayoutMode = "strict"
	// LayoutOff never reads engine internals.
	LayoutOff LayoutMode = "off"
)

// EngineConfig holds runtime configuration for the exchange engine.
type EngineConfig struct {
	PoolSize      int        `mapstructure:"pool_size"`       // number of JS runtime instances in the pool
	MemoryLimitMB int        `mapstructure:"memory_limit_mb"` // per-runtime memory limit
	MaxArrayBytes int        `mapstructure:"max_array_bytes"` // largest array create will attempt
	LayoutMode    LayoutMode `mapstructure:"layout_mode"`
}

// DefaultEngineConfig returns the configuration used when none is given.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PoolSize:      2,
		MemoryLimitMB: 128,
		MaxArrayBytes: 64 * 1024 * 1024,
		LayoutMode:    LayoutAuto,
	}
}
