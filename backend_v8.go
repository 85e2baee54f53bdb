//go:build v8

package xchg

import (
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
	"github.com/cryguy/xchg/internal/v8engine"
)

const backendName = "v8"

const v8Module = "github.com/tommie/v8go"

func newBackend(cfg core.EngineConfig, logger *zap.Logger) core.EngineBackend {
	return v8engine.NewEngine(cfg, logger)
}

func newInstance(cfg core.EngineConfig, logger *zap.Logger) (core.Instance, error) {
	return v8engine.NewRuntime(cfg, logger)
}

func backendInfo() EngineInfo {
	info := EngineInfo{Engine: backendName, Module: v8Module}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == v8Module {
				info.Version = dep.Version
			}
		}
	}
	return info
}
