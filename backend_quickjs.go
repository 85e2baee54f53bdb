//go:build !v8

package xchg

import (
	"errors"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
	"github.com/cryguy/xchg/internal/quickjs"
)

const backendName = "quickjs"

func newBackend(cfg core.EngineConfig, logger *zap.Logger) core.EngineBackend {
	return quickjs.NewEngine(cfg, logger)
}

func newInstance(cfg core.EngineConfig, logger *zap.Logger) (core.Instance, error) {
	return quickjs.NewRuntime(cfg, logger)
}

func backendInfo() EngineInfo {
	info := EngineInfo{
		Engine:  backendName,
		Module:  quickjs.ModulePath,
		Version: quickjs.ModuleVersion(),
	}
	if err := quickjs.CheckLayout(); err != nil {
		info.LayoutError = err.Error()
		var vm *core.VersionMismatchError
		if errors.As(err, &vm) {
			info.Compatible = vm.Compatible
		}
	}
	return info
}
