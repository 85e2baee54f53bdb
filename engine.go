package xchg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
)

// Engine wraps a pooled backend engine (QuickJS by default, V8 with -tags v8).
type Engine struct {
	backend core.EngineBackend
	log     *zap.Logger
}

// NewEngine creates an Engine. Runtimes are created on first Open.
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: newBackend(cfg, logger), log: logger}
}

// Name returns the backend engine name.
func (e *Engine) Name() string { return e.backend.Name() }

// Open takes a runtime from the pool, blocking until one is free or ctx is
// done. Close the exchange to return the runtime.
func (e *Engine) Open(ctx context.Context) (*Exchange, error) {
	inst, err := e.backend.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return newExchange(inst, inst.Adapter(), e.log, func() { e.backend.Put(inst) }), nil
}

// Shutdown disposes of all pooled runtimes.
func (e *Engine) Shutdown() {
	e.backend.Shutdown()
}

// NewRuntime creates a standalone runtime outside any pool. Close the
// exchange to free it.
func NewRuntime(cfg EngineConfig, logger *zap.Logger) (*Exchange, error) {
	inst, err := newInstance(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s runtime: %w", backendName, err)
	}
	return newExchange(inst, inst.Adapter(), logger, inst.Close), nil
}

// EngineInfo describes the engine compiled into the binary.
type EngineInfo struct {
	Engine     string   `json:"engine" yaml:"engine"`
	Module     string   `json:"module" yaml:"module"`
	Version    string   `json:"version" yaml:"version"`
	Compatible []string `json:"compatible,omitempty" yaml:"compatible,omitempty"`
	// LayoutError is set when the direct transfer path would be refused.
	LayoutError string `json:"layout_error,omitempty" yaml:"layout_error,omitempty"`
}

// Info reports the compiled-in engine and whether its layout is verified.
func Info() EngineInfo { return backendInfo() }
