//go:build !v8

package quickjs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
)

// Engine hands out pooled QuickJS runtimes.
type Engine struct {
	config core.EngineConfig
	log    *zap.Logger

	poolMu sync.Mutex
	pool   *qjsPool
}

var _ core.EngineBackend = (*Engine)(nil)

// NewEngine creates an Engine. The pool is built on first Acquire.
func NewEngine(cfg core.EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config: cfg,
		log:    logger.With(zap.String("engine", "quickjs")),
	}
}

// Name returns "quickjs".
func (e *Engine) Name() string { return "quickjs" }

func (e *Engine) getOrCreatePool() (*qjsPool, error) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := newQJSPool(e.config, e.log)
	if err != nil {
		return nil, fmt.Errorf("creating quickjs pool: %w", err)
	}
	e.log.Info("runtime pool ready", zap.Int("size", pool.size))
	e.pool = pool
	return pool, nil
}

// Acquire takes a runtime from the pool.
func (e *Engine) Acquire(ctx context.Context) (core.Instance, error) {
	pool, err := e.getOrCreatePool()
	if err != nil {
		return nil, err
	}
	rt, err := pool.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring runtime from pool: %w", err)
	}
	return rt, nil
}

// Put resets inst and returns it to the pool.
func (e *Engine) Put(inst core.Instance) {
	rt, ok := inst.(*qjsRuntime)
	e.poolMu.Lock()
	pool := e.pool
	e.poolMu.Unlock()
	if !ok || pool == nil {
		inst.Close()
		return
	}
	pool.put(rt)
}

// Shutdown disposes every pooled runtime. Runtimes still checked out are
// closed when they are put back.
func (e *Engine) Shutdown() {
	e.poolMu.Lock()
	pool := e.pool
	e.pool = nil
	e.poolMu.Unlock()
	if pool != nil {
		pool.dispose()
	}
}
