//go:build v8

package v8engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
)

// Engine hands out pooled V8 isolates.
type Engine struct {
	config core.EngineConfig
	log    *zap.Logger

	poolMu sync.Mutex
	pool   *v8Pool
}

var _ core.EngineBackend = (*Engine)(nil)

// NewEngine creates an Engine. The pool is built on first Acquire.
func NewEngine(cfg core.EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config: cfg,
		log:    logger.With(zap.String("engine", "v8")),
	}
}

// Name returns "v8".
func (e *Engine) Name() string { return "v8" }

func (e *Engine) getOrCreatePool() (*v8Pool, error) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := newV8Pool(e.config, e.log)
	if err != nil {
		return nil, fmt.Errorf("creating v8 pool: %w", err)
	}
	e.log.Info("runtime pool ready", zap.Int("size", pool.size))
	e.pool = pool
	return pool, nil
}

// Acquire takes an isolate from the pool.
func (e *Engine) Acquire(ctx context.Context) (core.Instance, error) {
	pool, err := e.getOrCreatePool()
	if err != nil {
		return nil, err
	}
	rt, err := pool.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring isolate from pool: %w", err)
	}
	return rt, nil
}

// Put resets inst and returns it to the pool.
func (e *Engine) Put(inst core.Instance) {
	rt, ok := inst.(*v8Runtime)
	e.poolMu.Lock()
	pool := e.pool
	e.poolMu.Unlock()
	if !ok || pool == nil {
		inst.Close()
		return
	}
	pool.put(rt)
}

// Shutdown disposes every pooled isolate. Isolates still checked out are
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
