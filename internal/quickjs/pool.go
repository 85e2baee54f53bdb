//go:build !v8

package quickjs

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
)

// qjsPool manages a fixed-size pool of pre-warmed QuickJS runtimes.
type qjsPool struct {
	workers chan *qjsRuntime
	size    int
	mu      sync.Mutex
	log     *zap.Logger
}

// newQJSPool creates size runtimes, each with its adapter installed.
func newQJSPool(cfg core.EngineConfig, logger *zap.Logger) (*qjsPool, error) {
	size := max(cfg.PoolSize, 1)
	pool := &qjsPool{
		workers: make(chan *qjsRuntime, size),
		size:    size,
		log:     logger,
	}

	for i := 0; i < size; i++ {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			pool.dispose()
			return nil, fmt.Errorf("creating pool runtime %d: %w", i, err)
		}
		pool.workers <- rt
	}

	return pool, nil
}

// get acquires a runtime from the pool. Blocks until one is available or
// ctx is done.
func (p *qjsPool) get(ctx context.Context) (*qjsRuntime, error) {
	select {
	case rt, ok := <-p.workers:
		if !ok {
			return nil, fmt.Errorf("runtime pool is closed")
		}
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// put returns a runtime to the pool after dropping every pinned value.
// Runtimes that fail to reset are closed instead.
func (p *qjsPool) put(rt *qjsRuntime) {
	if err := rt.adapter.Reset(); err != nil {
		p.log.Warn("discarding runtime that failed to reset", zap.Error(err))
		rt.Close()
		return
	}
	select {
	case p.workers <- rt:
	default:
		rt.Close()
	}
}

// dispose closes all runtimes in the pool.
func (p *qjsPool) dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case rt := <-p.workers:
			rt.Close()
		default:
			return
		}
	}
}
