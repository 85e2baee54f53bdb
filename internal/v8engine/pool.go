//go:build v8

package v8engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/xchg/internal/core"
)

// v8Pool manages a fixed-size pool of pre-warmed V8 isolates.
type v8Pool struct {
	workers chan *v8Runtime
	size    int
	mu      sync.Mutex
	log     *zap.Logger
}

// newV8Pool creates size isolates, each with its adapter installed.
func newV8Pool(cfg core.EngineConfig, logger *zap.Logger) (*v8Pool, error) {
	size := max(cfg.PoolSize, 1)
	pool := &v8Pool{
		workers: make(chan *v8Runtime, size),
		size:    size,
		log:     logger,
	}

	for i := 0; i < size; i++ {
		rt, err := newRuntime(cfg, logger)
		if err != nil {
			pool.dispose()
			return nil, fmt.Errorf("creating pool isolate %d: %w", i, err)
		}
		pool.workers <- rt
	}

	return pool, nil
}

// get acquires an isolate from the pool.
func (p *v8Pool) get(ctx context.Context) (*v8Runtime, error) {
	select {
	case rt, ok := <-p.workers:
		if !ok {
			return nil, fmt.Errorf("isolate pool is closed")
		}
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// put returns an isolate to the pool after dropping its pinned values.
func (p *v8Pool) put(rt *v8Runtime) {
	if err := rt.adapter.Reset(); err != nil {
		p.log.Warn("discarding isolate that failed to reset", zap.Error(err))
		rt.Close()
		return
	}
	select {
	case p.workers <- rt:
	default:
		rt.Close()
	}
}

// dispose closes all isolates in the pool.
func (p *v8Pool) dispose() {
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
