package core

import "context"

// EngineBackend is the interface that engine implementations (QuickJS, V8)
// must satisfy. The root xchg.Engine facade delegates to one of these
// based on build tags.
type EngineBackend interface {
	// Name identifies the engine ("quickjs", "v8").
	Name() string
	// Acquire takes a pre-warmed runtime from the pool, blocking until one
	// is free or ctx is done.
	Acquire(ctx context.Context) (Instance, error)
	// Put resets a runtime and returns it to the pool.
	Put(inst Instance)
	// Shutdown disposes every pooled runtime.
	Shutdown()
}

// Instance is one pooled runtime together with its adapter.
type Instance interface {
	JSRuntime
	BinaryTransferer
	AdapterProvider
	Close()
}
