package vimap

import (
	"context"
)

// Worker processes inputs one at a time. A pool builds one Worker per
// worker goroutine, calls Setup once before the first input, Process
// for every input handed to that goroutine, and Teardown once when the
// pool is closed. Implementations do not need to be safe for concurrent
// use; each Worker is owned by exactly one goroutine.
type Worker interface {
	Setup(ctx context.Context) error
	Process(ctx context.Context, input interface{}) (interface{}, error)
	Teardown() error
}

// WorkerFunc adapts a plain function to the Worker interface with no-op
// Setup and Teardown.
type WorkerFunc func(ctx context.Context, input interface{}) (interface{}, error)

func (f WorkerFunc) Setup(ctx context.Context) error { return nil }

func (f WorkerFunc) Process(ctx context.Context, input interface{}) (interface{}, error) {
	return f(ctx, input)
}

func (f WorkerFunc) Teardown() error { return nil }

// Factory builds the Worker for one pool slot. The index identifies the
// slot, so a factory can hand different state to each worker.
type Factory func(index int) Worker

// Identical returns a Factory that gives every slot the same Worker.
// The Worker must then tolerate concurrent use from all slots.
func Identical(w Worker) Factory {
	return func(int) Worker { return w }
}

// IdenticalFunc returns a Factory that gives every slot the same
// process function.
func IdenticalFunc(f WorkerFunc) Factory {
	return func(int) Worker { return f }
}
