// Package ext provides one-call conveniences over the core pool: fork,
// feed, collect, close, in a single function call. They trade the
// streaming interface for a collected slice, so they are meant for
// inputs that comfortably fit in memory.
package ext

import (
	"context"

	"github.com/saksenad/vimap"
)

// ImapUnordered runs fn over the inputs on a freshly forked pool and
// returns the outputs in completion order. The pool is closed before
// returning. The first worker failure aborts the run and is returned
// as a *vimap.WorkerError.
func ImapUnordered(ctx context.Context, fn vimap.WorkerFunc, inputs []interface{}, opts ...vimap.Option) ([]interface{}, error) {
	return run(ctx, fn, inputs, opts)
}

// ImapOrdered is ImapUnordered with outputs in input order.
func ImapOrdered(ctx context.Context, fn vimap.WorkerFunc, inputs []interface{}, opts ...vimap.Option) ([]interface{}, error) {
	return run(ctx, fn, inputs, combine(nil, opts, vimap.Ordered()))
}

// ImapOrderedChunked is ImapOrdered over a chunked pool. Options apply
// left to right, so a ChunkSize in opts overrides the prepended
// default.
func ImapOrderedChunked(ctx context.Context, fn vimap.WorkerFunc, inputs []interface{}, opts ...vimap.Option) ([]interface{}, error) {
	head := []vimap.Option{vimap.ChunkSize(vimap.DefaultChunkSize)}
	return run(ctx, fn, inputs, combine(head, opts, vimap.Ordered()))
}

// combine builds a fresh slice; appending straight onto opts could
// write through its spare capacity into the caller's backing array.
func combine(head, opts []vimap.Option, tail ...vimap.Option) []vimap.Option {
	all := make([]vimap.Option, 0, len(head)+len(opts)+len(tail))
	all = append(all, head...)
	all = append(all, opts...)
	return append(all, tail...)
}

func run(ctx context.Context, fn vimap.WorkerFunc, inputs []interface{}, opts []vimap.Option) ([]interface{}, error) {
	pool, err := vimap.ForkFunc(ctx, fn, opts...)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	stream := pool.ImapSlice(inputs)
	outputs := make([]interface{}, 0, len(inputs))
	for out := range stream.Outputs() {
		outputs = append(outputs, out)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}
