package vimap

import "context"

// DefaultChunkSize is the chunk size used by the chunked fork helpers
// when the caller does not pick one.
const DefaultChunkSize = 100

// ForkChunked forks a pool that hands each worker a chunk of
// consecutive inputs per task instead of a single input. Chunking cuts
// the per-input channel handoff overhead, which dominates when the
// per-input work is tiny. Consumers are unaffected: they still see one
// output per input, and an ordered pool still delivers outputs in
// input order across chunk boundaries.
//
// The chunk size can be overridden with the ChunkSize option; otherwise
// DefaultChunkSize is used. A trailing chunk may be short: 8 inputs at
// chunk size 3 become chunks of 3, 3, and 2.
func ForkChunked(ctx context.Context, factory Factory, opts ...Option) (*Pool, error) {
	withDefault := append([]Option{ChunkSize(DefaultChunkSize)}, opts...)
	return Fork(ctx, factory, withDefault...)
}

// ForkChunkedFunc is ForkChunked with every worker running the same
// function.
func ForkChunkedFunc(ctx context.Context, fn WorkerFunc, opts ...Option) (*Pool, error) {
	return ForkChunked(ctx, IdenticalFunc(fn), opts...)
}
