package vimap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkedOrderedOutputs(t *testing.T) {
	double := WorkerFunc(func(_ context.Context, input interface{}) (interface{}, error) {
		return 2 * input.(int), nil
	})
	for _, n := range []int{2, 4, 8, 32, 3200} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			pool, err := ForkChunkedFunc(context.Background(), double, NumWorkers(8), Ordered())
			require.NoError(t, err)
			defer pool.Close()

			stream := pool.ImapSlice(intSlice(n))
			i := 0
			for out := range stream.Outputs() {
				require.Equal(t, 2*i, out)
				i++
			}
			require.NoError(t, stream.Err())
			assert.Equal(t, n, i)
		})
	}
}

type indexed struct {
	input  int
	worker int
}

// TestChunkDistribution makes sure inputs really are grouped into
// chunks and a whole chunk goes to one worker: 8 inputs at chunk size
// 3 must split [0 1 2] [3 4 5] [6 7], each group processed by a single
// worker. The per-input delay keeps one worker from finishing its
// chunk and stealing the next before the other workers get theirs.
func TestChunkDistribution(t *testing.T) {
	factory := func(index int) Worker {
		return WorkerFunc(func(_ context.Context, input interface{}) (interface{}, error) {
			time.Sleep(50 * time.Millisecond)
			return indexed{input: input.(int), worker: index}, nil
		})
	}
	// spool large enough that all three chunks dispatch immediately,
	// one to each idle worker
	pool, err := Fork(context.Background(), factory, NumWorkers(3), ChunkSize(3), Spool(8), Ordered())
	require.NoError(t, err)
	defer pool.Close()

	stream := pool.ImapSlice(intSlice(8))
	results := make([]indexed, 0, 8)
	for out := range stream.Outputs() {
		results = append(results, out.(indexed))
	}
	require.NoError(t, stream.Err())
	require.Len(t, results, 8)

	// group consecutive outputs by the worker that produced them
	var groups [][]int
	for i, r := range results {
		assert.Equal(t, i, r.input)
		if i == 0 || r.worker != results[i-1].worker {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r.input)
	}
	expected := [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7}}
	assert.Equal(t, expected, groups)
}

func TestChunkedErrorAbortsBatch(t *testing.T) {
	fn := WorkerFunc(func(_ context.Context, input interface{}) (interface{}, error) {
		if input.(int) == 5 {
			return nil, fmt.Errorf("bad value: %d", input)
		}
		return input, nil
	})
	pool, err := ForkFunc(context.Background(), fn, NumWorkers(2), ChunkSize(3), Ordered())
	require.NoError(t, err)
	defer pool.Close()

	err = pool.ImapSlice(intSlice(30)).BlockIgnoreOutput()
	var werr *WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, 5, werr.Input)
}

func TestChunkSizeLargerThanInput(t *testing.T) {
	pool, err := ForkFunc(context.Background(), addOne, NumWorkers(2), ChunkSize(100), Ordered())
	require.NoError(t, err)
	defer pool.Close()

	stream := pool.ImapSlice(intSlice(7))
	i := 0
	for out := range stream.Outputs() {
		require.Equal(t, i+1, out)
		i++
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, 7, i)
}
