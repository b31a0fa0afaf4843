package vimap

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errAlways = errors.New("always fails")

// waitForGoroutines polls until the goroutine count drops back to the
// baseline or the deadline passes. Counting is inherently racy (the
// runtime may briefly keep exited goroutines around), so we retry
// instead of asserting a single snapshot.
func waitForGoroutines(baseline int) int {
	deadline := time.Now().Add(2 * time.Second)
	for {
		runtime.Gosched()
		n := runtime.NumGoroutine()
		if n <= baseline || time.Now().After(deadline) {
			return n
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestNoGoroutinesLeftAround is the resource-cleanup guarantee: after a
// batch is consumed and the pool closed, every goroutine the pool
// started (workers, feeder, collector, output adapter) is gone.
// Repeated to catch flaky leaks.
func TestNoGoroutinesLeftAround(t *testing.T) {
	baseline := runtime.NumGoroutine()

	for i := 0; i < 30; i++ {
		pool, err := ForkFunc(context.Background(), addOne, NumWorkers(1))
		require.NoError(t, err)

		afterFork := runtime.NumGoroutine()
		require.Greater(t, afterFork, baseline, "forking should start goroutines")

		stream := pool.ImapSlice([]interface{}{1, 2, 3})
		count := 0
		for pair := range stream.ZipInOut() {
			require.Equal(t, pair.Input.(int)+1, pair.Output)
			count++
		}
		require.NoError(t, stream.Err())
		require.Equal(t, 3, count)

		pool.Close()

		leftAround := waitForGoroutines(baseline)
		require.LessOrEqual(t, leftAround, baseline,
			"iteration %d: %d goroutines left around (baseline %d)", i, leftAround, baseline)
	}
}

// TestNoGoroutinesLeftAfterFailure checks the same guarantee when a
// batch is aborted by a worker failure instead of finishing cleanly.
func TestNoGoroutinesLeftAfterFailure(t *testing.T) {
	baseline := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		fn := WorkerFunc(func(_ context.Context, input interface{}) (interface{}, error) {
			if input.(int) == 1 {
				return nil, errAlways
			}
			return input, nil
		})
		pool, err := ForkFunc(context.Background(), fn, NumWorkers(2))
		require.NoError(t, err)

		require.Error(t, pool.ImapSlice(intSlice(10)).BlockIgnoreOutput())
		pool.Close()

		leftAround := waitForGoroutines(baseline)
		require.LessOrEqual(t, leftAround, baseline,
			"iteration %d: %d goroutines left around (baseline %d)", i, leftAround, baseline)
	}
}
