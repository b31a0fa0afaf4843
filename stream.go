package vimap

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/saksenad/vimap/model"
)

// result is what a worker hands back for one task. inputs and outputs
// are parallel slices; a task carries one input unless chunking is on.
type result struct {
	seq     uint64
	inputs  []interface{}
	outputs []interface{}
}

// totals is the feeder's final accounting, sent to the collector once
// the input is exhausted.
type totals struct {
	tasks  uint64
	inputs uint64
}

// Stream is one imap batch over a pool. Consume it through ZipInOut,
// Outputs, or BlockIgnoreOutput, then check Err. A stream must be
// consumed (or the pool closed) before the next Imap call on the pool.
type Stream struct {
	pool *Pool

	ctx    context.Context
	cancel context.CancelFunc

	// sem bounds how many inputs are spooled but not yet delivered.
	// The feeder acquires one slot per input; the collector releases
	// it at delivery. This is what keeps input consumption lazy and
	// the ordered reorder buffer bounded.
	sem *semaphore.Weighted

	results  chan result
	feedDone chan totals
	pairs    chan model.Pair

	errOnce  sync.Once
	err      error
	done     atomic.Bool
	consumed atomic.Bool
}

func newStream(p *Pool) *Stream {
	ctx, cancel := context.WithCancel(p.ctx)
	return &Stream{
		pool:     p,
		ctx:      ctx,
		cancel:   cancel,
		sem:      semaphore.NewWeighted(int64(p.opts.spool)),
		results:  make(chan result, p.opts.numWorkers),
		feedDone: make(chan totals, 1),
		pairs:    make(chan model.Pair),
	}
}

// feed pulls inputs one at a time, groups them into tasks of the
// pool's chunk size, and hands them to the workers. It never pulls an
// input before holding a spool slot for it, which is the laziness
// guarantee: at most spool inputs exist beyond what the consumer has
// received.
func (s *Stream) feed(pull func(context.Context) (interface{}, bool)) {
	var t totals
	chunkSize := s.pool.opts.chunkSize

	for {
		inputs := make([]interface{}, 0, chunkSize)
		for len(inputs) < chunkSize {
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return // stream aborted or pool closed
			}
			in, ok := pull(s.ctx)
			if s.ctx.Err() != nil {
				s.sem.Release(1)
				return
			}
			if !ok {
				s.sem.Release(1)
				break
			}
			s.pool.spooled.Add(1)
			inputs = append(inputs, in)
		}
		if len(inputs) == 0 {
			break
		}
		next := &task{seq: t.tasks, inputs: inputs, stream: s}
		select {
		case s.pool.tasks <- next:
		case <-s.ctx.Done():
			return
		}
		t.tasks++
		t.inputs += uint64(len(inputs))
		if len(inputs) < chunkSize {
			break // input exhausted mid-chunk
		}
	}
	s.feedDone <- t
}

// collect receives results from the workers and delivers pairs to the
// consumer, reordering by task sequence when the pool is ordered.
func (s *Stream) collect() {
	defer func() {
		s.done.Store(true)
		s.cancel() // release the stream context on clean finishes too
		close(s.pairs)
	}()

	var (
		total     totals
		haveTotal bool
		delivered uint64
		nextSeq   uint64
		pending   map[uint64]result
	)
	if s.pool.opts.ordered {
		pending = make(map[uint64]result)
	}

	for {
		if haveTotal && delivered == total.inputs {
			return
		}
		select {
		case r := <-s.results:
			if s.pool.opts.ordered {
				pending[r.seq] = r
				for {
					next, ok := pending[nextSeq]
					if !ok {
						break
					}
					delete(pending, nextSeq)
					if !s.emit(next) {
						return
					}
					delivered += uint64(len(next.inputs))
					nextSeq++
				}
			} else {
				if !s.emit(r) {
					return
				}
				delivered += uint64(len(r.inputs))
			}
		case t := <-s.feedDone:
			total, haveTotal = t, true
		case <-s.ctx.Done():
			s.record(context.Cause(s.ctx))
			return
		}
	}
}

// emit delivers every pair of one result. It reports false when the
// stream aborted while the consumer was not receiving.
func (s *Stream) emit(r result) bool {
	for i := range r.inputs {
		select {
		case s.pairs <- model.Pair{Input: r.inputs[i], Output: r.outputs[i]}:
			s.sem.Release(1)
			s.pool.completed.Add(1)
		case <-s.ctx.Done():
			s.record(context.Cause(s.ctx))
			return false
		}
	}
	return true
}

// deliver is called by workers. Results are dropped once the stream
// has aborted so workers can never block on a dead batch.
func (s *Stream) deliver(r result) {
	select {
	case s.results <- r:
	case <-s.ctx.Done():
	}
}

// fail aborts the stream with the given failure. The first failure
// wins; later ones (and failures after the stream finished) are
// dropped. Remaining spooled inputs are discarded.
func (s *Stream) fail(err *WorkerError) {
	if s.done.Load() {
		return
	}
	s.record(err)
}

func (s *Stream) record(err error) {
	s.errOnce.Do(func() {
		s.err = err
		s.cancel()
	})
}

func (s *Stream) aborted() bool {
	return s.ctx.Err() != nil
}

func (s *Stream) finished() bool {
	return s.done.Load()
}

// ZipInOut returns the channel of (input, output) pairs. In an ordered
// pool pairs arrive in input order; otherwise in completion order. The
// channel closes when the batch finishes or fails; check Err after.
func (s *Stream) ZipInOut() <-chan model.Pair {
	return s.pairs
}

// Outputs returns a channel of outputs only, in the same order
// ZipInOut would deliver them.
func (s *Stream) Outputs() <-chan interface{} {
	out := make(chan interface{})
	go func() {
		defer close(out)
		for pair := range s.pairs {
			out <- pair.Output
		}
	}()
	return out
}

// BlockIgnoreOutput drains the stream, discarding outputs, and returns
// the batch's failure, if any.
func (s *Stream) BlockIgnoreOutput() error {
	for range s.pairs {
	}
	return s.Err()
}

// Err returns the failure that aborted the stream, or nil. It is valid
// once the ZipInOut / Outputs channel has closed.
func (s *Stream) Err() error {
	if !s.done.Load() {
		return nil
	}
	return s.err
}
