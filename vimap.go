// Package vimap maps a stream of inputs over a pool of parallel worker
// goroutines. Inputs are spooled lazily, a bounded number at a time, so
// arbitrarily large (or infinite) input streams can be processed in
// constant memory. Outputs can be consumed in completion order or in
// input order, optionally chunked to cut per-input handoff overhead.
package vimap

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/saksenad/vimap/model"
)

// ErrPoolClosed is the failure reported by a stream that was aborted
// because its pool was closed mid-batch.
var ErrPoolClosed = errors.New("vimap: pool closed")

// Option configures a Pool at fork time.
type Option func(*options)

type options struct {
	numWorkers int
	spool      int
	ordered    bool
	chunkSize  int
}

// NumWorkers sets how many worker goroutines the pool runs. The default
// is runtime.NumCPU().
func NumWorkers(n int) Option {
	return func(o *options) { o.numWorkers = n }
}

// Spool bounds how many inputs may be read ahead of what the consumer
// has received. The default is twice the worker count.
func Spool(n int) Option {
	return func(o *options) { o.spool = n }
}

// Ordered makes streams deliver outputs in input order instead of
// completion order. The reorder buffer is bounded by the spool size.
func Ordered() Option {
	return func(o *options) { o.ordered = true }
}

// ChunkSize makes the pool hand workers chunks of n consecutive inputs
// per task instead of single inputs. Consumers still see one output per
// input. See chunk.go.
func ChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// Pool owns a set of worker goroutines that drain a shared task
// channel. A pool is forked once and can run any number of sequential
// imap batches before being closed.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   options
	tasks  chan *task

	workerWG sync.WaitGroup // worker goroutines
	feedWG   sync.WaitGroup // feeder goroutines of streams

	mu       sync.Mutex
	active   *Stream
	closed   bool
	setupErr *WorkerError

	closeOnce sync.Once

	spooled   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	running   atomic.Bool
}

// task is one unit handed to a worker: a single input, or a chunk of
// consecutive inputs when chunking is on. seq orders tasks within a
// stream.
type task struct {
	seq    uint64
	inputs []interface{}
	stream *Stream
}

// Fork starts a pool. The factory is called once per worker slot. The
// returned pool keeps running until Close is called or ctx is canceled.
func Fork(ctx context.Context, factory Factory, opts ...Option) (*Pool, error) {
	o := options{
		numWorkers: runtime.NumCPU(),
		chunkSize:  1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.spool <= 0 {
		o.spool = 2 * o.numWorkers
	}
	if o.spool < o.chunkSize {
		// The feeder holds a spool slot per input while it assembles a
		// chunk, so the spool must fit at least one whole chunk.
		o.spool = o.chunkSize
	}
	if o.numWorkers <= 0 {
		return nil, errors.New("vimap: number of workers must be positive")
	}
	if o.chunkSize <= 0 {
		return nil, errors.New("vimap: chunk size must be positive")
	}
	if factory == nil {
		return nil, errors.New("vimap: worker factory is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		opts:   o,
		tasks:  make(chan *task),
	}
	p.running.Store(true)

	for i := 0; i < o.numWorkers; i++ {
		p.workerWG.Add(1)
		go p.runWorker(i, factory(i))
	}
	return p, nil
}

// ForkFunc forks a pool in which every worker runs the same function.
func ForkFunc(ctx context.Context, fn WorkerFunc, opts ...Option) (*Pool, error) {
	return Fork(ctx, IdenticalFunc(fn), opts...)
}

// runWorker is the loop each worker goroutine runs: set up once, drain
// tasks until the pool closes, then tear down. A Setup failure does not
// kill the goroutine; it is recorded on the pool so it surfaces from
// the first stream, and any task the slot still pulls fails with it.
func (p *Pool) runWorker(index int, w Worker) {
	defer p.workerWG.Done()

	setupErr := p.safeSetup(index, w)
	if setupErr != nil {
		p.recordSetupError(setupErr)
	} else {
		defer func() {
			if err := w.Teardown(); err != nil {
				logrus.WithError(err).WithField("worker", index).Error("worker teardown failed")
			}
		}()
	}

	for t := range p.tasks {
		if setupErr != nil {
			p.failed.Add(uint64(len(t.inputs)))
			t.stream.fail(setupErr)
			continue
		}
		p.processTask(index, w, t)
	}
}

// recordSetupError keeps the first Setup failure and aborts the active
// stream. A batch whose tasks all land on healthy workers would
// otherwise never see the broken slot.
func (p *Pool) recordSetupError(err *WorkerError) {
	reportWorkerError(err)
	p.mu.Lock()
	if p.setupErr == nil {
		p.setupErr = err
	}
	active := p.active
	p.mu.Unlock()
	if active != nil {
		active.fail(err)
	}
}

func (p *Pool) safeSetup(index int, w Worker) (werr *WorkerError) {
	defer func() {
		if r := recover(); r != nil {
			werr = &WorkerError{Worker: index, Err: panicError(r)}
		}
	}()
	if err := w.Setup(p.ctx); err != nil {
		return &WorkerError{Worker: index, Err: err}
	}
	return nil
}

// processTask runs every input of the task through the worker and
// delivers the results. The first failure aborts the whole task (and
// with it the stream); inputs after the failure in the same chunk are
// not processed.
func (p *Pool) processTask(index int, w Worker, t *task) {
	if t.stream.aborted() {
		return
	}
	outputs := make([]interface{}, 0, len(t.inputs))
	for _, in := range t.inputs {
		out, err := safeProcess(p.ctx, index, w, in)
		if err != nil {
			p.failTask(t, err)
			return
		}
		outputs = append(outputs, out)
	}
	t.stream.deliver(result{seq: t.seq, inputs: t.inputs, outputs: outputs})
}

func (p *Pool) failTask(t *task, err *WorkerError) {
	p.failed.Add(uint64(len(t.inputs)))
	reportWorkerError(err)
	t.stream.fail(err)
}

func safeProcess(ctx context.Context, index int, w Worker, input interface{}) (out interface{}, werr *WorkerError) {
	defer func() {
		if r := recover(); r != nil {
			out, werr = nil, &WorkerError{Worker: index, Input: input, Err: panicError(r)}
		}
	}()
	out, err := w.Process(ctx, input)
	if err != nil {
		return nil, &WorkerError{Worker: index, Input: input, Err: err}
	}
	return out, nil
}

// Imap begins one batch: inputs are spooled lazily from the channel and
// processed by the pool's workers. At most one unfinished stream may
// exist per pool; calling Imap while the previous stream is still being
// consumed panics. The pool itself stays usable for further batches
// after the stream finishes.
func (p *Pool) Imap(inputs <-chan interface{}) *Stream {
	return p.imap(func(ctx context.Context) (interface{}, bool) {
		// the receive must stay cancelable, or an aborted stream would
		// leave the feeder parked here and wedge Close
		select {
		case in, ok := <-inputs:
			return in, ok
		case <-ctx.Done():
			return nil, false
		}
	})
}

// ImapSlice is Imap for an in-memory slice.
func (p *Pool) ImapSlice(inputs []interface{}) *Stream {
	i := 0
	return p.imap(func(context.Context) (interface{}, bool) {
		if i >= len(inputs) {
			return nil, false
		}
		in := inputs[i]
		i++
		return in, true
	})
}

func (p *Pool) imap(pull func(context.Context) (interface{}, bool)) *Stream {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic("vimap: Imap on a closed pool")
	}
	if p.active != nil && !p.active.finished() {
		p.mu.Unlock()
		panic("vimap: concurrent Imap on the same pool")
	}
	s := newStream(p)
	p.active = s
	setupErr := p.setupErr
	p.mu.Unlock()

	if setupErr != nil {
		s.fail(setupErr)
	}

	p.feedWG.Add(1)
	go func() {
		defer p.feedWG.Done()
		s.feed(pull)
	}()
	go s.collect()
	return s
}

// Close aborts any in-flight stream, stops the workers (running their
// Teardown), and waits for every goroutine the pool started to exit.
// It is idempotent and safe to call concurrently with consumers.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		active := p.active
		p.mu.Unlock()

		if active != nil {
			active.fail(&WorkerError{Worker: -1, Err: ErrPoolClosed})
		}
		p.cancel()
		p.feedWG.Wait()
		close(p.tasks)
		p.workerWG.Wait()
		p.running.Store(false)
	})
}

// Progress returns a point-in-time snapshot of the pool's counters.
func (p *Pool) Progress() model.Snapshot {
	return model.Snapshot{
		Workers:   p.opts.numWorkers,
		Spooled:   p.spooled.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Running:   p.running.Load(),
	}
}
