package vimap

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// WorkerError is the failure a stream reports when a worker returns an
// error or panics. It records which worker failed and, when the failure
// happened while processing, the offending input.
type WorkerError struct {
	Worker int         // Index of the worker slot that failed.
	Input  interface{} // Input being processed, nil for Setup failures.
	Err    error       // The underlying failure.
}

func (e *WorkerError) Error() string {
	if e.Input == nil {
		return fmt.Sprintf("vimap: worker %d: %v", e.Worker, e.Err)
	}
	return fmt.Sprintf("vimap: worker %d failed on input %v: %v", e.Worker, e.Input, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// panicError turns a recovered panic value into an error, preserving
// it when it already is one.
func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("worker panic: %w", err)
	}
	return fmt.Errorf("worker panic: %v", r)
}

// reportWorkerError logs a worker failure at the site it happened, so
// failures are visible even when the consumer only checks Err() much
// later (or never).
func reportWorkerError(err *WorkerError) {
	logrus.WithError(err.Err).
		WithField("worker", err.Worker).
		WithField("input", err.Input).
		Error("vimap worker failed")
}
