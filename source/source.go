// Package source provides streamed input sources for feeding pools:
// local files, HTTP endpoints, S3 and GCS objects, and files inside
// git repositories. A source is opened per batch and read lazily, so
// inputs larger than memory stream straight into the workers.
package source

import (
	"bufio"
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Source is a named, re-openable stream of input data.
type Source interface {
	GetName() string
	GetPath() string
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Records opens the source and emits one record per line, with the
// line terminator stripped, until the source is exhausted or ctx is
// canceled. The channel is closed in either case. Read and open errors
// are logged and end the stream; a pool consuming the channel simply
// sees its input finish early.
func Records(ctx context.Context, src Source) <-chan interface{} {
	out := make(chan interface{})
	go func() {
		defer close(out)

		reader, err := src.Open(ctx)
		if err != nil {
			logrus.WithError(err).WithField("source", src.GetName()).Error("error opening source")
			return
		}
		defer func() {
			if err := reader.Close(); err != nil {
				logrus.WithError(err).WithField("source", src.GetName()).Error("error closing source")
			}
		}()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logrus.WithError(err).WithField("source", src.GetName()).Error("error reading source")
		}
	}()
	return out
}

// maxRecordSize caps a single record at 1 MiB.
const maxRecordSize = 1 << 20
