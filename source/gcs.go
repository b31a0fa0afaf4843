package source

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
)

// GCSSource is a struct that implements the Source interface for
// streaming input records from an object in a GCS bucket.
type GCSSource struct {
	Name          string          // Name of the input source
	BucketName    string          // Name of the GCS bucket
	ObjectName    string          // Name of the object within the GCS bucket
	Client        *storage.Client // GCS client instance
	clientOnce    sync.Once       // Ensures client is initialized only once
	clientInitErr error           // Stores error from client initialization
}

// GetName returns the name of the input source.
func (g *GCSSource) GetName() string {
	return g.Name
}

// GetPath returns the GCS bucket and object name of the input.
func (g *GCSSource) GetPath() string {
	return g.BucketName + "/" + g.ObjectName
}

// Open creates a reader over the object for streaming.
func (g *GCSSource) Open(ctx context.Context) (io.ReadCloser, error) {
	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if g.Client == nil {
		g.clientOnce.Do(func() {
			g.Client, g.clientInitErr = storage.NewClient(ctx)
		})
		if g.clientInitErr != nil {
			return nil, g.clientInitErr
		}
	}

	bucket := g.Client.Bucket(g.BucketName)
	obj := bucket.Object(g.ObjectName)
	return obj.NewReader(ctx)
}

// NewGCSSource creates a new GCSSource for the given bucket and object.
func NewGCSSource(bucket, object string) (Source, error) {
	return &GCSSource{Name: bucket + "/" + object, BucketName: bucket, ObjectName: object}, nil
}
