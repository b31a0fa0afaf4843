package source

import (
	"context"
	"io"
	"os"
)

// FileSource is a struct that implements the Source interface for
// streaming input records from a local file.
type FileSource struct {
	Name string // Name of the input source
	Path string // File path to read records from
}

// GetName returns the name of the input source.
func (f *FileSource) GetName() string {
	return f.Name
}

// GetPath returns the file path records are read from.
func (f *FileSource) GetPath() string {
	return f.Path
}

// Open opens the file for streaming.
func (f *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// NewFileSource creates a new FileSource for the given path.
func NewFileSource(path string) (Source, error) {
	return &FileSource{Name: path, Path: path}, nil
}
