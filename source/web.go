package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// WebSource is a struct that implements the Source interface for
// streaming input records from a remote HTTP endpoint (web URL).
type WebSource struct {
	Name   string   // Name of the input source
	URL    *url.URL // URL representing the remote HTTP endpoint (web URL)
	APIKey string   // Optional API key for X-API-Key header authentication
}

// GetName returns the name of the input source.
func (w *WebSource) GetName() string {
	return w.Name
}

// GetPath returns the URL records are fetched from.
func (w *WebSource) GetPath() string {
	return w.URL.String()
}

// Open performs the HTTP request and hands back the response body for
// streaming. The body is not buffered; records are read off the wire
// as the pool consumes them.
func (w *WebSource) Open(ctx context.Context) (io.ReadCloser, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL.String(), nil)
	if err != nil {
		logrus.Debug("error creating request")
		return nil, err
	}

	// Set X-API-Key header if API key is configured
	if w.APIKey != "" {
		request.Header.Set("X-API-Key", w.APIKey)
	}

	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		logrus.Debug("error doing request")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
		return nil, fmt.Errorf("unexpected status %s fetching %s", resp.Status, w.URL)
	}
	return resp.Body, nil
}

// NewWebSource creates a new WebSource for the given URL.
func NewWebSource(rawURL string) (Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &WebSource{Name: parsed.Host + parsed.Path, URL: parsed}, nil
}
