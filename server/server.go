// Package server exposes the progress of registered pools over HTTP.
// Each pool is served at /<name> as a YAML snapshot of its counters,
// behind etag and optional API-key auth, and logged periodically while
// the server runs.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-http-utils/etag"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/saksenad/vimap"
)

type Server struct {
	Pools          map[string]*vimap.Pool
	ReportInterval time.Duration
	cancel         context.CancelFunc
	AuthKey        string
}

// NewServer registers the given pools and starts one reporting
// goroutine per pool, logging a progress snapshot every interval until
// Stop is called or ctx is canceled.
func NewServer(ctx context.Context, pools map[string]*vimap.Pool, reportInterval time.Duration) *Server {
	if reportInterval < 5*time.Second {
		logrus.Warn("report interval too low, setting it to 5 seconds")
		reportInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	server := &Server{
		Pools:          pools,
		ReportInterval: reportInterval,
		cancel:         cancel,
	}
	for name, pool := range server.Pools {
		go report(ctx, name, pool, reportInterval)
	}
	return server
}

// report logs a pool's progress snapshot on every tick.
func report(ctx context.Context, name string, pool *vimap.Pool, reportInterval time.Duration) {
	ticker := time.NewTicker(reportInterval)
	for {
		select {
		case <-ticker.C:
			snapshot := pool.Progress()
			logrus.WithFields(logrus.Fields{
				"pool":      name,
				"spooled":   snapshot.Spooled,
				"completed": snapshot.Completed,
				"failed":    snapshot.Failed,
				"running":   snapshot.Running,
			}).Info("pool progress")
		case <-ctx.Done():
			ticker.Stop()
			return
		}
	}
}

// Stop cancels the reporting goroutines.
func (s *Server) Stop() {
	s.cancel()
}

// Start serves progress snapshots on the given address. It blocks.
func (s *Server) Start(addr string) {
	logrus.Info("Starting progress server")

	handlers := s.CreateHandlers()
	handler := etag.Handler(handlers, false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}

	err := http.ListenAndServe(addr, handler)
	if err != nil {
		logrus.WithError(err).Fatal("error starting server")
	}
}

// CreateHandlers builds the mux serving one snapshot endpoint per
// registered pool.
func (s *Server) CreateHandlers() http.Handler {
	mux := http.NewServeMux()
	for name, pool := range s.Pools {
		pool := pool
		mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "GET" && r.Method != "HEAD" {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			response, err := yaml.Marshal(pool.Progress())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/yaml")
			_, err = w.Write(response)
			if err != nil {
				logrus.WithError(err).Error("error writing response")
			}
		})
	}
	return mux
}
