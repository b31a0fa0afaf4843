package source

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"
)

// GitSource is a struct that implements the Source interface for
// streaming input records from a file within a git repository. The
// repository is cloned into an in-memory filesystem on the first Open;
// later Opens pull before re-reading the file.
type GitSource struct {
	mu            sync.Mutex       // Serializes clone/pull across Opens
	Name          string           // Name of the input source
	URL           *url.URL         // URL of the git repository
	Path          string           // Path to the file within the repository
	Branch        string           // Branch to use when cloning the repository
	Auth          *http.BasicAuth  // BasicAuth to use when cloning the repository
	gitRepository *git.Repository  // Go-Git repository instance for the in-memory clone
	fs            billy.Filesystem // Filesystem holding the in-memory clone
}

// GetName returns the name of the input source.
func (g *GitSource) GetName() string {
	return g.Name
}

// GetPath returns the path of the file within the repository.
func (g *GitSource) GetPath() string {
	return g.Path
}

// Open clones (or updates) the in-memory checkout and opens the file
// for streaming.
func (g *GitSource) Open(ctx context.Context) (io.ReadCloser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// If the in-memory clone of the repository does not exist, create it.
	if g.fs == nil {
		fs := memfs.New()
		logrus.Debugf("Cloning %s into memory", g.URL.String())
		cloneOptions := &git.CloneOptions{
			URL:  g.URL.String(),
			Auth: g.Auth,
		}
		if g.Branch != "" {
			cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
			cloneOptions.SingleBranch = true
		}
		r, err := git.CloneContext(ctx, memory.NewStorage(), fs, cloneOptions)
		if err != nil {
			return nil, err
		}
		logrus.Debug("Cloned")
		g.gitRepository = r
		g.fs = fs
	} else {
		// Pull the latest changes from the repository.
		w, err := g.gitRepository.Worktree()
		if err != nil {
			return nil, err
		}
		logrus.Debug("Pulling")

		pullOptions := &git.PullOptions{
			Auth: g.Auth,
		}
		if g.Branch != "" {
			pullOptions.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
			pullOptions.SingleBranch = true
			pullOptions.Force = true
		}

		err = w.PullContext(ctx, pullOptions)
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return nil, err
		}
		if err == git.NoErrAlreadyUpToDate {
			logrus.Debug("Already up to date")
		} else {
			logrus.Debug("Pulled")
		}
	}

	return g.fs.Open(g.Path)
}

// NewGitSource creates a new GitSource for the given repository URL and
// file path.
func NewGitSource(rawURL, path string) (Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &GitSource{Name: parsed.Host + ":" + path, URL: parsed, Path: path}, nil
}
