package landmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teslashibe/go-focuscoach/internal/httpc"
)

// FileLoader loads a model from a file on disk.
type FileLoader struct {
	Path string

	// New builds the model; defaults to NewYuNet.
	New func(path string) (Model, error)
}

var _ Loader = (*FileLoader)(nil)

// Available reports whether the model file exists and is non-empty.
func (l *FileLoader) Available() bool {
	fi, err := os.Stat(l.Path)
	return err == nil && !fi.IsDir() && fi.Size() > 0
}

// Load implements Loader.
func (l *FileLoader) Load() (Model, error) {
	if l.New != nil {
		return l.New(l.Path)
	}
	return NewYuNet(l.Path)
}

// Fetcher downloads the model file in the background and reports it
// available once the download completes.
type Fetcher struct {
	*FileLoader

	URL    string
	Client *http.Client
	Logger *slog.Logger

	once sync.Once
	mu   sync.Mutex
	err  error
	done chan struct{}
}

// NewFetcher creates a fetcher that downloads url to path when missing.
func NewFetcher(path, url string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		FileLoader: &FileLoader{Path: path},
		URL:        url,
		Client:     httpc.NewClient(2 * time.Minute),
		Logger:     logger.With("component", "model-fetcher"),
		done:       make(chan struct{}),
	}
}

// Start begins the download if the file is missing. It returns
// immediately; use Available or Done to observe completion.
func (f *Fetcher) Start(ctx context.Context) {
	f.once.Do(func() {
		if f.FileLoader.Available() {
			close(f.done)
			return
		}
		go func() {
			defer close(f.done)
			err := f.Fetch(ctx)
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
			if err != nil {
				f.Logger.Warn("model download failed", "url", f.URL, "error", err)
			}
		}()
	})
}

// Done is closed when the background download finishes.
func (f *Fetcher) Done() <-chan struct{} { return f.done }

// Err returns the download error, if any.
func (f *Fetcher) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Fetch downloads the model synchronously, writing atomically.
func (f *Fetcher) Fetch(ctx context.Context) error {
	if f.URL == "" {
		return fmt.Errorf("no model url configured")
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".model-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("download model: empty body")
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("install model: %w", err)
	}

	f.Logger.Info("model downloaded", "path", f.Path, "bytes", n)
	return nil
}
