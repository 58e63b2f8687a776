// Package samples fetches track audio by reference, decodes it to the engine
// sample rate and caches the result.
package samples

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNoSample means the track has no audio reference. It is not a
	// failure; callers treat the track as silent.
	ErrNoSample = errors.New("samples: track has no audio")
	ErrNotFound = errors.New("samples: not found")
)

// Store opens sample data by reference (a path or URL).
type Store interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// DirStore serves files below Root. Absolute references are used as is.
type DirStore struct {
	Root string
}

func (s DirStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, ErrNoSample
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Root, filepath.FromSlash(ref))
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return f, err
}

// HTTPStore fetches http(s) references.
type HTTPStore struct {
	Client *http.Client
}

// NewHTTPStore creates a store with a bounded request timeout.
func NewHTTPStore() *HTTPStore {
	return &HTTPStore{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *HTTPStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, ErrNoSample
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	return resp.Body, nil
}

// MultiStore routes URL references to Remote and everything else to Local.
type MultiStore struct {
	Local  Store
	Remote Store
}

func (s MultiStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, ErrNoSample
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if s.Remote == nil {
			return nil, fmt.Errorf("%w: no remote store for %s", ErrNotFound, ref)
		}
		return s.Remote.Open(ctx, ref)
	}
	if s.Local == nil {
		return nil, fmt.Errorf("%w: no local store for %s", ErrNotFound, ref)
	}
	return s.Local.Open(ctx, ref)
}

// NewStore returns the default store: files under dir plus http(s) URLs.
func NewStore(dir string) Store {
	return MultiStore{Local: DirStore{Root: dir}, Remote: NewHTTPStore()}
}

// MemStore serves in-memory blobs. It is handy for tests and embedding.
type MemStore map[string][]byte

func (s MemStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if ref == "" {
		return nil, ErrNoSample
	}
	data, ok := s[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}
