package samples

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cbegin/arrange-go/internal/audio"
)

// DefaultWorkers bounds concurrent decodes in Preload.
const DefaultWorkers = 4

type cacheKey struct {
	ref  string
	rate int
}

// Cache decodes each (reference, sample rate) pair once. Concurrent loads
// of the same pair share one decode.
type Cache struct {
	store   Store
	workers int

	mu      sync.Mutex
	buffers map[cacheKey]*audio.Buffer
	group   singleflight.Group
}

// NewCache creates a cache over store decoding at most workers files at a
// time during Preload.
func NewCache(store Store, workers int) *Cache {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Cache{store: store, workers: workers, buffers: make(map[cacheKey]*audio.Buffer)}
}

// Load returns the decoded buffer for ref at rate. Cached buffers are shared
// and must not be modified.
func (c *Cache) Load(ctx context.Context, ref string, rate int) (*audio.Buffer, error) {
	if ref == "" {
		return nil, ErrNoSample
	}
	key := cacheKey{ref: ref, rate: rate}
	c.mu.Lock()
	buf, ok := c.buffers[key]
	c.mu.Unlock()
	if ok {
		return buf, nil
	}
	v, err, _ := c.group.Do(ref+"@"+strconv.Itoa(rate), func() (interface{}, error) {
		rc, err := c.store.Open(ctx, ref)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		buf, err := Read(rc, ref, rate)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.buffers[key] = buf
		c.mu.Unlock()
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*audio.Buffer), nil
}

// Preload decodes refs concurrently. It returns the failures by reference;
// one failing file does not stop the others. Empty references are skipped.
func (c *Cache) Preload(ctx context.Context, refs []string, rate int) map[string]error {
	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		g.Go(func() error {
			if _, err := c.Load(ctx, ref, rate); err != nil {
				mu.Lock()
				failed[ref] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// Cached reports whether ref is already decoded at rate.
func (c *Cache) Cached(ref string, rate int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.buffers[cacheKey{ref: ref, rate: rate}]
	return ok
}

// Forget drops every cached rate of ref.
func (c *Cache) Forget(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.buffers {
		if k.ref == ref {
			delete(c.buffers, k)
		}
	}
}

// IsMissing reports whether err means the reference could not be found or
// has no audio, as opposed to a decode failure.
func IsMissing(err error) bool {
	return errors.Is(err, ErrNoSample) || errors.Is(err, ErrNotFound)
}
