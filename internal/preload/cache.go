package preload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"preloadd/internal/fetch"
	"preloadd/pkg/types"
)

// defaultMaxWait bounds how long a preload waits for an in-flight slot when
// a fetch limit is configured.
const defaultMaxWait = 30 * time.Second

// CacheConfig encapsulates all tunables for Cache construction.
type CacheConfig struct {
	Fetcher     fetch.Fetcher
	MaxInflight int64         // 0 = unlimited simultaneous fetches
	MaxWait     time.Duration // wait for an in-flight slot before rejecting; 0 = default
	Events      EventPublisher
}

// Cache deduplicates image preloads per source URL. Completed entries live
// for the cache's lifetime until Clear; concurrent preloads of the same URL
// coalesce into a single in-flight fetch. Failed fetches are never cached,
// so a later preload of the same URL retries.
//
// The cache is constructed explicitly and injected where needed; there is no
// ambient process-wide instance.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*fetch.Handle

	group   singleflight.Group
	fetcher fetch.Fetcher
	sem     *semaphore.Weighted // nil = unlimited
	maxWait time.Duration
	events  EventPublisher

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
	evictions atomic.Uint64
	inflight  atomic.Int64

	notReady atomic.Bool // set while startup warmup runs
}

// NewCache constructs a Cache from CacheConfig.
func NewCache(cfg CacheConfig) *Cache {
	c := &Cache{
		entries: make(map[string]*fetch.Handle),
		fetcher: cfg.Fetcher,
		maxWait: cfg.MaxWait,
		events:  cfg.Events,
	}
	if cfg.MaxInflight > 0 {
		c.sem = semaphore.NewWeighted(cfg.MaxInflight)
	}
	if c.maxWait <= 0 {
		c.maxWait = defaultMaxWait
	}
	if c.events == nil {
		c.events = noopPublisher{}
	}
	return c
}

// Preload resolves url to a loaded-image handle. A completed entry is
// returned immediately with no network access; otherwise the fetch is
// coalesced with any concurrent preload of the same URL.
func (c *Cache) Preload(ctx context.Context, url string) (*fetch.Handle, error) {
	if url == "" {
		return nil, ErrConstruction(url, fmt.Errorf("empty source URL"))
	}
	if h, ok := c.lookup(url); ok {
		c.hits.Add(1)
		cacheHitsTotal.Inc()
		return h, nil
	}
	c.misses.Add(1)
	cacheMissesTotal.Inc()

	v, err, shared := c.group.Do(url, func() (any, error) {
		return c.fetchAndStore(ctx, url)
	})
	if shared {
		c.coalesced.Add(1)
		cacheCoalescedTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*fetch.Handle), nil
}

func (c *Cache) fetchAndStore(ctx context.Context, url string) (*fetch.Handle, error) {
	// An earlier flight may have completed between the miss and this call.
	if h, ok := c.lookup(url); ok {
		return h, nil
	}

	if c.sem != nil {
		acqCtx := ctx
		if c.maxWait > 0 {
			var cancel context.CancelFunc
			acqCtx, cancel = context.WithTimeout(ctx, c.maxWait)
			defer cancel()
		}
		if err := c.sem.Acquire(acqCtx, 1); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, tooManyInflightError{source: url}
		}
		defer c.sem.Release(1)
	}

	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	start := time.Now()
	h, err := c.fetcher.Fetch(ctx, url)
	elapsed := time.Since(start)
	if err != nil {
		c.events.Publish(Event{Name: "preload_error", Source: url, Fields: map[string]any{
			"error":  err.Error(),
			"dur_ms": elapsed.Milliseconds(),
		}})
		return nil, ErrFetchFailure(url, elapsed, err)
	}

	c.mu.Lock()
	c.entries[url] = h
	c.mu.Unlock()

	c.events.Publish(Event{Name: "preload_done", Source: url, Fields: map[string]any{
		"format": h.Format,
		"bytes":  h.Bytes,
		"dur_ms": elapsed.Milliseconds(),
	}})
	return h, nil
}

func (c *Cache) lookup(url string) (*fetch.Handle, bool) {
	c.mu.RLock()
	h, ok := c.entries[url]
	c.mu.RUnlock()
	return h, ok
}

// PreloadBatch fans out independent preloads over urls and reports per-URL
// results. It fails as a whole if any single preload fails; entries that
// completed before the failure stay cached. Sibling fetches are not
// cancelled on failure.
func (c *Cache) PreloadBatch(ctx context.Context, urls []string) ([]types.PreloadResult, error) {
	results := make([]types.PreloadResult, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			cached := c.Contains(u)
			start := time.Now()
			h, err := c.Preload(ctx, u)
			if err != nil {
				return err
			}
			results[i] = types.PreloadResult{
				URL:    u,
				Format: h.Format,
				Width:  h.Width,
				Height: h.Height,
				Bytes:  h.Bytes,
				Cached: cached,
				DurMs:  time.Since(start).Milliseconds(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// PreloadAll is PreloadBatch without the per-URL results.
func (c *Cache) PreloadAll(ctx context.Context, urls []string) error {
	_, err := c.PreloadBatch(ctx, urls)
	return err
}

// Clear evicts all completed entries unconditionally and returns the number
// evicted. In-flight fetches are not cancelled; they populate the fresh map
// when they complete.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*fetch.Handle)
	c.mu.Unlock()
	c.evictions.Add(uint64(n))
	c.events.Publish(Event{Name: "cache_clear", Fields: map[string]any{"evicted": n}})
	return n
}

// Size returns the current completed-entry count.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Contains reports whether url has a completed entry.
func (c *Cache) Contains(url string) bool {
	_, ok := c.lookup(url)
	return ok
}

// Stats returns a diagnostics snapshot.
func (c *Cache) Stats() types.CacheStats {
	return types.CacheStats{
		Size:      c.Size(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Coalesced: c.coalesced.Load(),
		Evictions: c.evictions.Load(),
		Inflight:  int(c.inflight.Load()),
	}
}

// SetReady flips the readiness flag reported by Ready. The daemon marks the
// cache not ready while the startup warmup runs.
func (c *Cache) SetReady(ready bool) { c.notReady.Store(!ready) }

// Ready reports whether the cache is serving. True unless startup warmup is
// still in progress.
func (c *Cache) Ready() bool { return !c.notReady.Load() }
