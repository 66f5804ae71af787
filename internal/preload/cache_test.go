package preload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPreload_CachesCompletedEntry(t *testing.T) {
	ff := newFakeFetcher()
	c := NewCache(CacheConfig{Fetcher: ff})

	h1, err := c.Preload(context.Background(), "https://cdn.test/a.png")
	if err != nil { t.Fatalf("preload: %v", err) }
	h2, err := c.Preload(context.Background(), "https://cdn.test/a.png")
	if err != nil { t.Fatalf("preload again: %v", err) }
	if h1 != h2 { t.Fatalf("expected the cached handle on the second preload") }
	if n := ff.calls.Load(); n != 1 { t.Fatalf("fetches=%d, want 1", n) }

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Size != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestPreload_CoalescesInflightFetches(t *testing.T) {
	ff := newFakeFetcher()
	ff.block = make(chan struct{})
	c := NewCache(CacheConfig{Fetcher: ff})

	const url = "https://cdn.test/a.png"
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Preload(context.Background(), url)
		}()
	}
	// Let both goroutines reach the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(ff.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil { t.Fatalf("preload %d: %v", i, err) }
	}
	if n := ff.calls.Load(); n != 1 {
		t.Fatalf("fetches=%d, want 1 (concurrent preloads must coalesce)", n)
	}
	if c.Size() != 1 { t.Fatalf("size=%d", c.Size()) }
}

func TestPreload_FailureNotCached(t *testing.T) {
	ff := newFakeFetcher()
	ff.failWith("https://cdn.test/a.png", errors.New("boom"))
	c := NewCache(CacheConfig{Fetcher: ff})

	_, err := c.Preload(context.Background(), "https://cdn.test/a.png")
	if err == nil { t.Fatalf("expected fetch failure") }
	if !IsFetchFailure(err) { t.Fatalf("expected fetch-failure error, got %v", err) }
	if c.Size() != 0 { t.Fatalf("failed fetch must not be cached, size=%d", c.Size()) }

	ff.clearFailure("https://cdn.test/a.png")
	if _, err := c.Preload(context.Background(), "https://cdn.test/a.png"); err != nil {
		t.Fatalf("retry should fetch fresh: %v", err)
	}
	if n := ff.calls.Load(); n != 2 { t.Fatalf("fetches=%d, want 2", n) }
}

func TestPreload_EmptyURL(t *testing.T) {
	c := NewCache(CacheConfig{Fetcher: newFakeFetcher()})
	_, err := c.Preload(context.Background(), "")
	if err == nil || !IsConstruction(err) {
		t.Fatalf("expected construction error, got %v", err)
	}
}

func TestPreloadBatch_AllOrNothing(t *testing.T) {
	ff := newFakeFetcher()
	ff.failWith("https://cdn.test/b.png", errors.New("boom"))
	c := NewCache(CacheConfig{Fetcher: ff})

	// "a" succeeds independently beforehand.
	if _, err := c.Preload(context.Background(), "https://cdn.test/a.png"); err != nil {
		t.Fatalf("preload a: %v", err)
	}

	_, err := c.PreloadBatch(context.Background(), []string{"https://cdn.test/a.png", "https://cdn.test/b.png"})
	if err == nil { t.Fatalf("batch must fail as a whole when any preload fails") }
	if !c.Contains("https://cdn.test/a.png") {
		t.Fatalf("a's entry must survive b's failure")
	}
}

func TestPreloadBatch_Results(t *testing.T) {
	ff := newFakeFetcher()
	c := NewCache(CacheConfig{Fetcher: ff})
	if _, err := c.Preload(context.Background(), "https://cdn.test/a.png"); err != nil {
		t.Fatalf("preload a: %v", err)
	}

	res, err := c.PreloadBatch(context.Background(), []string{"https://cdn.test/a.png", "https://cdn.test/b.png"})
	if err != nil { t.Fatalf("batch: %v", err) }
	if len(res) != 2 { t.Fatalf("results=%d", len(res)) }
	if !res[0].Cached { t.Fatalf("a was preloaded beforehand, want cached=true") }
	if res[1].Cached { t.Fatalf("b was fresh, want cached=false") }
	if res[1].Format != "png" || res[1].Width != 1 { t.Fatalf("unexpected result: %+v", res[1]) }
}

func TestClear_EvictsEverything(t *testing.T) {
	ff := newFakeFetcher()
	c := NewCache(CacheConfig{Fetcher: ff})
	urls := []string{"https://cdn.test/a.png", "https://cdn.test/b.png", "https://cdn.test/c.png"}
	if err := c.PreloadAll(context.Background(), urls); err != nil {
		t.Fatalf("preload all: %v", err)
	}
	if c.Size() != 3 { t.Fatalf("size=%d, want 3", c.Size()) }

	if n := c.Clear(); n != 3 { t.Fatalf("evicted=%d, want 3", n) }
	if c.Size() != 0 { t.Fatalf("size after clear=%d", c.Size()) }

	before := ff.calls.Load()
	if _, err := c.Preload(context.Background(), urls[0]); err != nil {
		t.Fatalf("preload after clear: %v", err)
	}
	if ff.calls.Load() != before+1 {
		t.Fatalf("preload after clear must issue a fresh fetch")
	}
}

func TestPreload_InflightLimitRejects(t *testing.T) {
	ff := newFakeFetcher()
	ff.block = make(chan struct{})
	c := NewCache(CacheConfig{Fetcher: ff, MaxInflight: 1, MaxWait: 50 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := c.Preload(context.Background(), "https://cdn.test/slow.png")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the first fetch take the slot

	_, err := c.Preload(context.Background(), "https://cdn.test/other.png")
	if err == nil || !IsTooManyInflight(err) {
		t.Fatalf("expected backpressure rejection, got %v", err)
	}

	close(ff.block)
	if err := <-done; err != nil { t.Fatalf("first preload: %v", err) }
}

func TestCache_Events(t *testing.T) {
	ff := newFakeFetcher()
	pub := NewMemoryPublisher()
	c := NewCache(CacheConfig{Fetcher: ff, Events: pub})
	if _, err := c.Preload(context.Background(), "https://cdn.test/a.png"); err != nil {
		t.Fatalf("preload: %v", err)
	}
	c.Clear()

	var names []string
	for _, e := range pub.Events() {
		names = append(names, e.Name)
	}
	want := map[string]bool{"preload_done": false, "cache_clear": false}
	for _, n := range names {
		if _, ok := want[n]; ok { want[n] = true }
	}
	for n, seen := range want {
		if !seen { t.Fatalf("missing event %q in %v", n, names) }
	}
}

func TestCache_Ready(t *testing.T) {
	c := NewCache(CacheConfig{Fetcher: newFakeFetcher()})
	if !c.Ready() { t.Fatalf("fresh cache should be ready") }
	c.SetReady(false)
	if c.Ready() { t.Fatalf("expected not ready") }
	c.SetReady(true)
	if !c.Ready() { t.Fatalf("expected ready again") }
}
