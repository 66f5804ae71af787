package preload

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"preloadd/internal/fetch"
)

// fakeFetcher counts fetches and can be made to block or fail per URL.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   atomic.Int64
	failing map[string]error
	block   chan struct{} // if set, Fetch waits for it to close
	delay   time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failing: make(map[string]error)}
}

func (f *fakeFetcher) failWith(url string, err error) {
	f.mu.Lock()
	f.failing[url] = err
	f.mu.Unlock()
}

func (f *fakeFetcher) clearFailure(url string) {
	f.mu.Lock()
	delete(f.failing, url)
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Handle, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.failing[url]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fetch.Handle{
		URL:       url,
		AttemptID: fmt.Sprintf("attempt-%d", f.calls.Load()),
		Format:    "png",
		Width:     1,
		Height:    1,
		Bytes:     64,
		LoadedAt:  time.Now(),
	}, nil
}

// memorySink records sink observations for assertions.
type memorySink struct {
	mu        sync.Mutex
	durations map[string][]time.Duration
	slow      map[string]int
	errs      []error
}

func newMemorySink() *memorySink {
	return &memorySink{durations: make(map[string][]time.Duration), slow: make(map[string]int)}
}

func (s *memorySink) ObserveLoadDuration(image string, d time.Duration) {
	s.mu.Lock()
	s.durations[image] = append(s.durations[image], d)
	s.mu.Unlock()
}

func (s *memorySink) CountSlowLoad(image string) {
	s.mu.Lock()
	s.slow[image]++
	s.mu.Unlock()
}

func (s *memorySink) RecordError(err error, _ map[string]string) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *memorySink) slowCount(image string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slow[image]
}

func (s *memorySink) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *memorySink) durationsFor(image string) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.durations[image]...)
}
