package preload

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"preloadd/internal/fetch"
	"preloadd/pkg/types"
)

// Warmer drives startup cache warmup through the normal loader path: each
// manifest entry is treated as immediately visible. Failures are logged and
// counted, never fatal.
type Warmer struct {
	Cache             *Cache
	Events            EventPublisher
	Sink              MetricsSink
	Logger            zerolog.Logger
	SlowLoadThreshold time.Duration // 0 = loader default
}

// WarmStats summarizes one warmup pass.
type WarmStats struct {
	Loaded int
	Failed int
}

// Warm preloads every request and blocks until all complete or ctx ends.
func (w *Warmer) Warm(ctx context.Context, reqs []types.ImageRequest) WarmStats {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats WarmStats
	)
	for _, req := range reqs {
		wg.Add(1)
		l := NewLoader(req, LoaderConfig{
			Cache:             w.Cache,
			Events:            w.Events,
			Sink:              w.Sink,
			Logger:            w.Logger,
			SlowLoadThreshold: w.SlowLoadThreshold,
			OnLoad: func(*fetch.Handle) {
				mu.Lock()
				stats.Loaded++
				mu.Unlock()
				wg.Done()
			},
			OnError: func(error) {
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				wg.Done()
			},
		})
		l.EnterViewport(0)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.Logger.Warn().Err(ctx.Err()).Msg("warmup interrupted")
	}
	mu.Lock()
	defer mu.Unlock()
	return stats
}
