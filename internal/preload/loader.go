package preload

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"preloadd/internal/fetch"
	"preloadd/internal/imgsrc"
	"preloadd/pkg/types"
)

// Phase is the lifecycle phase of a single rendered image.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// LoadState is a read-only projection of a loader's progress. Transitions
// move forward only (Idle → Pending → Loaded/Failed); only a new request
// returns the loader to Idle.
type LoadState struct {
	Phase          Phase
	ResolvedSource string // set on Loaded
	Reason         string // set on Failed
}

const (
	// DefaultMargin is the viewport proximity, in logical pixels, at which
	// loading begins.
	DefaultMargin = 50.0
	// DefaultSlowLoadThreshold marks loads slower than this as slow.
	DefaultSlowLoadThreshold = 2 * time.Second
)

// LoaderConfig encapsulates all tunables for Loader construction.
type LoaderConfig struct {
	Cache *Cache // required

	Margin            float64       // 0 = DefaultMargin
	SlowLoadThreshold time.Duration // 0 = DefaultSlowLoadThreshold
	Quality           int           // 0 = source-selection default
	PixelRatio        float64       // 0 = 1

	// Capabilities injects the decode-capability probe result. Nil falls
	// back to the process-wide memoized probe.
	Capabilities *imgsrc.Capabilities

	Events EventPublisher
	Sink   MetricsSink
	Logger zerolog.Logger // zero value logs nowhere useful; pass a real one

	// Consumer callbacks, each invoked at most once per load attempt and
	// never both.
	OnLoad  func(*fetch.Handle)
	OnError func(error)
}

// Loader drives one image through Idle → Pending → Loaded/Failed. The fetch
// begins at most once per request (trigger-once), and only when the surface
// has come within Margin of the viewport.
type Loader struct {
	mu        sync.Mutex
	cfg       LoaderConfig
	req       types.ImageRequest
	state     LoadState
	triggered bool
	closed    bool
	startedAt time.Time

	// gen is bumped by Reset and Close; a completion carrying a stale
	// generation is discarded without touching state or callbacks.
	gen uint64

	caps   imgsrc.Capabilities
	events EventPublisher
	sink   MetricsSink
	log    zerolog.Logger
}

// NewLoader constructs a Loader for req.
func NewLoader(req types.ImageRequest, cfg LoaderConfig) *Loader {
	l := &Loader{cfg: cfg, req: req}
	if l.cfg.Margin <= 0 {
		l.cfg.Margin = DefaultMargin
	}
	if l.cfg.SlowLoadThreshold <= 0 {
		l.cfg.SlowLoadThreshold = DefaultSlowLoadThreshold
	}
	if cfg.Capabilities != nil {
		l.caps = *cfg.Capabilities
	} else {
		l.caps = imgsrc.Detect()
	}
	l.events = cfg.Events
	if l.events == nil {
		l.events = noopPublisher{}
	}
	l.sink = cfg.Sink
	if l.sink == nil {
		l.sink = NoopSink{}
	}
	l.log = cfg.Logger
	return l
}

// EnterViewport reports the surface's current distance, in logical pixels,
// from the visible area. The first report within the margin starts the load;
// later reports are ignored.
func (l *Loader) EnterViewport(distance float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.triggered || distance > l.cfg.Margin {
		return
	}
	l.triggered = true
	l.state = LoadState{Phase: PhasePending}
	l.startedAt = time.Now()
	l.events.Publish(Event{Name: "load_start", Source: l.req.Primary, Fields: map[string]any{
		"image": l.req.ID(),
	}})
	// The fetch runs off the caller's path; gen pins it to this attempt.
	go l.run(l.gen, l.req)
}

// Reset installs a new request and returns the loader to Idle. Any in-flight
// result from the previous request is discarded when it completes.
func (l *Loader) Reset(req types.ImageRequest) {
	l.mu.Lock()
	l.gen++
	l.req = req
	l.triggered = false
	l.state = LoadState{}
	l.mu.Unlock()
}

// Close detaches the loader from any in-flight fetch. The fetch itself runs
// to completion (the cache keeps its result), but no state transition or
// callback happens afterwards.
func (l *Loader) Close() {
	l.mu.Lock()
	l.gen++
	l.closed = true
	l.mu.Unlock()
}

// State returns the current load state.
func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Request returns the request this loader owns.
func (l *Loader) Request() types.ImageRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.req
}

func (l *Loader) run(gen uint64, req types.ImageRequest) {
	src, err := imgsrc.SelectSource(req, l.caps, imgsrc.Options{
		Quality:    firstNonZero(req.Quality, l.cfg.Quality),
		PixelRatio: l.cfg.PixelRatio,
	})
	if err != nil {
		l.finish(gen, req, src, nil, ErrConstruction(req.Primary, err), 0)
		return
	}

	start := time.Now()
	// No cancellation once the fetch begins: teardown discards the result
	// via the generation counter instead of aborting the request.
	h, err := l.cfg.Cache.Preload(context.Background(), src)
	l.finish(gen, req, src, h, err, time.Since(start))
}

func (l *Loader) finish(gen uint64, req types.ImageRequest, src string, h *fetch.Handle, err error, elapsed time.Duration) {
	l.mu.Lock()
	if gen != l.gen {
		// Owner reset or closed while the fetch ran; drop the result.
		l.mu.Unlock()
		return
	}
	onLoad, onError := l.cfg.OnLoad, l.cfg.OnError
	if err != nil {
		l.state = LoadState{Phase: PhaseFailed, Reason: err.Error()}
	} else {
		l.state = LoadState{Phase: PhaseLoaded, ResolvedSource: src}
	}
	l.mu.Unlock()

	id := req.ID()
	if err != nil {
		l.sink.RecordError(err, map[string]string{
			"image":      id,
			"source":     src,
			"elapsed_ms": elapsed.Round(time.Millisecond).String(),
		})
		l.events.Publish(Event{Name: "load_error", Source: src, Fields: map[string]any{
			"image":  id,
			"error":  err.Error(),
			"dur_ms": elapsed.Milliseconds(),
		}})
		l.log.Error().Err(err).Str("image", id).Str("source", src).Msg("image load failed")
		if onError != nil {
			onError(err)
		}
		return
	}

	l.sink.ObserveLoadDuration(id, elapsed)
	if elapsed > l.cfg.SlowLoadThreshold {
		l.sink.CountSlowLoad(id)
		l.events.Publish(Event{Name: "slow_load", Source: src, Fields: map[string]any{
			"image":  id,
			"dur_ms": elapsed.Milliseconds(),
		}})
		l.log.Warn().Str("image", id).Str("source", src).Dur("dur", elapsed).Msg("slow image load")
	}
	l.events.Publish(Event{Name: "load_done", Source: src, Fields: map[string]any{
		"image":  id,
		"dur_ms": elapsed.Milliseconds(),
	}})
	if onLoad != nil {
		onLoad(h)
	}
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
