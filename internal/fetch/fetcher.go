// Package fetch retrieves remote images and decodes them into opaque
// handles held by the preload cache.
package fetch

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	// Register decoders for the formats the cache accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// Handle is an opaque loaded-image handle: proof that the source decoded,
// plus the metadata diagnostics care about. The pixel data itself is not
// retained.
type Handle struct {
	URL       string
	AttemptID string
	Format    string
	Width     int
	Height    int
	Bytes     int64
	LoadedAt  time.Time
}

// Fetcher retrieves and decodes one image.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Handle, error)
}

// DefaultMaxBytes caps response bodies read per fetch.
const DefaultMaxBytes = 32 << 20

// HTTPFetcher fetches images over HTTP and validates them by decoding the
// image header.
type HTTPFetcher struct {
	Client    *http.Client
	MaxBytes  int64  // 0 means DefaultMaxBytes
	UserAgent string // optional
}

// NewHTTPFetcher builds a fetcher with the given client timeout.
// A zero timeout disables it (a fetch then runs until the context or server
// ends it).
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	cr := &countingReader{r: io.LimitReader(resp.Body, maxBytes)}
	cfg, format, err := image.DecodeConfig(cr)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	// Drain the remainder so Bytes reflects the full payload and the
	// connection can be reused.
	if _, err := io.Copy(io.Discard, cr); err != nil {
		return nil, fmt.Errorf("read body %s: %w", rawURL, err)
	}

	return &Handle{
		URL:       rawURL,
		AttemptID: uuid.NewString(),
		Format:    format,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Bytes:     cr.n,
		LoadedAt:  time.Now(),
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
