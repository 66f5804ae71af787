package types

// PreloadRequest is the payload accepted by POST /preload.
type PreloadRequest struct {
	// Source URLs to preload. Required, at least one.
	// example: ["https://cdn.example.com/hero.jpg"]
	URLs []string `json:"urls"`
	// Optional JPEG quality hint applied to unoptimized sources.
	// example: 85
	Quality int `json:"quality,omitempty" example:"85"`
}

// PreloadResult reports the outcome for one preloaded URL.
type PreloadResult struct {
	// The URL that was preloaded.
	// example: https://cdn.example.com/hero.jpg
	URL string `json:"url" example:"https://cdn.example.com/hero.jpg"`
	// Decoded image format (jpeg, png, gif, webp).
	// example: jpeg
	Format string `json:"format,omitempty" example:"jpeg"`
	// Pixel dimensions of the decoded image.
	// example: 1920
	Width int `json:"width,omitempty" example:"1920"`
	// example: 1080
	Height int `json:"height,omitempty" example:"1080"`
	// Payload size in bytes.
	// example: 204800
	Bytes int64 `json:"bytes,omitempty" example:"204800"`
	// True when the entry was already cached before this call.
	// example: false
	Cached bool `json:"cached" example:"false"`
	// Wall time this preload took, in milliseconds. Near zero on cache hits.
	// example: 142
	DurMs int64 `json:"dur_ms" example:"142"`
}

// PreloadResponse wraps the results returned by POST /preload.
type PreloadResponse struct {
	Results []PreloadResult `json:"results"`
}

// CacheStats is returned by GET /stats.
type CacheStats struct {
	// Number of completed entries currently cached.
	// example: 42
	Size int `json:"size" example:"42"`
	// Preloads answered from the cache without a fetch.
	// example: 1200
	Hits uint64 `json:"hits" example:"1200"`
	// Preloads that had to fetch.
	// example: 90
	Misses uint64 `json:"misses" example:"90"`
	// Preloads that shared another caller's in-flight fetch.
	// example: 12
	Coalesced uint64 `json:"coalesced" example:"12"`
	// Entries evicted by Clear since startup.
	// example: 3
	Evictions uint64 `json:"evictions" example:"3"`
	// Fetches currently in flight.
	// example: 2
	Inflight int `json:"inflight" example:"2"`
}

// ClearResponse is returned by POST /clear.
type ClearResponse struct {
	// Number of entries evicted.
	// example: 42
	Evicted int `json:"evicted" example:"42"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
