// Package imgsrc picks the best source URL for an image request: format
// negotiation (WebP when decodable) and quality hints for JPEG-family
// sources. Pure functions apart from the memoized capability probe.
package imgsrc

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"preloadd/pkg/types"
)

const (
	// DefaultQuality is appended to unoptimized JPEG-family sources.
	DefaultQuality = 85
	// HiDPIQuality replaces the default on displays with pixel ratio >= 2.
	HiDPIQuality = 90
)

// Options tune source selection for one rendering surface.
type Options struct {
	Quality    int     // 0 means DefaultQuality (or HiDPIQuality per PixelRatio)
	PixelRatio float64 // 0 means 1
}

func (o Options) quality() int {
	if o.Quality > 0 {
		return o.Quality
	}
	if o.PixelRatio >= 2 {
		return HiDPIQuality
	}
	return DefaultQuality
}

// SelectSource picks the URL to fetch for req, in priority order: the WebP
// variant when the runtime decodes WebP, otherwise the primary source with a
// quality hint appended for JPEG-family files, otherwise the primary
// verbatim.
func SelectSource(req types.ImageRequest, caps Capabilities, opts Options) (string, error) {
	if caps.WebP && req.WebP != "" {
		return req.WebP, nil
	}
	return Optimize(req.Primary, opts)
}

// Optimize appends a quality parameter to JPEG-family URLs that do not
// already carry one. Idempotent: URLs with an existing quality or format
// parameter pass through byte-for-byte, so applying it twice equals applying
// it once.
func Optimize(raw string, opts Options) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty source URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse source %q: %w", raw, err)
	}
	if !isJPEG(u.Path) {
		return raw, nil
	}
	q := u.Query()
	if q.Has("quality") || q.Has("format") {
		return raw, nil
	}
	// Append to the raw string rather than re-encoding, so the original URL
	// survives untouched.
	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	return raw + sep + "quality=" + strconv.Itoa(opts.quality()), nil
}

func isJPEG(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}
