// Package manifest loads the warmup manifest: the set of image sources the
// daemon preloads at startup.
package manifest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"preloadd/internal/common/fsutil"
	"preloadd/pkg/types"
)

// LoadFile reads a warmup manifest. Plain text files hold one URL per line
// ('#' starts a comment); .yaml/.yml and .json files hold a list of image
// requests with the full request shape.
func LoadFile(path string) ([]types.ImageRequest, error) {
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var reqs []types.ImageRequest
	switch ext := strings.ToLower(filepath.Ext(expanded)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &reqs); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &reqs); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	default:
		reqs = parseLines(string(b))
	}

	for i, r := range reqs {
		if err := validate(r); err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i+1, err)
		}
	}
	return reqs, nil
}

func parseLines(s string) []types.ImageRequest {
	var reqs []types.ImageRequest
	for _, line := range strings.Split(s, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		reqs = append(reqs, types.ImageRequest{Primary: line})
	}
	return reqs
}

func validate(r types.ImageRequest) error {
	if r.Primary == "" {
		return fmt.Errorf("missing primary source")
	}
	for _, raw := range []string{r.Primary, r.WebP, r.Placeholder} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid URL %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported scheme in %q", raw)
		}
	}
	return nil
}
