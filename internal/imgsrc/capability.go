package imgsrc

import (
	"bytes"
	"encoding/base64"
	"sync"

	"golang.org/x/image/webp"
)

// Capabilities reports which image formats this runtime can decode.
// Detect computes it once per process; callers inject the value instead of
// re-probing per image.
type Capabilities struct {
	WebP bool
}

// Minimal 1x1 lossless WebP, decoded once to probe decoder availability.
const webpProbeB64 = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

var (
	detectOnce sync.Once
	detected   Capabilities
)

// Detect returns the runtime's decode capabilities. The probe runs at most
// once per process; later calls return the cached result.
func Detect() Capabilities {
	detectOnce.Do(func() {
		detected = probe()
	})
	return detected
}

func probe() Capabilities {
	sample, err := base64.StdEncoding.DecodeString(webpProbeB64)
	if err != nil {
		return Capabilities{}
	}
	_, err = webp.DecodeConfig(bytes.NewReader(sample))
	return Capabilities{WebP: err == nil}
}
