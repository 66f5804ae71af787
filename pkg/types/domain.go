package types

// ResponsiveSource pairs a source URL with a width or density descriptor
// (e.g. "640w", "2x"), mirroring srcset entries.
type ResponsiveSource struct {
	// Source URL for this variant.
	// example: https://cdn.example.com/hero-640.jpg
	URL string `json:"url" example:"https://cdn.example.com/hero-640.jpg"`
	// Width or density descriptor.
	// example: 640w
	Descriptor string `json:"descriptor,omitempty" example:"640w"`
}

// ImageRequest describes one image to load. Immutable once issued; swapping
// in a new request resets the owning loader.
type ImageRequest struct {
	// Primary source URL. Required.
	// example: https://cdn.example.com/hero.jpg
	Primary string `json:"primary" example:"https://cdn.example.com/hero.jpg"`
	// Optional WebP variant, preferred when the runtime can decode WebP.
	// example: https://cdn.example.com/hero.webp
	WebP string `json:"webp,omitempty" example:"https://cdn.example.com/hero.webp"`
	// Optional low-resolution placeholder shown before the load completes.
	// example: https://cdn.example.com/hero-blur.jpg
	Placeholder string `json:"placeholder,omitempty" example:"https://cdn.example.com/hero-blur.jpg"`
	// Optional responsive variants, in srcset order.
	Responsive []ResponsiveSource `json:"responsive,omitempty"`
	// JPEG quality hint appended to unoptimized primary sources. 0 means the
	// default (85, or 90 on high-density displays).
	// example: 85
	Quality int `json:"quality,omitempty" example:"85"`
	// Logical identifier for metrics and logs (the image's alt text).
	// example: hero banner
	Identifier string `json:"identifier,omitempty" example:"hero banner"`
}

// ID returns the request's logical identifier, falling back to the primary
// source URL when none was supplied.
func (r ImageRequest) ID() string {
	if r.Identifier != "" {
		return r.Identifier
	}
	return r.Primary
}
