package preload

// Event represents a cache or loader lifecycle event.
// Minimal and stable: name + source URL and optional fields via key/values.
type Event struct {
	Name   string
	Source string
	Fields map[string]any
}

// EventPublisher receives events from the cache and loaders. Implementations
// should be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
