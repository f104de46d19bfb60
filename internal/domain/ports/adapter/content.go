package adapter

import "context"

// ContentSource is one backend able to supply an image reference (a URL).
type ContentSource interface {
	Name() string
	Fetch(ctx context.Context) (string, error)
}

// ContentProvider never fails: when every source errors it returns a static fallback.
type ContentProvider interface {
	FetchResourceRef(ctx context.Context) string
}
