// Package shorten turns an initial URL into a short URL. The mapping repository
// receives a Provider at construction time and treats it as an opaque, possibly
// failing capability.
package shorten

import "context"

// Provider returns the short form of rawURL.
// Implementations must be safe for concurrent use.
type Provider interface {
	Shorten(ctx context.Context, rawURL string) (string, error)
}

// Func adapts a plain function to the Provider interface.
type Func func(ctx context.Context, rawURL string) (string, error)

func (f Func) Shorten(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}
