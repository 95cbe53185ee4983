package shorten

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const DefaultSlugLength = 7

// Local issues short URLs under the service's own base URL, so the service can
// resolve them itself at GET /{slug}.
type Local struct {
	baseURL    string
	slugs      SlugGenerator
	slugLength int
}

// LocalConfig holds the optional knobs of the local provider.
type LocalConfig struct {
	SlugGenerator SlugGenerator
	SlugLength    int
}

func NewLocal(baseURL string, cfg *LocalConfig) *Local {
	if cfg == nil {
		cfg = &LocalConfig{}
	}
	gen := cfg.SlugGenerator
	if gen == nil {
		gen = NewBase62()
	}
	length := cfg.SlugLength
	if length <= 0 {
		length = DefaultSlugLength
	}
	return &Local{
		baseURL:    strings.TrimRight(baseURL, "/"),
		slugs:      gen,
		slugLength: length,
	}
}

func (l *Local) Shorten(_ context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("empty url")
	}
	slug, err := l.slugs.Generate(l.slugLength)
	if err != nil {
		return "", fmt.Errorf("generate slug: %w", err)
	}
	return ShortURL(l.baseURL, slug)
}

// ShortURL is the short URL a Local provider with baseURL issues for slug.
func ShortURL(baseURL, slug string) (string, error) {
	return url.JoinPath(strings.TrimRight(baseURL, "/"), slug)
}
