package shorten

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTinyURLEndpoint = "https://tinyurl.com/api-create.php"
	DefaultTimeout         = 5 * time.Second

	maxTinyURLResponse = 4 << 10
)

// TinyURL delegates shortening to the tinyurl.com "api-create" endpoint,
// which answers a GET with the short URL as a plain text body.
type TinyURL struct {
	endpoint string
	client   *http.Client
}

// TinyURLConfig holds the optional knobs of the TinyURL provider.
type TinyURLConfig struct {
	Endpoint string
	Timeout  time.Duration
	Client   *http.Client
}

func NewTinyURL(cfg *TinyURLConfig) *TinyURL {
	if cfg == nil {
		cfg = &TinyURLConfig{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultTinyURLEndpoint
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &TinyURL{endpoint: endpoint, client: client}
}

func (t *TinyURL) Shorten(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("empty url")
	}

	endpoint, err := url.Parse(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("url", rawURL)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call tinyurl: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTinyURLResponse))
	if err != nil {
		return "", fmt.Errorf("read tinyurl response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("tinyurl returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	short := strings.TrimSpace(string(body))
	if short == "" {
		return "", errors.New("tinyurl returned an empty body")
	}
	return short, nil
}
