package carto

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/paulmach/orb/geojson"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for layer fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps a fetched layer at 50 MB
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchCollection
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the first delay of the exponential backoff.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// FetchCollection downloads a GeoJSON FeatureCollection. Network errors and
// non-200 responses are retried with exponential backoff; a body that does
// not parse is returned immediately.
func FetchCollection(ctx context.Context, url string, opts ...FetchOption) (*geojson.FeatureCollection, error) {
	if url == "" {
		return nil, fmt.Errorf("fetch layer: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := range cfg.maxRetries {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch layer: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doFetch(ctx, client, url)
		if err != nil {
			lastErr = err
			continue
		}

		fc, err := ParseCollection(body)
		if err != nil {
			return nil, fmt.Errorf("fetch layer: %w", err)
		}
		return fc, nil
	}

	return nil, fmt.Errorf("fetch layer: all %d attempts failed: %w", cfg.maxRetries, lastErr)
}

// LoadLayer reads a layer from its URL if one is set, otherwise from disk
func LoadLayer(ctx context.Context, src LayerSource, opts ...FetchOption) (*geojson.FeatureCollection, error) {
	switch {
	case src.URL != "":
		return FetchCollection(ctx, src.URL, opts...)
	case src.Path != "":
		return ReadCollection(src.Path)
	}
	return nil, fmt.Errorf("layer has neither path nor url")
}

func doFetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}
