// Package backend talks to the weather dashboard server: the deferred
// extras endpoint, cache actions and server-rendered pages.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-dashboard/internal/markup"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

var (
	// ErrRequestFailed wraps every transport or status failure.
	ErrRequestFailed = errors.New("backend request failed")
	ErrInvalidInput  = errors.New("invalid input")
)

// Config bundles HTTP client and resilience settings.
type Config struct {
	BaseURL string
	Client  *http.Client
	Backoff BackoffConfig
}

// Client is safe for concurrent use.
type Client struct {
	base     *url.URL
	client   *http.Client
	backoff  BackoffConfig
	circuit  *gobreaker.CircuitBreaker
	validate *validator.Validate
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidInput, cfg.BaseURL)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	backoff := cfg.Backoff
	if backoff == (BackoffConfig{}) {
		backoff = BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
	})

	return &Client{
		base:     base,
		client:   client,
		backoff:  backoff,
		circuit:  cb,
		validate: validator.New(),
	}, nil
}

// BaseURL is the server origin every request is resolved against.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// HTTPClient exposes the underlying client, whose cookie jar carries the
// preference cookies.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Resolve turns a site-relative target such as "/?lat=1&lon=2" into an
// absolute URL on the backend.
func (c *Client) Resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q", ErrInvalidInput, target)
	}
	return c.base.ResolveReference(ref), nil
}

// Extras fetches GET /api/extras for a coordinate. Fields the server leaves
// out stay nil.
func (c *Client) Extras(ctx context.Context, coord weather.Coordinate, locationKey string) (weather.Extras, error) {
	if err := c.validate.Struct(coord); err != nil {
		return weather.Extras{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	q := coord.Query()
	if locationKey != "" {
		q.Set("location_key", locationKey)
	}
	u, _ := c.Resolve("/api/extras")
	u.RawQuery = q.Encode()

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.client, c.backoff, c.circuit, build)
	if err != nil {
		return weather.Extras{}, fmt.Errorf("%w: extras: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	var extras weather.Extras
	if err := json.NewDecoder(resp.Body).Decode(&extras); err != nil {
		return weather.Extras{}, fmt.Errorf("%w: decode extras: %w", ErrRequestFailed, err)
	}
	return extras, nil
}

// CacheAction posts a refresh or delete of a saved location. It is attempted
// once; any non-2xx status is a failure.
func (c *Client) CacheAction(ctx context.Context, action weather.CacheAction) error {
	if err := c.validate.Struct(action); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	body, err := json.Marshal(action)
	if err != nil {
		return err
	}
	u, _ := c.Resolve("/refresh")

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.client, BackoffConfig{}, c.circuit, build)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, action.Action, action.LocationKey, err)
	}
	resp.Body.Close()
	return nil
}

// Page loads and reads a server-rendered page.
func (c *Client) Page(ctx context.Context, target string) (weather.Page, error) {
	u, err := c.Resolve(target)
	if err != nil {
		return weather.Page{}, err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/html")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.client, c.backoff, c.circuit, build)
	if err != nil {
		return weather.Page{}, fmt.Errorf("%w: page %s: %w", ErrRequestFailed, target, err)
	}
	defer resp.Body.Close()

	page, err := markup.ParsePage(resp.Body)
	if err != nil {
		return weather.Page{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	page.URL = u.String()
	return page, nil
}
