package offline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/i474232898/weather-dashboard/internal/common"
)

// Fetcher performs network requests for the worker.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches over HTTP and buffers the body. Responses from another
// origin that do not opt in to CORS are marked opaque.
type HTTPFetcher struct {
	Client *http.Client
	Origin *url.URL
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", out.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", out.URL, err)
	}

	r := NewResponse(resp.StatusCode, resp.Header.Clone(), body)
	r.URL = out.URL.String()
	r.Opaque = f.crossOrigin(out.URL) && resp.Header.Get("Access-Control-Allow-Origin") == ""
	return r, nil
}

func (f *HTTPFetcher) crossOrigin(u *url.URL) bool {
	if f.Origin == nil {
		return false
	}
	return u.Scheme != f.Origin.Scheme || u.Host != f.Origin.Host
}

// IsNavigation reports whether req is a full-page load.
func IsNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return common.HasAny(req.Header.Get("Accept"), "text/html")
}
