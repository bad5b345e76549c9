package offline

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// MatchOptions tunes cache lookups.
type MatchOptions struct {
	// IgnoreSearch compares URLs without their query string.
	IgnoreSearch bool
}

// Cache is one named partition of request/response pairs.
type Cache interface {
	// Match returns ErrNotCached when nothing matches.
	Match(ctx context.Context, u *url.URL, opts MatchOptions) (*Response, error)
	// Put consumes resp's body.
	Put(ctx context.Context, u *url.URL, resp *Response) error
	Keys(ctx context.Context) ([]string, error)
}

// Storage holds named caches.
type Storage interface {
	// Open returns the named cache, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) (bool, error)
}

// entry is the stored form of a response.
type entry struct {
	key    string
	url    string
	status int
	header http.Header
	body   []byte
	opaque bool
	stored time.Time
}

func newEntry(u *url.URL, resp *Response) (entry, error) {
	body, err := resp.Body()
	if err != nil {
		return entry{}, err
	}
	return entry{
		key:    cacheKey(u),
		url:    resp.URL,
		status: resp.StatusCode,
		header: resp.Header.Clone(),
		body:   body,
		opaque: resp.Opaque,
		stored: time.Now().UTC(),
	}, nil
}

func (e entry) response() *Response {
	body := make([]byte, len(e.body))
	copy(body, e.body)
	r := NewResponse(e.status, e.header.Clone(), body)
	r.URL = e.url
	r.Opaque = e.opaque
	return r
}

func (e entry) matches(u *url.URL, opts MatchOptions) bool {
	if opts.IgnoreSearch {
		return searchless(e.key) == searchless(cacheKey(u))
	}
	return e.key == cacheKey(u)
}

// cacheKey is the URL without its fragment.
func cacheKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func searchless(key string) string {
	u, err := url.Parse(key)
	if err != nil {
		return key
	}
	u.RawQuery = ""
	u.ForceQuery = false
	return u.String()
}
