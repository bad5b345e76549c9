package offline

import (
	"errors"
	"net/http"

	"go.uber.org/atomic"
)

var (
	ErrBodyUsed   = errors.New("response body already used")
	ErrNoResponse = errors.New("no response available")
	ErrNotCached  = errors.New("no cached response")
)

// Response is a fully buffered HTTP response whose body may be read once,
// mirroring the fetch API. Clone before reading to keep a second copy.
type Response struct {
	StatusCode int
	Header     http.Header
	// URL the response was produced for.
	URL string
	// Opaque marks a cross-origin response the client may not inspect.
	Opaque bool

	body []byte
	used atomic.Bool
}

func NewResponse(status int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{StatusCode: status, Header: header, body: body}
}

// Body consumes the body. A second call fails with ErrBodyUsed.
func (r *Response) Body() ([]byte, error) {
	if r.used.Swap(true) {
		return nil, ErrBodyUsed
	}
	return r.body, nil
}

func (r *Response) BodyUsed() bool {
	return r.used.Load()
}

// Clone copies an unread response.
func (r *Response) Clone() (*Response, error) {
	if r.used.Load() {
		return nil, ErrBodyUsed
	}
	body := make([]byte, len(r.body))
	copy(body, r.body)
	c := NewResponse(r.StatusCode, r.Header.Clone(), body)
	c.URL = r.URL
	c.Opaque = r.Opaque
	return c, nil
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Cacheable reports whether the response may be stashed: successful or
// opaque, with its body still unread.
func (r *Response) Cacheable() bool {
	return (r.OK() || r.Opaque) && !r.BodyUsed()
}
