package offline

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func storages(t *testing.T) map[string]Storage {
	t.Helper()
	sq, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	return map[string]Storage{
		"memory": NewMemoryStorage(0),
		"sqlite": sq,
	}
}

func TestStorageContract(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c, err := s.Open(ctx, "wd-runtime-v1")
			require.NoError(t, err)

			header := http.Header{"Content-Type": []string{"text/html"}}
			resp := NewResponse(http.StatusOK, header, []byte("<p>hi</p>"))
			resp.URL = "http://app.test/?lat=1&lon=2"
			require.NoError(t, c.Put(ctx, mustURL(t, "http://app.test/?lat=1&lon=2#top"), resp))
			assert.True(t, resp.BodyUsed())

			got, err := c.Match(ctx, mustURL(t, "http://app.test/?lat=1&lon=2"), MatchOptions{})
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, got.StatusCode)
			assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
			assert.Equal(t, "http://app.test/?lat=1&lon=2", got.URL)
			body, err := got.Body()
			require.NoError(t, err)
			assert.Equal(t, "<p>hi</p>", string(body))

			_, err = c.Match(ctx, mustURL(t, "http://app.test/?lat=3&lon=4"), MatchOptions{})
			assert.ErrorIs(t, err, ErrNotCached)

			_, err = c.Match(ctx, mustURL(t, "http://app.test/?lat=3&lon=4"), MatchOptions{IgnoreSearch: true})
			assert.NoError(t, err)

			// Put replaces an existing key.
			require.NoError(t, c.Put(ctx, mustURL(t, "http://app.test/?lat=1&lon=2"), NewResponse(http.StatusOK, nil, []byte("v2"))))
			keys, err := c.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"http://app.test/?lat=1&lon=2"}, keys)

			has, err := s.Has(ctx, "wd-runtime-v1")
			require.NoError(t, err)
			assert.True(t, has)

			_, err = s.Open(ctx, "wd-shell-v1")
			require.NoError(t, err)
			names, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"wd-runtime-v1", "wd-shell-v1"}, names)

			deleted, err := s.Delete(ctx, "wd-runtime-v1")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = s.Delete(ctx, "wd-runtime-v1")
			require.NoError(t, err)
			assert.False(t, deleted)

			c, err = s.Open(ctx, "wd-runtime-v1")
			require.NoError(t, err)
			_, err = c.Match(ctx, mustURL(t, "http://app.test/?lat=1&lon=2"), MatchOptions{})
			assert.ErrorIs(t, err, ErrNotCached)
		})
	}
}

func TestPutRejectsUsedBody(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Open(context.Background(), "c")
			require.NoError(t, err)
			resp := NewResponse(http.StatusOK, nil, []byte("x"))
			_, _ = resp.Body()
			assert.ErrorIs(t, c.Put(context.Background(), mustURL(t, "http://app.test/a"), resp), ErrBodyUsed)
		})
	}
}

func TestMemoryStorageRetention(t *testing.T) {
	s := NewMemoryStorage(2)
	ctx := context.Background()
	c, err := s.Open(ctx, "c")
	require.NoError(t, err)

	for _, p := range []string{"/a", "/b", "/c"} {
		require.NoError(t, c.Put(ctx, mustURL(t, "http://app.test"+p), NewResponse(http.StatusOK, nil, nil)))
	}
	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://app.test/b", "http://app.test/c"}, keys)
}

func TestResponseClone(t *testing.T) {
	r := NewResponse(http.StatusOK, nil, []byte("body"))
	r.Opaque = true

	c, err := r.Clone()
	require.NoError(t, err)
	assert.True(t, c.Opaque)

	_, err = r.Body()
	require.NoError(t, err)
	_, err = r.Body()
	assert.ErrorIs(t, err, ErrBodyUsed)
	_, err = r.Clone()
	assert.ErrorIs(t, err, ErrBodyUsed)

	b, err := c.Body()
	require.NoError(t, err)
	assert.Equal(t, "body", string(b))
}

func TestCacheable(t *testing.T) {
	assert.True(t, NewResponse(http.StatusOK, nil, nil).Cacheable())
	assert.False(t, NewResponse(http.StatusNotFound, nil, nil).Cacheable())

	opaque := NewResponse(0, nil, nil)
	opaque.Opaque = true
	assert.True(t, opaque.Cacheable())

	used := NewResponse(http.StatusOK, nil, nil)
	_, _ = used.Body()
	assert.False(t, used.Cacheable())
}
