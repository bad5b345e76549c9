package offline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "http://app.test"

type route func(ctx context.Context) (*Response, error)

// fakeNet answers requests by URL path.
type fakeNet struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []string
}

func newFakeNet() *fakeNet {
	return &fakeNet{routes: map[string]route{}}
}

func (n *fakeNet) serve(path string, status int, body string) {
	n.handle(path, func(context.Context) (*Response, error) {
		return NewResponse(status, http.Header{"Content-Type": []string{"text/html"}}, []byte(body)), nil
	})
}

func (n *fakeNet) handle(path string, r route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[path] = r
}

func (n *fakeNet) Fetch(ctx context.Context, req *http.Request) (*Response, error) {
	n.mu.Lock()
	n.calls = append(n.calls, req.URL.String())
	r, ok := n.routes[req.URL.Path]
	n.mu.Unlock()
	if !ok {
		return nil, errors.New("network unreachable")
	}
	resp, err := r(ctx)
	if resp != nil {
		resp.URL = req.URL.String()
	}
	return resp, err
}

func (n *fakeNet) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func testConfig(t *testing.T, version string) Config {
	return Config{
		Prefix:            "wd",
		Version:           version,
		Origin:            mustURL(t, origin),
		Precache:          []string{"/", "/static/app.css", "/offline.html"},
		OfflinePage:       "/offline.html",
		NavigationTimeout: 30 * time.Millisecond,
	}
}

func shellNet() *fakeNet {
	n := newFakeNet()
	n.serve("/", http.StatusOK, "shell")
	n.serve("/static/app.css", http.StatusOK, "css")
	n.serve("/offline.html", http.StatusOK, "offline")
	return n
}

func activeWorker(t *testing.T, cfg Config, s Storage, f Fetcher) *Worker {
	t.Helper()
	w, err := NewWorker(cfg, s, f)
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))
	return w
}

func navigation(t *testing.T, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, origin+target, nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html")
	return req
}

func asset(t *testing.T, target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, origin+target, nil)
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	return req
}

func bodyOf(t *testing.T, r *Response) string {
	t.Helper()
	require.NotNil(t, r)
	b, err := r.Body()
	require.NoError(t, err)
	return string(b)
}

func TestCacheNames(t *testing.T) {
	w, err := NewWorker(testConfig(t, "v7"), NewMemoryStorage(0), newFakeNet())
	require.NoError(t, err)
	assert.Equal(t, "wd-shell-v7", w.ShellCache())
	assert.Equal(t, "wd-runtime-v7", w.RuntimeCache())
	assert.Equal(t, StateParsed, w.State())
}

func TestNewWorkerValidation(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := NewWorker(cfg, NewMemoryStorage(0), newFakeNet())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig(t, "v1")
	cfg.NavigationTimeout = 0
	w, err := NewWorker(cfg, NewMemoryStorage(0), newFakeNet())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, w.cfg.NavigationTimeout)
}

func TestInstallPrecachesShell(t *testing.T) {
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, shellNet())

	shell, err := s.Open(context.Background(), w.ShellCache())
	require.NoError(t, err)
	keys, err := shell.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{origin + "/", origin + "/static/app.css", origin + "/offline.html"}, keys)
	assert.Equal(t, StateActivated, w.State())
}

func TestInstallFailureAbortsEverything(t *testing.T) {
	n := shellNet()
	n.serve("/static/app.css", http.StatusNotFound, "missing")
	s := NewMemoryStorage(0)

	w, err := NewWorker(testConfig(t, "v1"), s, n)
	require.NoError(t, err)
	err = w.Install(context.Background())
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.Equal(t, StateRedundant, w.State())

	has, err := s.Has(context.Background(), w.ShellCache())
	require.NoError(t, err)
	assert.False(t, has)

	assert.ErrorIs(t, w.Activate(context.Background()), ErrNotActive)
}

func TestActivationDeletesOtherVersions(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			v1 := activeWorker(t, testConfig(t, "v1"), s, shellNet())
			resp, handled, err := v1.Handle(ctx, asset(t, "/static/app.css"))
			require.NoError(t, err)
			require.True(t, handled)
			bodyOf(t, resp)
			v1.Wait()

			_, err = s.Open(ctx, "unrelated-cache")
			require.NoError(t, err)

			activeWorker(t, testConfig(t, "v2"), s, shellNet())

			names, err := s.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"wd-shell-v2"}, names)
		})
	}
}

func TestNonGetIsNotIntercepted(t *testing.T) {
	n := shellNet()
	w := activeWorker(t, testConfig(t, "v1"), NewMemoryStorage(0), n)

	req := httptest.NewRequest(http.MethodPost, origin+"/refresh", nil)
	resp, handled, err := w.Handle(context.Background(), req)
	assert.NoError(t, err)
	assert.False(t, handled)
	assert.Nil(t, resp)
}

func TestInactiveWorkerDoesNotIntercept(t *testing.T) {
	w, err := NewWorker(testConfig(t, "v1"), NewMemoryStorage(0), shellNet())
	require.NoError(t, err)
	_, handled, err := w.Handle(context.Background(), navigation(t, "/"))
	assert.NoError(t, err)
	assert.False(t, handled)
}

func TestNavigationNetworkWinsAndIsStashed(t *testing.T) {
	n := shellNet()
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, n)
	n.serve("/", http.StatusOK, "fresh page")

	resp, handled, err := w.Handle(context.Background(), navigation(t, "/?lat=1.0000&lon=2.0000"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "fresh page", bodyOf(t, resp))
	w.Wait()

	runtime, err := s.Open(context.Background(), w.RuntimeCache())
	require.NoError(t, err)
	cached, err := runtime.Match(context.Background(), mustURL(t, origin+"/?lat=1.0000&lon=2.0000"), MatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fresh page", bodyOf(t, cached))
}

// gatedStorage blocks every Put until release is closed.
type gatedStorage struct {
	*MemoryStorage
	release chan struct{}
}

func (s *gatedStorage) Open(ctx context.Context, name string) (Cache, error) {
	c, err := s.MemoryStorage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return gatedCache{Cache: c, release: s.release}, nil
}

type gatedCache struct {
	Cache
	release chan struct{}
}

func (c gatedCache) Put(ctx context.Context, u *url.URL, resp *Response) error {
	<-c.release
	return c.Cache.Put(ctx, u, resp)
}

func TestNavigationNetworkWinsDespiteSlowCacheWrite(t *testing.T) {
	n := shellNet()
	mem := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), mem, n)
	n.serve("/", http.StatusOK, "fresh page")

	gated := &gatedStorage{MemoryStorage: mem, release: make(chan struct{})}
	w.storage = gated

	resp, handled, err := w.Handle(context.Background(), navigation(t, "/?lat=3.0000&lon=4.0000"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "fresh page", bodyOf(t, resp))

	close(gated.release)
	w.Wait()

	runtime, err := mem.Open(context.Background(), w.RuntimeCache())
	require.NoError(t, err)
	cached, err := runtime.Match(context.Background(), mustURL(t, origin+"/?lat=3.0000&lon=4.0000"), MatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fresh page", bodyOf(t, cached))
}

func TestRetiredWorkerDropsLateWrites(t *testing.T) {
	ctx := context.Background()
	n := shellNet()
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, n)

	release := make(chan struct{})
	n.handle("/static/app.css", func(context.Context) (*Response, error) {
		<-release
		return NewResponse(http.StatusOK, nil, []byte("css v2")), nil
	})
	resp, _, err := w.Handle(ctx, asset(t, "/static/app.css"))
	require.NoError(t, err)
	assert.Equal(t, "css", bodyOf(t, resp))

	w.Retire()
	close(release)
	w.Wait()

	ok, err := s.Has(ctx, w.RuntimeCache())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNavigationTimeoutFallsBackToShellAndStashesLate(t *testing.T) {
	n := shellNet()
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, n)

	release := make(chan struct{})
	n.handle("/", func(context.Context) (*Response, error) {
		<-release
		return NewResponse(http.StatusOK, nil, []byte("late page")), nil
	})

	start := time.Now()
	resp, handled, err := w.Handle(context.Background(), navigation(t, "/?lat=5.0000&lon=6.0000"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "shell", bodyOf(t, resp))
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	w.Wait()

	runtime, err := s.Open(context.Background(), w.RuntimeCache())
	require.NoError(t, err)
	late, err := runtime.Match(context.Background(), mustURL(t, origin+"/?lat=5.0000&lon=6.0000"), MatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "late page", bodyOf(t, late))
}

func TestNavigationFallsBackToOfflinePage(t *testing.T) {
	n := shellNet()
	w := activeWorker(t, testConfig(t, "v1"), NewMemoryStorage(0), n)

	release := make(chan struct{})
	defer close(release)
	n.handle("/forecast", func(ctx context.Context) (*Response, error) {
		<-release
		return nil, errors.New("too late")
	})

	resp, handled, err := w.Handle(context.Background(), navigation(t, "/forecast?day=2"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "offline", bodyOf(t, resp))
}

func TestNavigationNetworkErrorUsesCache(t *testing.T) {
	n := shellNet()
	w := activeWorker(t, testConfig(t, "v1"), NewMemoryStorage(0), n)
	n.handle("/", func(context.Context) (*Response, error) { return nil, errors.New("offline") })

	resp, _, err := w.Handle(context.Background(), navigation(t, "/?lat=1&lon=1"))
	require.NoError(t, err)
	assert.Equal(t, "shell", bodyOf(t, resp))
}

func TestNavigationWithNothingCached(t *testing.T) {
	cfg := testConfig(t, "v1")
	cfg.Precache = nil
	n := newFakeNet()
	w := activeWorker(t, cfg, NewMemoryStorage(0), n)

	_, handled, err := w.Handle(context.Background(), navigation(t, "/"))
	assert.True(t, handled)
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestStaleWhileRevalidate(t *testing.T) {
	n := shellNet()
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, n)
	n.serve("/static/app.css", http.StatusOK, "css v2")

	// Cached copy answers while the network refreshes the runtime cache.
	resp, handled, err := w.Handle(context.Background(), asset(t, "/static/app.css"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "css", bodyOf(t, resp))
	w.Wait()

	resp, _, err = w.Handle(context.Background(), asset(t, "/static/app.css"))
	require.NoError(t, err)
	assert.Equal(t, "css v2", bodyOf(t, resp))
	w.Wait()
}

func TestStaleWhileRevalidateMiss(t *testing.T) {
	n := shellNet()
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, n)
	n.serve("/api/extras", http.StatusOK, `{"humidity": 50}`)
	n.serve("/api/broken", http.StatusInternalServerError, "boom")

	resp, _, err := w.Handle(context.Background(), asset(t, "/api/extras?lat=1&lon=1"))
	require.NoError(t, err)
	assert.Equal(t, `{"humidity": 50}`, bodyOf(t, resp))

	// Errors are passed through but never stashed.
	resp, _, err = w.Handle(context.Background(), asset(t, "/api/broken"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	runtime, err := s.Open(context.Background(), w.RuntimeCache())
	require.NoError(t, err)
	keys, err := runtime.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{origin + "/api/extras?lat=1&lon=1"}, keys)

	_, _, err = w.Handle(context.Background(), asset(t, "/nowhere"))
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestOpaqueResponsesAreStashed(t *testing.T) {
	n := shellNet()
	s := NewMemoryStorage(0)
	w := activeWorker(t, testConfig(t, "v1"), s, n)
	n.handle("/tiles/1.png", func(context.Context) (*Response, error) {
		r := NewResponse(0, nil, nil)
		r.Opaque = true
		return r, nil
	})

	_, _, err := w.Handle(context.Background(), asset(t, "/tiles/1.png"))
	require.NoError(t, err)

	runtime, err := s.Open(context.Background(), w.RuntimeCache())
	require.NoError(t, err)
	cached, err := runtime.Match(context.Background(), mustURL(t, origin+"/tiles/1.png"), MatchOptions{})
	require.NoError(t, err)
	assert.True(t, cached.Opaque)
}

func TestIsNavigation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9")
	assert.True(t, IsNavigation(req))

	req.Header.Set("Sec-Fetch-Mode", "cors")
	assert.False(t, IsNavigation(req))

	post := httptest.NewRequest(http.MethodPost, "/", nil)
	post.Header.Set("Sec-Fetch-Mode", "navigate")
	assert.False(t, IsNavigation(post))
}

func TestHTTPFetcherMarksOpaque(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cors" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), Origin: mustURL(t, origin)}

	resp, err := f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, srv.URL+"/plain", nil))
	require.NoError(t, err)
	assert.True(t, resp.Opaque)
	assert.Equal(t, "ok", bodyOf(t, resp))

	resp, err = f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, srv.URL+"/cors", nil))
	require.NoError(t, err)
	assert.False(t, resp.Opaque)

	same := &HTTPFetcher{Client: srv.Client(), Origin: mustURL(t, srv.URL)}
	resp, err = same.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, srv.URL+"/plain", nil))
	require.NoError(t, err)
	assert.False(t, resp.Opaque)
}
