package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/offline"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "home "+r.URL.RawQuery)
	})
	mux.HandleFunc("/static/app.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		io.WriteString(w, "body{}")
	})
	mux.HandleFunc("/offline.html", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "offline")
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, srv *httptest.Server) *fiber.App {
	t.Helper()
	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)

	base := offline.Config{
		Prefix:            "wd",
		Origin:            origin,
		Precache:          []string{"/", "/static/app.css", "/offline.html"},
		OfflinePage:       "/offline.html",
		NavigationTimeout: 200 * time.Millisecond,
	}
	fetcher := &offline.HTTPFetcher{Client: srv.Client(), Origin: origin}
	registry := offline.NewRegistry(base, offline.NewMemoryStorage(0), fetcher)

	app := NewApp("weather-dashboard-test", false)
	RegisterRoutes(app, registry, origin)
	return app
}

func do(t *testing.T, app *fiber.App, method, target string, header map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

var html = map[string]string{"Accept": "text/html"}

func TestHealth(t *testing.T) {
	app := newTestApp(t, newBackend(t))
	code, body := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestWorkerRegistration(t *testing.T) {
	app := newTestApp(t, newBackend(t))

	code, body := do(t, app, http.MethodGet, "/__worker", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"state":"unregistered"`)

	code, body = do(t, app, http.MethodPost, "/__worker", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, `"error":true`)

	var out struct {
		Registration offline.Registration `json:"registration"`
		Updated      bool                 `json:"updated"`
	}
	code, body = do(t, app, http.MethodPost, "/__worker?version=1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, out.Updated)
	assert.Equal(t, "1", out.Registration.Version)
	assert.Equal(t, "/sw.js?v=1", out.Registration.ScriptURL)

	code, body = do(t, app, http.MethodPost, "/__worker?version=1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.False(t, out.Updated)

	var status offline.Registration
	code, body = do(t, app, http.MethodGet, "/__worker", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "activated", status.State)
	assert.Contains(t, status.Caches, "wd-shell-1")
}

func TestProxyPassesThroughWithoutWorker(t *testing.T) {
	app := newTestApp(t, newBackend(t))

	code, body := do(t, app, http.MethodGet, "/?lat=1", html)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "home lat=1", body)

	code, _ = do(t, app, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProxyServesCacheWhenOffline(t *testing.T) {
	srv := newBackend(t)
	app := newTestApp(t, srv)

	code, _ := do(t, app, http.MethodPost, "/__worker?version=1", nil)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, app, http.MethodGet, "/?lat=1", html)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "home lat=1", body)

	code, _ = do(t, app, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusNoContent, code)

	srv.Close()

	code, body = do(t, app, http.MethodGet, "/?lat=1", html)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "home lat=1", body)

	code, body = do(t, app, http.MethodGet, "/?lat=2", html)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "home")

	code, body = do(t, app, http.MethodGet, "/forecast", html)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "offline", body)

	code, body = do(t, app, http.MethodGet, "/static/app.css", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "body{}", body)

	code, body = do(t, app, http.MethodGet, "/static/missing.js", nil)
	assert.Equal(t, http.StatusGatewayTimeout, code)
	assert.Contains(t, body, "offline and not cached")

	code, body = do(t, app, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, `"error":true`)
}

func TestScriptURL(t *testing.T) {
	assert.Equal(t, "/sw.js?v=2024.05", ScriptURL("2024.05"))
}
