package prefs

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Jar is a document.cookie style key/value text store: Cookie returns every
// live cookie as "a=1; b=2" and SetCookie accepts a single Set-Cookie string.
type Jar interface {
	Cookie() string
	SetCookie(raw string)
}

// MemoryJar keeps cookies in process memory.
type MemoryJar struct {
	mu      sync.Mutex
	now     func() time.Time
	names   []string
	entries map[string]memoryCookie
}

type memoryCookie struct {
	value   string
	expires time.Time
}

func NewMemoryJar() *MemoryJar {
	return &MemoryJar{now: time.Now, entries: make(map[string]memoryCookie)}
}

func (j *MemoryJar) Cookie() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var parts []string
	for _, name := range j.names {
		e := j.entries[name]
		if !e.expires.IsZero() && !now.Before(e.expires) {
			continue
		}
		parts = append(parts, name+"="+e.value)
	}
	return strings.Join(parts, "; ")
}

func (j *MemoryJar) SetCookie(raw string) {
	c, err := http.ParseSetCookie(raw)
	if err != nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if c.MaxAge < 0 {
		j.remove(c.Name)
		return
	}
	e := memoryCookie{value: c.Value}
	if c.MaxAge > 0 {
		e.expires = j.now().Add(time.Duration(c.MaxAge) * time.Second)
	}
	if _, ok := j.entries[c.Name]; !ok {
		j.names = append(j.names, c.Name)
	}
	j.entries[c.Name] = e
}

func (j *MemoryJar) remove(name string) {
	if _, ok := j.entries[name]; !ok {
		return
	}
	delete(j.entries, name)
	for i, n := range j.names {
		if n == name {
			j.names = append(j.names[:i], j.names[i+1:]...)
			break
		}
	}
}

// HTTPJar exposes the cookies an http.CookieJar holds for one site, so that
// preferences written by the client travel to the backend and cookies set
// by the backend (last_lat, last_lon) are readable by the client.
type HTTPJar struct {
	jar  http.CookieJar
	site *url.URL
}

func NewHTTPJar(jar http.CookieJar, site *url.URL) *HTTPJar {
	return &HTTPJar{jar: jar, site: site}
}

func (j *HTTPJar) Cookie() string {
	var parts []string
	for _, c := range j.jar.Cookies(j.site) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

func (j *HTTPJar) SetCookie(raw string) {
	c, err := http.ParseSetCookie(raw)
	if err != nil {
		return
	}
	j.jar.SetCookies(j.site, []*http.Cookie{c})
}
