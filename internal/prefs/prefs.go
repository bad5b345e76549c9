// Package prefs reads and writes the small client preferences persisted as
// cookies: the last known location and the alert search radius.
package prefs

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Cookie names shared with the backend.
const (
	CookieLastLat     = "last_lat"
	CookieLastLon     = "last_lon"
	CookieAlertRadius = "alert_radius_mi"
)

const (
	// DefaultDays is the cookie lifetime used when none is given.
	DefaultDays = 30

	// DefaultAlertRadius applies when the stored radius is missing or invalid.
	DefaultAlertRadius = 10

	// switchThreshold is the per-axis delta in degrees (~3km) beyond which a
	// detected location counts as a different place.
	switchThreshold = 0.03
)

// AlertRadiusOptions are the only accepted alert radii, in miles.
var AlertRadiusOptions = []int{5, 10, 15, 20, 25, 30, 40, 50, 75, 100}

var ErrInvalidRadius = errors.New("alert radius is not one of the allowed options")

// Store reads and writes preferences through a Jar.
type Store struct {
	jar Jar
}

func NewStore(jar Jar) *Store {
	return &Store{jar: jar}
}

// Get returns the URL-decoded value of the first cookie called name.
func (s *Store) Get(name string) (string, bool) {
	return Lookup(s.jar.Cookie(), name)
}

// Set writes a cookie that lives for days days (DefaultDays when <= 0).
func (s *Store) Set(name, value string, days int) {
	s.jar.SetCookie(SetCookieString(name, value, days))
}

// LastLocation returns the cached location, if a valid one is stored.
func (s *Store) LastLocation() (weather.Coordinate, bool) {
	latStr, ok1 := s.Get(CookieLastLat)
	lonStr, ok2 := s.Get(CookieLastLon)
	if !ok1 || !ok2 {
		return weather.Coordinate{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err1 != nil || err2 != nil {
		return weather.Coordinate{}, false
	}
	c := weather.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return weather.Coordinate{}, false
	}
	return c, true
}

// SaveLocation stores c as the last known location.
func (s *Store) SaveLocation(c weather.Coordinate) {
	q := c.Query()
	s.Set(CookieLastLat, q.Get("lat"), DefaultDays)
	s.Set(CookieLastLon, q.Get("lon"), DefaultDays)
}

// AlertRadius returns the stored radius or DefaultAlertRadius.
func (s *Store) AlertRadius() int {
	return s.AlertRadiusOr(DefaultAlertRadius)
}

// AlertRadiusOr returns the stored radius, falling back to fallback when it
// is an allowed option and to DefaultAlertRadius otherwise.
func (s *Store) AlertRadiusOr(fallback int) int {
	raw, _ := s.Get(CookieAlertRadius)
	if r, ok := ParseAlertRadius(raw); ok {
		return r
	}
	if slices.Contains(AlertRadiusOptions, fallback) {
		return fallback
	}
	return DefaultAlertRadius
}

// SetAlertRadius stores r if it is an allowed option.
func (s *Store) SetAlertRadius(r int) error {
	if !slices.Contains(AlertRadiusOptions, r) {
		return fmt.Errorf("%w: %d", ErrInvalidRadius, r)
	}
	s.Set(CookieAlertRadius, strconv.Itoa(r), DefaultDays)
	return nil
}

// ParseAlertRadius parses raw as one of AlertRadiusOptions.
func ParseAlertRadius(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !slices.Contains(AlertRadiusOptions, n) {
		return 0, false
	}
	return n, true
}

// IsSignificantlyDifferent reports whether b is far enough from a to offer
// switching to it.
func IsSignificantlyDifferent(a, b weather.Coordinate) bool {
	return math.Abs(a.Lat-b.Lat) > switchThreshold || math.Abs(a.Lon-b.Lon) > switchThreshold
}

// Lookup finds name in a "k=v; k2=v2" cookie string. The first match wins.
func Lookup(cookies, name string) (string, bool) {
	for _, part := range strings.Split(cookies, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != name {
			continue
		}
		if dec, err := url.QueryUnescape(v); err == nil {
			return dec, true
		}
		return v, true
	}
	return "", false
}

// SetCookieString builds the Set-Cookie text written for a preference.
func SetCookieString(name, value string, days int) string {
	if days <= 0 {
		days = DefaultDays
	}
	return fmt.Sprintf("%s=%s; max-age=%d; path=/; SameSite=Lax",
		name, url.QueryEscape(value), days*24*60*60)
}
