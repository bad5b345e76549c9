// Package markup reads the data-attribute contract out of server-rendered
// dashboard pages and alert fragments.
package markup

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/i474232898/weather-dashboard/internal/common"
	"github.com/i474232898/weather-dashboard/internal/display"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Attributes understood by the client.
const (
	AttrHasWeather      = "data-has-weather"
	AttrUsedCached      = "data-used-cached-location"
	AttrLocationLabel   = "data-location-label"
	AttrLocationKey     = "data-location-key"
	AttrLat             = "data-lat"
	AttrLon             = "data-lon"
	AttrTimeZone        = "data-time-zone"
	AttrObservationTime = "data-observation-timestamp"
	AttrError           = "data-error"
	AttrAlertRadius     = "data-alert-radius"
	AttrDayKey          = "data-day-key"
	AttrAlert           = "data-alert"
	AttrAlertTitle      = "data-alert-title"
	AttrAlertSeverity   = "data-alert-severity"
	AttrAlertStart      = "data-alert-start"
	AttrAlertEnd        = "data-alert-end"
	AttrAlertArea       = "data-alert-area"
	AttrDistanceMi      = "data-distance-mi"
	AttrSavedLocation   = "data-saved-location"
	AttrLocationAction  = "data-location-action"
	AttrDashboard       = "data-dashboard"
)

var ErrNoDashboard = errors.New("page has no dashboard root")

// ParsePage reads a full dashboard page. The root element carries a
// data-dashboard attribute; everything else is looked up beneath it.
func ParsePage(r io.Reader) (weather.Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return weather.Page{}, fmt.Errorf("parse page: %w", err)
	}

	root := find(doc, func(n *html.Node) bool { return has(n, AttrDashboard) })
	if root == nil {
		return weather.Page{}, ErrNoDashboard
	}

	var page weather.Page
	page.HasWeather = flag(root, AttrHasWeather)
	page.UsedCachedLocation = flag(root, AttrUsedCached)
	page.Location = attr(root, AttrLocationLabel)
	page.LocationKey = attr(root, AttrLocationKey)
	page.TimeZone = attr(root, AttrTimeZone)
	page.ObservationTimestamp = attr(root, AttrObservationTime)
	page.Error = attr(root, AttrError)
	page.Coord = coordOf(root)
	if r, ok := intAttr(root, AttrAlertRadius); ok {
		page.AlertRadius = r
	}

	seen := map[string]bool{}
	walk(root, func(n *html.Node) bool {
		switch {
		case has(n, AttrDayKey):
			key := attr(n, AttrDayKey)
			if key != "" && !seen[key] {
				seen[key] = true
				page.DayKeys = append(page.DayKeys, key)
			}
		case has(n, AttrAlert):
			page.Alerts = append(page.Alerts, alertOf(n))
			return false
		case has(n, AttrSavedLocation):
			page.SavedLocations = append(page.SavedLocations, savedLocationOf(n))
			return false
		}
		return true
	})
	return page, nil
}

// ParseAlerts reads the alerts of an alerts_html fragment.
func ParseAlerts(fragment string) ([]weather.Alert, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse alerts: %w", err)
	}
	var alerts []weather.Alert
	walk(doc, func(n *html.Node) bool {
		if has(n, AttrAlert) {
			alerts = append(alerts, alertOf(n))
			return false
		}
		return true
	})
	return alerts, nil
}

func alertOf(n *html.Node) weather.Alert {
	a := weather.Alert{
		Title:    attr(n, AttrAlertTitle),
		Severity: attr(n, AttrAlertSeverity),
	}
	if a.Title == "" {
		a.Title = strings.TrimSpace(text(n))
	}
	if v := attr(n, AttrAlertStart); v != "" {
		if t, err := display.ParseTimestamp(v); err == nil {
			a.Start = t
		} else {
			log.Printf("DEBUG: alert %q has bad start %q: %v", a.Title, v, err)
		}
	}
	if v := attr(n, AttrAlertEnd); v != "" {
		if t, err := display.ParseTimestamp(v); err == nil {
			a.End = t
		} else {
			log.Printf("DEBUG: alert %q has bad end %q: %v", a.Title, v, err)
		}
	}
	walk(n, func(c *html.Node) bool {
		if c != n && has(c, AttrAlertArea) {
			area := weather.AlertArea{Name: attr(c, AttrAlertArea)}
			if area.Name == "" {
				area.Name = strings.TrimSpace(text(c))
			}
			if d, ok := intAttr(c, AttrDistanceMi); ok {
				area.DistanceMi = common.Ptr(d)
			}
			a.Areas = append(a.Areas, area)
			return false
		}
		return true
	})
	return a
}

func savedLocationOf(n *html.Node) weather.SavedLocation {
	loc := weather.SavedLocation{
		Key:   attr(n, AttrSavedLocation),
		Label: attr(n, AttrLocationLabel),
		Coord: coordOf(n),
	}
	if loc.Key == "" {
		loc.Key = attr(n, AttrLocationKey)
	}
	walk(n, func(c *html.Node) bool {
		switch v := attr(c, AttrLocationAction); v {
		case weather.LocationSelect, weather.LocationDelete:
			if !contains(loc.Actions, v) {
				loc.Actions = append(loc.Actions, v)
			}
		case "":
		default:
			log.Printf("DEBUG: saved location %q has unknown action %q", loc.Key, v)
		}
		return true
	})
	return loc
}

func coordOf(n *html.Node) *weather.Coordinate {
	lat, err1 := strconv.ParseFloat(attr(n, AttrLat), 64)
	lon, err2 := strconv.ParseFloat(attr(n, AttrLon), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	c := weather.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return nil
	}
	return common.Ptr(c)
}

// walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func has(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func flag(n *html.Node, key string) bool {
	if !has(n, key) {
		return false
	}
	v := strings.ToLower(attr(n, key))
	return v == "" || v == "true" || v == "1"
}

func intAttr(n *html.Node, key string) (int, bool) {
	v, err := strconv.Atoi(attr(n, key))
	if err != nil {
		return 0, false
	}
	return v, true
}

func text(n *html.Node) string {
	var b strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
