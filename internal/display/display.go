// Package display turns raw readings and timestamps into the strings shown on
// the dashboard.
package display

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/i474232898/weather-dashboard/internal/common"
)

// Missing is shown in place of any value that is absent or not finite.
const Missing = "--"

var errBadTimestamp = errors.New("invalid time format; use RFC3339 or unix seconds")

// Temperature formats a reading such as "72°F". Unit may be empty.
func Temperature(v *float64, unit string) string {
	if !finite(v) {
		return Missing
	}
	return fmt.Sprintf("%d°%s", int(math.Round(*v)), strings.TrimSpace(unit))
}

// Percent formats a 0-100 value such as "40%".
func Percent(v *float64) string {
	if !finite(v) {
		return Missing
	}
	return fmt.Sprintf("%d%%", int(math.Round(*v)))
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// ParseTimestamp accepts either RFC3339 or unix seconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errBadTimestamp
}

// TimeAgo describes how long before now the given instant was.
// Future instants read as "just now".
func TimeAgo(now, then time.Time) string {
	d := now.Sub(then)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hr ago", int(d/time.Hour))
	}
	days := int(d / (24 * time.Hour))
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

// AlertProgress is the elapsed fraction of an alert's validity window,
// clamped to [0, 1].
func AlertProgress(start, end, now time.Time) float64 {
	span := end.Sub(start)
	if span <= 0 {
		if now.Before(end) {
			return 0
		}
		return 1
	}
	return common.Clamp(float64(now.Sub(start))/float64(span), 0, 1)
}

// ProgressPercent renders a progress ratio as a CSS width, e.g. "25.00%".
func ProgressPercent(p float64) string {
	return fmt.Sprintf("%.2f%%", common.Clamp(p, 0, 1)*100)
}

// Zone resolves an IANA zone name, falling back to the local zone when the
// name is empty or unknown.
func Zone(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// InZone formats t as "Mon, 01/15, 3:04pm" in the named zone.
func InZone(t time.Time, zone string) string {
	return DateTime(t.In(Zone(zone)))
}

// DateTime formats t as "Mon, 01/15, 3:04pm" in its own zone.
func DateTime(t time.Time) string {
	return t.Format("Mon, 01/02, ") + HourLabel(t)
}

// HourLabel formats t as "3:04pm".
func HourLabel(t time.Time) string {
	return t.Format("3:04pm")
}
