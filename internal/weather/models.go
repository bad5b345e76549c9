package weather

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// Valid reports whether both fields are finite real numbers.
func (c Coordinate) Valid() bool {
	return isFinite(c.Lat) && isFinite(c.Lon)
}

// InRange reports whether the coordinate lies on the globe.
func (c Coordinate) InRange() bool {
	return c.Valid() && c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Rounded returns the coordinate rounded to 4 decimal places (~11m).
func (c Coordinate) Rounded() Coordinate {
	return Coordinate{Lat: round4(c.Lat), Lon: round4(c.Lon)}
}

// Query encodes the coordinate as lat/lon query parameters with 4 decimals.
func (c Coordinate) Query() url.Values {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(c.Lat, 'f', 4, 64))
	v.Set("lon", strconv.FormatFloat(c.Lon, 'f', 4, 64))
	return v
}

// Alias is the canonical coordinate alias used by the backend's location cache.
func (c Coordinate) Alias() string {
	return fmt.Sprintf("coord:%.4f,%.4f", c.Lat, c.Lon)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HourSample is a single hourly reading. Nil pointers are missing readings.
type HourSample struct {
	Time            string   `json:"time"`
	Hour            *int     `json:"hour,omitempty"`
	Temperature     *float64 `json:"temperature"`
	FeelsLike       *float64 `json:"feelsLike"`
	PrecipChance    *float64 `json:"precipChance"`
	TemperatureUnit string   `json:"temperatureUnit"`
	ShortForecast   string   `json:"shortForecast,omitempty"`
}

// DailyDetail groups the hourly samples of one calendar day.
type DailyDetail struct {
	Key       string       `json:"key"`
	DateLabel string       `json:"date_label,omitempty"`
	Hours     []HourSample `json:"hours"`
}

// Extras is the supplemental payload of GET /api/extras.
// Every field is optional; nil means the backend did not send it.
type Extras struct {
	LocationKey           *string       `json:"location_key"`
	TimeZone              *string       `json:"time_zone"`
	ObservationLabel      *string       `json:"observation_label"`
	ObservationStation    *string       `json:"observation_station"`
	ObservationTimestamp  *string       `json:"observation_timestamp"`
	DailyDetails          []DailyDetail `json:"daily_details"`
	HourlyToday           []HourSample  `json:"hourly_today"`
	HourlyError           *string       `json:"hourly_error"`
	AlertsHTML            *string       `json:"alerts_html"`
	Humidity              *float64      `json:"humidity"`
	PrecipChance          *float64      `json:"precip_chance"`
	FeelsLikeTemperature  *float64      `json:"feels_like_temperature"`
	ActualTemperature     *float64      `json:"actual_temperature"`
	ActualTemperatureUnit *string       `json:"actual_temperature_unit"`
	AlertsHasAdvisory     *bool         `json:"alerts_has_advisory"`
}

// Cache action verbs accepted by POST /refresh.
const (
	ActionRefresh = "refresh"
	ActionDelete  = "delete"
)

// CacheAction is the body of POST /refresh.
type CacheAction struct {
	Action      string `json:"action" validate:"required,oneof=refresh delete"`
	LocationKey string `json:"location_key" validate:"required"`
}

// Saved-location action verbs carried by data-location-action.
const (
	LocationSelect = "select"
	LocationDelete = "delete"
)

// SavedLocation is an entry of the server's recent-locations list.
type SavedLocation struct {
	Key     string      `json:"key"`
	Label   string      `json:"label"`
	Coord   *Coordinate `json:"coord,omitempty"`
	Actions []string    `json:"actions,omitempty"`
}

// AlertArea is one affected area of an alert with its distance from the
// forecast point, when known.
type AlertArea struct {
	Name       string `json:"name"`
	DistanceMi *int   `json:"distance_mi,omitempty"`
}

// Alert is an active weather alert as published in the page markup.
type Alert struct {
	Title    string      `json:"title"`
	Severity string      `json:"severity"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Areas    []AlertArea `json:"areas,omitempty"`
}

// WithinRadius narrows the alert to the areas no further than radius miles.
// Areas of unknown distance are always kept. It reports false when every area
// with a known distance lies outside the radius.
func (a Alert) WithinRadius(radius int) (Alert, bool) {
	if len(a.Areas) == 0 {
		return a, true
	}
	kept := make([]AlertArea, 0, len(a.Areas))
	for _, area := range a.Areas {
		if area.DistanceMi == nil || *area.DistanceMi <= radius {
			kept = append(kept, area)
		}
	}
	if len(kept) == 0 {
		return a, false
	}
	a.Areas = kept
	return a, true
}

// FilterAlerts keeps the alerts affecting an area within radius miles.
func FilterAlerts(alerts []Alert, radius int) []Alert {
	var out []Alert
	for _, a := range alerts {
		if narrowed, ok := a.WithinRadius(radius); ok {
			out = append(out, narrowed)
		}
	}
	return out
}

// Page is the client's reading of a server-rendered page.
type Page struct {
	URL                  string          `json:"url"`
	Location             string          `json:"location"`
	LocationKey          string          `json:"location_key"`
	Coord                *Coordinate     `json:"coord,omitempty"`
	TimeZone             string          `json:"time_zone"`
	ObservationTimestamp string          `json:"observation_timestamp"`
	HasWeather           bool            `json:"has_weather"`
	UsedCachedLocation   bool            `json:"used_cached_location"`
	Error                string          `json:"error,omitempty"`
	AlertRadius          int             `json:"alert_radius_mi,omitempty"`
	DayKeys              []string        `json:"day_keys"`
	Alerts               []Alert         `json:"alerts"`
	SavedLocations       []SavedLocation `json:"saved_locations"`
}
