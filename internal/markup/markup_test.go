package markup

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

const page = `<!DOCTYPE html>
<html><body>
<main data-dashboard data-has-weather="true" data-used-cached-location="1"
      data-location-label="Springfield, IL" data-location-key="springfield-il"
      data-lat="39.7817" data-lon="-89.6501" data-time-zone="America/Chicago"
      data-observation-timestamp="2026-10-19T14:00:00Z" data-alert-radius="25">
  <section class="days">
    <button data-day-key="2026-10-19">Mon</button>
    <button data-day-key="2026-10-20">Tue</button>
  </section>
  <div class="modal"><div data-day-key="2026-10-19"></div></div>
  <article data-alert data-alert-title="Flood Watch" data-alert-severity="moderate"
           data-alert-start="2026-10-19T12:00:00Z" data-alert-end="1792425600">
    <ul>
      <li data-alert-area="Sangamon" data-distance-mi="3">Sangamon</li>
      <li data-alert-area data-distance-mi="n/a">Menard County</li>
    </ul>
  </article>
  <ul class="saved">
    <li data-saved-location="springfield-il" data-location-label="Springfield, IL" data-lat="39.78" data-lon="-89.65">
      <button data-location-action="select">Use</button>
      <button data-location-action="delete">Remove</button>
      <button data-location-action="explode">?</button>
    </li>
    <li data-saved-location="coord:41.8781,-87.6298" data-location-label="Chicago">
      <button data-location-action="select">Use</button>
    </li>
  </ul>
</main>
</body></html>`

func TestParsePage(t *testing.T) {
	p, err := ParsePage(strings.NewReader(page))
	require.NoError(t, err)

	assert.True(t, p.HasWeather)
	assert.True(t, p.UsedCachedLocation)
	assert.Equal(t, "Springfield, IL", p.Location)
	assert.Equal(t, "springfield-il", p.LocationKey)
	assert.Equal(t, "America/Chicago", p.TimeZone)
	assert.Equal(t, "2026-10-19T14:00:00Z", p.ObservationTimestamp)
	assert.Equal(t, 25, p.AlertRadius)
	require.NotNil(t, p.Coord)
	assert.Equal(t, weather.Coordinate{Lat: 39.7817, Lon: -89.6501}, *p.Coord)

	assert.Equal(t, []string{"2026-10-19", "2026-10-20"}, p.DayKeys)

	require.Len(t, p.Alerts, 1)
	a := p.Alerts[0]
	assert.Equal(t, "Flood Watch", a.Title)
	assert.Equal(t, "moderate", a.Severity)
	assert.True(t, a.Start.Equal(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(1792425600), a.End.Unix())
	require.Len(t, a.Areas, 2)
	assert.Equal(t, "Sangamon", a.Areas[0].Name)
	require.NotNil(t, a.Areas[0].DistanceMi)
	assert.Equal(t, 3, *a.Areas[0].DistanceMi)
	assert.Equal(t, "Menard County", a.Areas[1].Name)
	assert.Nil(t, a.Areas[1].DistanceMi)

	require.Len(t, p.SavedLocations, 2)
	assert.Equal(t, "springfield-il", p.SavedLocations[0].Key)
	assert.Equal(t, []string{weather.LocationSelect, weather.LocationDelete}, p.SavedLocations[0].Actions)
	require.NotNil(t, p.SavedLocations[0].Coord)
	assert.Equal(t, "coord:41.8781,-87.6298", p.SavedLocations[1].Key)
	assert.Nil(t, p.SavedLocations[1].Coord)
}

func TestParsePageWithoutWeather(t *testing.T) {
	p, err := ParsePage(strings.NewReader(`<div data-dashboard data-error="Location not found"></div>`))
	require.NoError(t, err)
	assert.False(t, p.HasWeather)
	assert.Equal(t, "Location not found", p.Error)
	assert.Nil(t, p.Coord)
	assert.Empty(t, p.DayKeys)
}

func TestParsePageRequiresRoot(t *testing.T) {
	_, err := ParsePage(strings.NewReader(`<p>offline</p>`))
	assert.ErrorIs(t, err, ErrNoDashboard)
}

func TestParseAlertsFragment(t *testing.T) {
	alerts, err := ParseAlerts(`<div data-alert data-alert-severity="severe"> Tornado   Warning </div>
<div data-alert data-alert-title="Heat Advisory" data-alert-start="bogus"></div>`)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "Tornado Warning", alerts[0].Title)
	assert.Equal(t, "severe", alerts[0].Severity)
	assert.Equal(t, "Heat Advisory", alerts[1].Title)
	assert.True(t, alerts[1].Start.IsZero())
}
