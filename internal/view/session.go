package view

import (
	"log"
	"sync"

	"github.com/i474232898/weather-dashboard/internal/chart"
	"github.com/i474232898/weather-dashboard/internal/geoloc"
	"github.com/i474232898/weather-dashboard/internal/markup"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// UIState is the top-level screen.
type UIState string

const (
	UILoading          UIState = "loading"
	UIPermissionPrompt UIState = "permission-prompt"
	UIWeatherShown     UIState = "weather-shown"
)

// Modal identifies the open dialog, if any.
type Modal string

const (
	ModalNone    Modal = ""
	ModalSearch  Modal = "search"
	ModalSwitch  Modal = "switch-location"
	ModalDay     Modal = "day-detail"
	ModalRefresh Modal = "refresh"
)

// ChartKind selects one of the day-detail charts.
type ChartKind string

const (
	ChartTemperature ChartKind = "temperature"
	ChartPrecip      ChartKind = "precip"
)

// Session is the client state of one loaded page. A navigation or reload
// replaces it with a fresh one.
type Session struct {
	mu sync.Mutex

	page   weather.Page
	gen    *geoloc.Generation
	closed bool

	ui     UIState
	modal  Modal
	status string

	// details is replaced wholesale whenever extras bring new day details.
	details     map[string]weather.DailyDetail
	selectedDay string
	hover       map[ChartKind]*chart.Controller

	extras weather.Extras
	alerts []weather.Alert
	radius int

	geo           geoloc.Update
	supported     bool
	pendingSwitch *weather.Coordinate
	refreshKey    string
	busy          bool
}

func newSession(page weather.Page, radius int) *Session {
	s := &Session{
		page:    page,
		gen:     geoloc.NewGeneration(),
		ui:      UILoading,
		details: map[string]weather.DailyDetail{},
		hover:   map[ChartKind]*chart.Controller{},
		alerts:  page.Alerts,
		radius:  radius,
	}
	if page.HasWeather {
		s.ui = UIWeatherShown
	}
	if page.TimeZone != "" {
		s.extras.TimeZone = &page.TimeZone
	}
	if page.ObservationTimestamp != "" {
		s.extras.ObservationTimestamp = &page.ObservationTimestamp
	}
	return s
}

// Page returns the page the session was built from.
func (s *Session) Page() weather.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Generation is the session's geolocation request counter.
func (s *Session) Generation() *geoloc.Generation {
	return s.gen
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.gen.Invalidate()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mergeExtras folds fields present in e into the session. Absent fields keep
// what was already rendered. Must hold s.mu.
func (s *Session) mergeExtras(e weather.Extras) {
	dst := &s.extras
	if e.LocationKey != nil {
		dst.LocationKey = e.LocationKey
		if s.page.LocationKey == "" {
			s.page.LocationKey = *e.LocationKey
		}
	}
	if e.TimeZone != nil {
		dst.TimeZone = e.TimeZone
	}
	if e.ObservationLabel != nil {
		dst.ObservationLabel = e.ObservationLabel
	}
	if e.ObservationStation != nil {
		dst.ObservationStation = e.ObservationStation
	}
	if e.ObservationTimestamp != nil {
		dst.ObservationTimestamp = e.ObservationTimestamp
	}
	if e.HourlyToday != nil {
		dst.HourlyToday = e.HourlyToday
		dst.HourlyError = nil
	}
	if e.HourlyError != nil {
		dst.HourlyError = e.HourlyError
	}
	if e.Humidity != nil {
		dst.Humidity = e.Humidity
	}
	if e.PrecipChance != nil {
		dst.PrecipChance = e.PrecipChance
	}
	if e.FeelsLikeTemperature != nil {
		dst.FeelsLikeTemperature = e.FeelsLikeTemperature
	}
	if e.ActualTemperature != nil {
		dst.ActualTemperature = e.ActualTemperature
	}
	if e.ActualTemperatureUnit != nil {
		dst.ActualTemperatureUnit = e.ActualTemperatureUnit
	}
	if e.AlertsHasAdvisory != nil {
		dst.AlertsHasAdvisory = e.AlertsHasAdvisory
	}
	if e.AlertsHTML != nil {
		dst.AlertsHTML = e.AlertsHTML
		alerts, err := markup.ParseAlerts(*e.AlertsHTML)
		if err != nil {
			log.Printf("ERROR: alerts markup: %v", err)
		} else {
			s.alerts = alerts
		}
	}
	if e.DailyDetails != nil {
		details := make(map[string]weather.DailyDetail, len(e.DailyDetails))
		for _, d := range e.DailyDetails {
			details[d.Key] = d
		}
		s.details = details
		dst.DailyDetails = e.DailyDetails
		if s.modal == ModalDay {
			s.resetHover()
		}
	}
}

// resetHover rebuilds the chart controllers for the selected day. Must hold
// s.mu.
func (s *Session) resetHover() {
	d := s.details[s.selectedDay]
	s.hover = map[ChartKind]*chart.Controller{
		ChartTemperature: chart.NewController(d.Hours, chart.TemperatureTooltip),
		ChartPrecip:      chart.NewController(d.Hours, chart.PrecipTooltip),
	}
}
