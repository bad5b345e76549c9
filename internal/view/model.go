package view

import (
	"time"

	"github.com/i474232898/weather-dashboard/internal/chart"
	"github.com/i474232898/weather-dashboard/internal/display"
	"github.com/i474232898/weather-dashboard/internal/geoloc"
	"github.com/i474232898/weather-dashboard/internal/prefs"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// ViewModel is everything a Renderer needs to draw the dashboard.
type ViewModel struct {
	State       UIState
	Location    string
	LocationKey string
	Clock       string
	Status      string

	Prompt  *PromptView
	Current CurrentView

	Hourly      chart.Chart
	HourlyError string

	Days           []DayView
	Alerts         []AlertView
	AlertsAdvisory bool
	AlertRadius    int
	RadiusOptions  []int

	SavedLocations []weather.SavedLocation

	Modal ModalView
}

// PromptView is the location prompt and geolocation progress.
type PromptView struct {
	Detecting bool
	Message   string
	CanRetry  bool
	// Supported is false when the device cannot detect a location at all.
	Supported bool
}

type CurrentView struct {
	Temperature    string
	FeelsLike      string
	Humidity       string
	PrecipChance   string
	ObservationAgo string
	ObservedAt     string
	Station        string
	Label          string
}

type DayView struct {
	Key      string
	Label    string
	Selected bool
}

type AlertView struct {
	Title         string
	Severity      string
	Window        string
	Progress      float64
	ProgressLabel string
	Areas         []string
}

type ModalView struct {
	Kind    Modal
	Day     *DayDetailView
	Switch  *SwitchView
	Refresh *RefreshView
	Busy    bool
}

type DayDetailView struct {
	Key         string
	Label       string
	Pending     bool
	Temperature chart.Chart
	Precip      chart.Chart
	TempHover   chart.Hover
	PrecipHover chart.Hover
}

type SwitchView struct {
	From weather.Coordinate
	To   weather.Coordinate
}

type RefreshView struct {
	LocationKey string
	Label       string
}

// Renderer draws view models. Implementations must not call back into the
// Dashboard from Render.
type Renderer interface {
	Render(ViewModel)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ViewModel)

func (f RendererFunc) Render(vm ViewModel) { f(vm) }

// Build maps the session state at now to a view model. It has no side
// effects.
func Build(s *Session, now time.Time) ViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()

	zone := ""
	if s.extras.TimeZone != nil {
		zone = *s.extras.TimeZone
	}

	vm := ViewModel{
		State:          s.ui,
		Location:       s.page.Location,
		LocationKey:    s.page.LocationKey,
		Clock:          display.InZone(now, zone),
		Status:         s.status,
		Current:        buildCurrent(s.extras, now, zone),
		AlertRadius:    s.radius,
		RadiusOptions:  prefs.AlertRadiusOptions,
		SavedLocations: s.page.SavedLocations,
		Modal:          ModalView{Kind: s.modal, Busy: s.busy},
	}
	if s.page.Error != "" && vm.Status == "" {
		vm.Status = s.page.Error
	}

	if s.ui != UIWeatherShown || s.geo.RequestID != 0 {
		vm.Prompt = buildPrompt(s)
	}

	if len(s.extras.HourlyToday) > 0 {
		vm.Hourly = chart.TemperatureChart(weather.DailyDetail{Hours: s.extras.HourlyToday})
	}
	if s.extras.HourlyError != nil {
		vm.HourlyError = *s.extras.HourlyError
	}

	for _, key := range s.page.DayKeys {
		label := key
		if d, ok := s.details[key]; ok && d.DateLabel != "" {
			label = d.DateLabel
		}
		vm.Days = append(vm.Days, DayView{Key: key, Label: label, Selected: key == s.selectedDay})
	}

	for _, a := range weather.FilterAlerts(s.alerts, s.radius) {
		vm.Alerts = append(vm.Alerts, buildAlert(a, now, zone))
	}
	if s.extras.AlertsHasAdvisory != nil {
		vm.AlertsAdvisory = *s.extras.AlertsHasAdvisory
	}

	switch s.modal {
	case ModalDay:
		vm.Modal.Day = buildDay(s)
	case ModalSwitch:
		if s.pendingSwitch != nil && s.page.Coord != nil {
			vm.Modal.Switch = &SwitchView{From: *s.page.Coord, To: *s.pendingSwitch}
		}
	case ModalRefresh:
		vm.Modal.Refresh = &RefreshView{LocationKey: s.refreshKey, Label: labelFor(s.page, s.refreshKey)}
	}
	return vm
}

func buildPrompt(s *Session) *PromptView {
	p := &PromptView{
		Message:   s.geo.Message,
		CanRetry:  s.geo.CanRetry,
		Supported: s.supported,
	}
	switch s.geo.State {
	case geoloc.StatePermissionCheck, geoloc.StateQuickAttempt, geoloc.StateFreshAttempt, geoloc.StateSuccess:
		p.Detecting = true
	}
	return p
}

func buildCurrent(e weather.Extras, now time.Time, zone string) CurrentView {
	unit := ""
	if e.ActualTemperatureUnit != nil {
		unit = *e.ActualTemperatureUnit
	}
	c := CurrentView{
		Temperature:  display.Temperature(e.ActualTemperature, unit),
		FeelsLike:    display.Temperature(e.FeelsLikeTemperature, unit),
		Humidity:     display.Percent(e.Humidity),
		PrecipChance: display.Percent(e.PrecipChance),
	}
	if e.ObservationStation != nil {
		c.Station = *e.ObservationStation
	}
	if e.ObservationLabel != nil {
		c.Label = *e.ObservationLabel
	}
	if e.ObservationTimestamp != nil {
		if ts, err := display.ParseTimestamp(*e.ObservationTimestamp); err == nil {
			c.ObservationAgo = display.TimeAgo(now, ts)
			c.ObservedAt = display.InZone(ts, zone)
		}
	}
	return c
}

func buildAlert(a weather.Alert, now time.Time, zone string) AlertView {
	v := AlertView{Title: a.Title, Severity: a.Severity}
	if !a.Start.IsZero() && !a.End.IsZero() {
		v.Progress = display.AlertProgress(a.Start, a.End, now)
		v.ProgressLabel = display.ProgressPercent(v.Progress)
		v.Window = display.InZone(a.Start, zone) + " to " + display.InZone(a.End, zone)
	}
	for _, area := range a.Areas {
		v.Areas = append(v.Areas, area.Name)
	}
	return v
}

func buildDay(s *Session) *DayDetailView {
	d, ok := s.details[s.selectedDay]
	v := &DayDetailView{Key: s.selectedDay, Label: s.selectedDay, Pending: !ok}
	if !ok {
		return v
	}
	if d.DateLabel != "" {
		v.Label = d.DateLabel
	}
	v.Temperature = chart.TemperatureChart(d)
	v.Precip = chart.PrecipChart(d)
	if c := s.hover[ChartTemperature]; c != nil {
		v.TempHover = c.State()
	}
	if c := s.hover[ChartPrecip]; c != nil {
		v.PrecipHover = c.State()
	}
	return v
}

func labelFor(p weather.Page, key string) string {
	for _, l := range p.SavedLocations {
		if l.Key == key {
			return l.Label
		}
	}
	if key == p.LocationKey {
		return p.Location
	}
	return key
}
