// Package view is the dashboard controller. It owns one Session per loaded
// page, wires user actions to geolocation, preferences and the backend, and
// hands pure view models to a Renderer.
package view

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/weather-dashboard/internal/chart"
	"github.com/i474232898/weather-dashboard/internal/geoloc"
	"github.com/i474232898/weather-dashboard/internal/prefs"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Inline status messages.
const (
	StatusExtrasFailed = "Some details could not be loaded."
	StatusActionFailed = "Could not update the saved location. Check your connection and try again."
	StatusLoadFailed   = "Could not load the forecast. Check your connection and try again."
	StatusEmptySearch  = "Enter a city, address or ZIP code."
)

const (
	DefaultAutoRefresh   = 5 * time.Minute
	DefaultClockInterval = 30 * time.Second
)

var (
	ErrNoSession       = errors.New("no page loaded")
	ErrEmptyQuery      = errors.New("empty search query")
	ErrUnknownDay      = errors.New("unknown day")
	ErrUnknownLocation = errors.New("unknown saved location")
	ErrUnknownAction   = errors.New("unknown location action")
	ErrNoPendingSwitch = errors.New("no location switch pending")
	ErrNoDayOpen       = errors.New("no day detail open")
)

// Backend is the server surface the dashboard consumes.
type Backend interface {
	Page(ctx context.Context, target string) (weather.Page, error)
	Extras(ctx context.Context, coord weather.Coordinate, locationKey string) (weather.Extras, error)
	CacheAction(ctx context.Context, action weather.CacheAction) error
}

// Timers schedules background work. Each call returns a cancel func.
type Timers interface {
	Every(interval time.Duration, name string, fn func()) (func(), error)
	After(delay time.Duration, name string, fn func()) (func(), error)
}

type Config struct {
	Backend     Backend
	Prefs       *prefs.Store
	Locator     geoloc.Geolocator
	Permissions geoloc.Permissions
	Ladder      []geoloc.Options
	Timers      Timers
	Renderer    Renderer
	Now         func() time.Time

	AutoRefresh   time.Duration
	ClockInterval time.Duration
}

type Dashboard struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *Session
	machine *geoloc.Machine
	timers  []func()

	renderMu sync.Mutex
	wg       sync.WaitGroup
}

// New creates a Dashboard. Background work is bound to ctx.
func New(ctx context.Context, cfg Config) *Dashboard {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.NewStore(prefs.NewMemoryJar())
	}
	if cfg.AutoRefresh <= 0 {
		cfg.AutoRefresh = DefaultAutoRefresh
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = DefaultClockInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Dashboard{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Session is the state of the currently loaded page, nil before the first.
func (d *Dashboard) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

func (d *Dashboard) current() (*Session, *geoloc.Machine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, nil, ErrNoSession
	}
	return d.session, d.machine, nil
}

// View builds the view model of the current page.
func (d *Dashboard) View() (ViewModel, error) {
	s, _, err := d.current()
	if err != nil {
		return ViewModel{}, err
	}
	return Build(s, d.cfg.Now()), nil
}

// Load fetches a server-rendered page and shows it. On failure the current
// page stays up with an inline status.
func (d *Dashboard) Load(ctx context.Context, target string) error {
	page, err := d.cfg.Backend.Page(ctx, target)
	if err != nil {
		log.Printf("ERROR: load %s: %v", target, err)
		if s, _, cerr := d.current(); cerr == nil {
			s.mu.Lock()
			s.status = StatusLoadFailed
			s.busy = false
			s.mu.Unlock()
			d.render(s)
		} else {
			d.Init(weather.Page{URL: target, Error: StatusLoadFailed})
		}
		return err
	}
	d.Init(page)
	return nil
}

// Init replaces the current session with one for page and starts its
// background work.
func (d *Dashboard) Init(page weather.Page) {
	s := newSession(page, d.cfg.Prefs.AlertRadiusOr(page.AlertRadius))
	m := geoloc.New(geoloc.Config{
		Locator:     d.cfg.Locator,
		Permissions: d.cfg.Permissions,
		Ladder:      d.cfg.Ladder,
		Generation:  s.gen,
		Listener:    d.geoListener(s),
		// Loading replaces this session and invalidates its generation, so
		// it cannot run inside the continuation.
		Navigate: func(target string) {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				if err := d.Load(d.ctx, target); err != nil {
					log.Printf("ERROR: navigate to detected location: %v", err)
				}
			}()
		},
	})
	s.supported = m.Supported()

	d.mu.Lock()
	old, oldTimers := d.session, d.timers
	d.session, d.machine, d.timers = s, m, nil
	d.mu.Unlock()

	for _, cancel := range oldTimers {
		cancel()
	}
	if old != nil {
		old.close()
	}

	if !page.HasWeather && page.Error != "" {
		s.mu.Lock()
		s.ui = UIPermissionPrompt
		s.modal = ModalSearch
		s.mu.Unlock()
	}
	d.render(s)
	d.startTimers(s, page.HasWeather)

	switch {
	case page.HasWeather:
		if page.Coord != nil {
			d.wg.Add(1)
			go d.loadExtras(s, *page.Coord, page.LocationKey)
		}
		if page.UsedCachedLocation && page.Coord != nil && m.Supported() {
			m.Request(d.ctx, geoloc.RequestOptions{Silent: true, OnSuccess: d.offerSwitch(s)})
		}
	case page.Error == "":
		m.Start(d.ctx)
	}
}

func (d *Dashboard) startTimers(s *Session, hasWeather bool) {
	if d.cfg.Timers == nil {
		return
	}
	var cancels []func()
	if cancel, err := d.cfg.Timers.Every(d.cfg.ClockInterval, "clock", d.Tick); err != nil {
		log.Printf("ERROR: schedule clock: %v", err)
	} else {
		cancels = append(cancels, cancel)
	}
	if hasWeather {
		refresh := func() {
			if err := d.refreshSilently(s); err != nil {
				log.Printf("ERROR: auto-refresh: %v", err)
			}
		}
		if cancel, err := d.cfg.Timers.After(d.cfg.AutoRefresh, "auto-refresh", refresh); err != nil {
			log.Printf("ERROR: schedule auto-refresh: %v", err)
		} else {
			cancels = append(cancels, cancel)
		}
	}

	d.mu.Lock()
	if d.session == s {
		d.timers = append(d.timers, cancels...)
		cancels = nil
	}
	d.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// refreshSilently reloads the page of s in the background without any
// loading indicator.
func (d *Dashboard) refreshSilently(s *Session) error {
	if s.isClosed() {
		return nil
	}
	target := reloadTarget(s.Page())
	log.Printf("DEBUG: auto-refresh %s", target)
	page, err := d.cfg.Backend.Page(d.ctx, target)
	if err != nil {
		return err
	}
	if cur, _, err := d.current(); err != nil || cur != s {
		return nil
	}
	d.Init(page)
	return nil
}

func (d *Dashboard) loadExtras(s *Session, coord weather.Coordinate, key string) {
	defer d.wg.Done()

	extras, err := d.cfg.Backend.Extras(d.ctx, coord, key)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("ERROR: deferred extras for %s: %v", coord.Alias(), err)
		if s.status == "" {
			s.status = StatusExtrasFailed
		}
	} else {
		s.mergeExtras(extras)
	}
	s.mu.Unlock()
	d.render(s)
}

// geoListener runs under the generation lock; it must not start requests.
func (d *Dashboard) geoListener(s *Session) geoloc.Listener {
	return func(u geoloc.Update) {
		if u.State == geoloc.StateSuccess && u.Coord != nil {
			d.cfg.Prefs.SaveLocation(*u.Coord)
		}

		s.mu.Lock()
		s.geo = u
		if !s.page.HasWeather {
			switch {
			case u.Prompt, u.State.Terminal() && u.State != geoloc.StateSuccess:
				s.ui = UIPermissionPrompt
			default:
				s.ui = UILoading
			}
		}
		s.mu.Unlock()
		d.render(s)
	}
}

// offerSwitch asks the user to move to a freshly detected position when it is
// far from the cached location the page was built for.
func (d *Dashboard) offerSwitch(s *Session) func(weather.Coordinate) {
	return func(c weather.Coordinate) {
		s.mu.Lock()
		cached := s.page.Coord
		if s.closed || cached == nil || !prefs.IsSignificantlyDifferent(*cached, c) {
			s.mu.Unlock()
			return
		}
		s.pendingSwitch = &c
		if s.modal == ModalNone {
			s.modal = ModalSwitch
		}
		s.mu.Unlock()
		d.render(s)
	}
}

func (d *Dashboard) render(s *Session) {
	if s == nil || d.cfg.Renderer == nil {
		return
	}
	if cur, _, err := d.current(); err != nil || cur != s {
		return
	}
	vm := Build(s, d.cfg.Now())

	d.renderMu.Lock()
	defer d.renderMu.Unlock()
	d.cfg.Renderer.Render(vm)
}

// update mutates the current session and re-renders it.
func (d *Dashboard) update(fn func(s *Session) error) error {
	s, _, err := d.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	err = fn(s)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	d.render(s)
	return nil
}

// RequestLocation starts an explicit, user-visible location request and
// returns its id. Success navigates to the detected location.
func (d *Dashboard) RequestLocation() (uint64, error) {
	s, m, err := d.current()
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.status = ""
	s.mu.Unlock()
	return m.Request(d.ctx, geoloc.RequestOptions{}), nil
}

// UseCurrentLocation closes the search dialog and detects the location.
func (d *Dashboard) UseCurrentLocation() (uint64, error) {
	if err := d.update(func(s *Session) error {
		if s.modal == ModalSearch {
			s.modal = ModalNone
		}
		return nil
	}); err != nil {
		return 0, err
	}
	return d.RequestLocation()
}

// OpenSearch shows the location search dialog.
func (d *Dashboard) OpenSearch() error {
	return d.update(func(s *Session) error {
		s.modal = ModalSearch
		return nil
	})
}

// Search loads the forecast for a free-text place. Any location request in
// flight is abandoned.
func (d *Dashboard) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		if err := d.update(func(s *Session) error {
			s.status = StatusEmptySearch
			return nil
		}); err != nil {
			return err
		}
		return ErrEmptyQuery
	}
	if _, m, err := d.current(); err == nil {
		m.Cancel()
	}
	return d.Load(ctx, "/?"+url.Values{"address": {query}}.Encode())
}

// OpenDay shows the hourly detail of one day.
func (d *Dashboard) OpenDay(key string) error {
	return d.update(func(s *Session) error {
		if !slices.Contains(s.page.DayKeys, key) {
			if _, ok := s.details[key]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownDay, key)
			}
		}
		s.selectedDay = key
		s.modal = ModalDay
		s.resetHover()
		return nil
	})
}

// CloseModal dismisses whichever dialog is open.
func (d *Dashboard) CloseModal() error {
	return d.update(func(s *Session) error {
		switch s.modal {
		case ModalDay:
			s.selectedDay = ""
			s.hover = map[ChartKind]*chart.Controller{}
		case ModalSwitch:
			s.pendingSwitch = nil
		case ModalRefresh:
			s.refreshKey = ""
		}
		s.modal = ModalNone
		return nil
	})
}

// Hover moves the marker and tooltip of a day-detail chart.
func (d *Dashboard) Hover(kind ChartKind, pointerX float64, box chart.Box, tooltipWidth float64) (chart.Hover, error) {
	var h chart.Hover
	err := d.update(func(s *Session) error {
		c := s.hover[kind]
		if s.modal != ModalDay || c == nil {
			return ErrNoDayOpen
		}
		h = c.Move(pointerX, box, tooltipWidth)
		return nil
	})
	return h, err
}

// Leave hides the marker and tooltip when the pointer leaves a chart.
func (d *Dashboard) Leave(kind ChartKind) error {
	return d.update(func(s *Session) error {
		if c := s.hover[kind]; c != nil {
			c.Leave()
		}
		return nil
	})
}

// TouchEnd behaves like Leave for touch input.
func (d *Dashboard) TouchEnd(kind ChartKind) error {
	return d.Leave(kind)
}

// SetAlertRadius stores a new alert radius and re-filters the alerts.
func (d *Dashboard) SetAlertRadius(radius int) error {
	if err := d.cfg.Prefs.SetAlertRadius(radius); err != nil {
		return err
	}
	return d.update(func(s *Session) error {
		s.radius = radius
		return nil
	})
}

// LocationAction applies a saved-location verb: select navigates to it,
// delete removes it on the server.
func (d *Dashboard) LocationAction(ctx context.Context, key, action string) error {
	s, _, err := d.current()
	if err != nil {
		return err
	}
	page := s.Page()

	var loc *weather.SavedLocation
	for i := range page.SavedLocations {
		if page.SavedLocations[i].Key == key {
			loc = &page.SavedLocations[i]
			break
		}
	}
	if loc == nil {
		return fmt.Errorf("%w: %s", ErrUnknownLocation, key)
	}

	switch action {
	case weather.LocationSelect:
		if loc.Coord != nil {
			return d.Load(ctx, geoloc.NavigateURL(*loc.Coord))
		}
		return d.Load(ctx, "/?"+url.Values{"address": {loc.Label}}.Encode())
	case weather.LocationDelete:
		return d.cacheAction(ctx, s, weather.CacheAction{Action: weather.ActionDelete, LocationKey: key})
	}
	return fmt.Errorf("%w: %s", ErrUnknownAction, action)
}

// OpenRefresh asks to confirm refreshing a location's cached forecast. An
// empty key means the current location.
func (d *Dashboard) OpenRefresh(key string) error {
	return d.update(func(s *Session) error {
		if key == "" {
			key = s.page.LocationKey
		}
		if key == "" {
			return fmt.Errorf("%w: no location key", ErrUnknownLocation)
		}
		s.refreshKey = key
		s.modal = ModalRefresh
		return nil
	})
}

// RefreshLocation posts the refresh confirmed in the refresh dialog.
func (d *Dashboard) RefreshLocation(ctx context.Context) error {
	s, _, err := d.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	key := s.refreshKey
	if key == "" {
		key = s.page.LocationKey
	}
	s.mu.Unlock()
	if key == "" {
		return fmt.Errorf("%w: no location key", ErrUnknownLocation)
	}
	return d.cacheAction(ctx, s, weather.CacheAction{Action: weather.ActionRefresh, LocationKey: key})
}

// cacheAction posts action and reloads on success. Failure leaves the page
// as it is and reports a retryable status.
func (d *Dashboard) cacheAction(ctx context.Context, s *Session, action weather.CacheAction) error {
	s.mu.Lock()
	s.busy = true
	s.status = ""
	s.mu.Unlock()
	d.render(s)

	if err := d.cfg.Backend.CacheAction(ctx, action); err != nil {
		log.Printf("ERROR: cache action %s %s: %v", action.Action, action.LocationKey, err)
		s.mu.Lock()
		s.busy = false
		s.status = StatusActionFailed
		s.mu.Unlock()
		d.render(s)
		return err
	}
	return d.Load(ctx, reloadTarget(s.Page()))
}

// ConfirmSwitch navigates to the detected location offered in place of the
// cached one.
func (d *Dashboard) ConfirmSwitch(ctx context.Context) error {
	s, _, err := d.current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	pending := s.pendingSwitch
	s.mu.Unlock()
	if pending == nil {
		return ErrNoPendingSwitch
	}
	d.cfg.Prefs.SaveLocation(*pending)
	return d.Load(ctx, geoloc.NavigateURL(*pending))
}

// DismissSwitch keeps the cached location.
func (d *Dashboard) DismissSwitch() error {
	return d.update(func(s *Session) error {
		s.pendingSwitch = nil
		if s.modal == ModalSwitch {
			s.modal = ModalNone
		}
		return nil
	})
}

// Reload fetches the current page again.
func (d *Dashboard) Reload(ctx context.Context) error {
	s, _, err := d.current()
	if err != nil {
		return err
	}
	return d.Load(ctx, reloadTarget(s.Page()))
}

// Tick re-renders time-dependent values: the clock, time-ago and alert
// progress.
func (d *Dashboard) Tick() {
	if s, _, err := d.current(); err == nil {
		d.render(s)
	}
}

// Wait blocks until background work of the current page has settled.
func (d *Dashboard) Wait() {
	for {
		d.mu.Lock()
		s, m := d.session, d.machine
		d.mu.Unlock()

		if m != nil {
			m.Wait()
		}
		d.wg.Wait()

		d.mu.Lock()
		same := d.session == s
		d.mu.Unlock()
		if same {
			return
		}
	}
}

// Close stops timers and abandons background work.
func (d *Dashboard) Close() {
	d.mu.Lock()
	s, timers := d.session, d.timers
	d.timers = nil
	d.mu.Unlock()

	for _, cancel := range timers {
		cancel()
	}
	if s != nil {
		s.close()
	}
	d.cancel()
}

func reloadTarget(p weather.Page) string {
	switch {
	case p.URL != "":
		return p.URL
	case p.Coord != nil:
		return geoloc.NavigateURL(*p.Coord)
	}
	return "/"
}
