// Package geoloc acquires the user's position through a two-step attempt
// ladder, handling permission checks, per-attempt timeouts and superseded
// requests.
package geoloc

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// State of the acquisition flow.
type State int

const (
	StateIdle State = iota
	StatePermissionCheck
	StateQuickAttempt
	StateFreshAttempt
	StateSuccess
	StatePermissionDenied
	StateUnavailable
	StateTimedOut
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StatePermissionCheck:  "permission-check",
	StateQuickAttempt:     "quick-attempt",
	StateFreshAttempt:     "fresh-attempt",
	StateSuccess:          "success",
	StatePermissionDenied: "permission-denied",
	StateUnavailable:      "unavailable",
	StateTimedOut:         "timed-out",
	StateFailed:           "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether the flow has finished.
func (s State) Terminal() bool {
	return s >= StateSuccess
}

// Options tunes a single position attempt.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// DefaultLadder tries a fast, cache-friendly fix first and falls back to a
// fresh high-accuracy one.
var DefaultLadder = []Options{
	{HighAccuracy: false, Timeout: 8 * time.Second, MaximumAge: 10 * time.Minute},
	{HighAccuracy: true, Timeout: 20 * time.Second, MaximumAge: 0},
}

type Position struct {
	Coord     weather.Coordinate
	Accuracy  float64
	Timestamp time.Time
}

// Geolocator is the platform's position capability. Implementations should
// honour ctx but are not required to.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// Permissions is the optional permission-query capability.
type Permissions interface {
	Query(ctx context.Context) (PermissionState, error)
}

// Update is published on every visible state change.
type Update struct {
	RequestID uint64
	State     State
	Attempt   int
	Message   string
	// Prompt asks the user to start detection explicitly.
	Prompt bool
	// CanRetry enables the "try again" action.
	CanRetry bool
	Coord    *weather.Coordinate
}

type Listener func(Update)

type Config struct {
	// Locator nil means the device has no geolocation capability.
	Locator     Geolocator
	Permissions Permissions
	Ladder      []Options
	Generation  *Generation
	Listener    Listener
	// Navigate performs the default success continuation. Like Listener it
	// runs while the request is still the latest one, so it must not start or
	// cancel a request on the same Generation itself.
	Navigate func(target string)
}

// RequestOptions controls one request.
type RequestOptions struct {
	// Silent requests make a single quick attempt and publish nothing.
	Silent bool
	// OnSuccess replaces the default navigation continuation and is bound by
	// the same rules as Config.Navigate.
	OnSuccess func(weather.Coordinate)
}

type Machine struct {
	locator     Geolocator
	permissions Permissions
	ladder      []Options
	gen         *Generation
	listener    Listener
	navigate    func(string)

	mu    sync.Mutex
	state State
	wg    sync.WaitGroup
}

func New(cfg Config) *Machine {
	m := &Machine{
		locator:     cfg.Locator,
		permissions: cfg.Permissions,
		ladder:      cfg.Ladder,
		gen:         cfg.Generation,
		listener:    cfg.Listener,
		navigate:    cfg.Navigate,
	}
	if len(m.ladder) == 0 {
		m.ladder = DefaultLadder
	}
	if m.gen == nil {
		m.gen = NewGeneration()
	}
	return m
}

// NavigateURL is the page URL for a coordinate, rounded to 4 decimals.
func NavigateURL(c weather.Coordinate) string {
	return "/?" + c.Query().Encode()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Supported reports whether the device can produce a position at all.
func (m *Machine) Supported() bool {
	return m.locator != nil
}

// Start checks capability and permission and either begins a request, reports
// a terminal state, or waits for the user at an idle prompt.
func (m *Machine) Start(ctx context.Context) {
	if m.locator == nil {
		t := m.gen.Next(ctx)
		t.Do(func() {
			m.publish(Update{RequestID: t.ID, State: StateUnavailable, Message: Message(ErrUnsupported)})
		})
		return
	}

	if m.permissions == nil {
		t := m.gen.Next(ctx)
		t.Do(func() { m.publish(Update{RequestID: t.ID, State: StateIdle, Prompt: true}) })
		return
	}

	t := m.gen.Next(ctx)
	t.Do(func() { m.publish(Update{RequestID: t.ID, State: StatePermissionCheck}) })

	perm, err := m.permissions.Query(t.Context())
	if err != nil {
		log.Printf("DEBUG: geolocation permission query failed: %v", err)
		perm = PermissionPrompt
	}

	switch perm {
	case PermissionGranted:
		if t.Current() {
			m.Request(ctx, RequestOptions{})
		}
	case PermissionDenied:
		t.Do(func() {
			m.publish(Update{RequestID: t.ID, State: StatePermissionDenied, Message: MsgDenied, CanRetry: true})
		})
	default:
		t.Do(func() { m.publish(Update{RequestID: t.ID, State: StateIdle, Prompt: true}) })
	}
}

// Request starts a new acquisition, superseding any request in flight, and
// returns its id. The attempts run asynchronously.
func (m *Machine) Request(ctx context.Context, opts RequestOptions) uint64 {
	t := m.gen.Next(ctx)

	if m.locator == nil {
		if !opts.Silent {
			t.Do(func() {
				m.publish(Update{RequestID: t.ID, State: StateUnavailable, Message: Message(ErrUnsupported)})
			})
		}
		return t.ID
	}

	ladder := m.ladder
	if opts.Silent {
		ladder = ladder[:1]
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(t, ladder, opts)
	}()
	return t.ID
}

// Cancel invalidates any request in flight.
func (m *Machine) Cancel() {
	m.gen.Invalidate()
}

// Wait blocks until every started request has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func (m *Machine) run(t *Ticket, ladder []Options, opts RequestOptions) {
	for i, o := range ladder {
		if !opts.Silent {
			state := StateQuickAttempt
			if i > 0 {
				state = StateFreshAttempt
			}
			t.Do(func() { m.publish(Update{RequestID: t.ID, State: state, Attempt: i}) })
		}

		pos, err := m.attempt(t.Context(), o)
		if t.Context().Err() != nil {
			// Superseded or shut down while waiting.
			return
		}

		if err == nil {
			coord := pos.Coord
			t.Do(func() {
				if !opts.Silent {
					m.publish(Update{RequestID: t.ID, State: StateSuccess, Attempt: i, Coord: &coord})
				}
				m.succeed(coord, opts)
			})
			return
		}

		log.Printf("DEBUG: geolocation attempt %d failed: %v", i, err)
		if retryable(err) && i < len(ladder)-1 {
			continue
		}

		if !opts.Silent {
			t.Do(func() {
				m.publish(Update{
					RequestID: t.ID,
					State:     failureState(err),
					Attempt:   i,
					Message:   Message(err),
					CanRetry:  true,
				})
			})
		}
		return
	}
}

func (m *Machine) attempt(ctx context.Context, o Options) (Position, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	type result struct {
		pos Position
		err error
	}
	done := make(chan result, 1)
	go func() {
		pos, err := m.locator.CurrentPosition(ctx, o)
		done <- result{pos, err}
	}()

	select {
	case r := <-done:
		if r.err == nil && !r.pos.Coord.Valid() {
			r.err = &PositionError{Code: CodePositionUnavailable, Message: "position has no valid coordinates"}
		}
		return r.pos, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Position{}, &PositionError{Code: CodeTimeout, Message: "position request timed out"}
		}
		return Position{}, ctx.Err()
	}
}

// succeed must be called from inside Ticket.Do.
func (m *Machine) succeed(c weather.Coordinate, opts RequestOptions) {
	if opts.OnSuccess != nil {
		opts.OnSuccess(c)
		return
	}
	if m.navigate != nil {
		m.navigate(NavigateURL(c))
	}
}

// publish must be called from inside Ticket.Do.
func (m *Machine) publish(u Update) {
	m.mu.Lock()
	m.state = u.State
	m.mu.Unlock()

	if m.listener != nil {
		m.listener(u)
	}
}
