// Package offline is a request-interception layer that keeps the dashboard
// usable without a network: versioned shell and runtime caches, a
// network-first navigation strategy with a timeout, and stale-while-revalidate
// for everything else.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultNavigationTimeout bounds how long a navigation waits for the network
// before falling back to cache.
const DefaultNavigationTimeout = 3000 * time.Millisecond

var (
	ErrInvalidConfig = errors.New("invalid worker configuration")
	ErrInstallFailed = errors.New("worker install failed")
	ErrNotActive     = errors.New("worker is not active")
)

// State of the worker lifecycle.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

// Config describes one worker version.
type Config struct {
	Prefix  string `validate:"required"`
	Version string `validate:"required"`
	// Origin resolves precache paths and the offline page.
	Origin *url.URL `validate:"required"`
	// Precache lists the shell assets, as site-relative paths.
	Precache []string
	// OfflinePage is served when a navigation has neither network nor cache.
	OfflinePage       string
	NavigationTimeout time.Duration
}

// Strategy produces a response for an intercepted request.
type Strategy func(ctx context.Context, req *http.Request) (*Response, error)

// Rule pairs a request predicate with a strategy. A nil Strategy leaves the
// request to the network untouched.
type Rule struct {
	Name     string
	Match    func(*http.Request) bool
	Strategy Strategy
}

// Worker applies its rules to requests once installed and activated.
type Worker struct {
	cfg     Config
	storage Storage
	fetcher Fetcher
	rules   []Rule

	mu    sync.RWMutex
	state State

	// held for reading by every cache write, for writing by Retire
	writeMu sync.RWMutex

	// background revalidation and late navigation stashes
	bg sync.WaitGroup
}

func NewWorker(cfg Config, storage Storage, fetcher Fetcher) (*Worker, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if storage == nil || fetcher == nil {
		return nil, fmt.Errorf("%w: storage and fetcher are required", ErrInvalidConfig)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}

	w := &Worker{cfg: cfg, storage: storage, fetcher: fetcher}
	w.rules = []Rule{
		{Name: "non-get", Match: func(r *http.Request) bool { return r.Method != http.MethodGet }},
		{Name: "navigation", Match: IsNavigation, Strategy: w.NetworkFirst},
		{Name: "assets", Match: func(*http.Request) bool { return true }, Strategy: w.StaleWhileRevalidate},
	}
	return w, nil
}

func (w *Worker) Version() string {
	return w.cfg.Version
}

// ShellCache is the name of this version's precache partition.
func (w *Worker) ShellCache() string {
	return fmt.Sprintf("%s-shell-%s", w.cfg.Prefix, w.cfg.Version)
}

// RuntimeCache is the name of this version's runtime partition.
func (w *Worker) RuntimeCache() string {
	return fmt.Sprintf("%s-runtime-%s", w.cfg.Prefix, w.cfg.Version)
}

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Rules returns the interception pipeline in evaluation order.
func (w *Worker) Rules() []Rule {
	return append([]Rule(nil), w.rules...)
}

// Install precaches every shell asset. Either all assets are stored or
// nothing is and the worker becomes redundant.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)

	type asset struct {
		u    *url.URL
		resp *Response
	}
	assets := make([]asset, 0, len(w.cfg.Precache))
	for _, p := range w.cfg.Precache {
		u, err := w.resolve(p)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %v", ErrInstallFailed, err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %v", ErrInstallFailed, err)
		}
		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %s: %v", ErrInstallFailed, p, err)
		}
		if !resp.OK() {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: %s: status %d", ErrInstallFailed, p, resp.StatusCode)
		}
		assets = append(assets, asset{u: u, resp: resp})
	}

	shell, err := w.storage.Open(ctx, w.ShellCache())
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	for _, a := range assets {
		if err := shell.Put(ctx, a.u, a.resp); err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("%w: store %s: %v", ErrInstallFailed, a.u, err)
		}
	}

	log.Printf("INFO: worker %s installed %d shell assets", w.cfg.Version, len(assets))
	w.setState(StateInstalled)
	return nil
}

// Activate deletes every cache partition this version does not own and
// starts intercepting requests.
func (w *Worker) Activate(ctx context.Context) error {
	if s := w.State(); s != StateInstalled {
		return fmt.Errorf("activate from state %s: %w", s, ErrNotActive)
	}
	w.setState(StateActivating)

	names, err := w.storage.Keys(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("list caches: %w", err)
	}
	keep := map[string]bool{w.ShellCache(): true, w.RuntimeCache(): true}
	for _, name := range names {
		if keep[name] {
			continue
		}
		if _, err := w.storage.Delete(ctx, name); err != nil {
			w.setState(StateInstalled)
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		log.Printf("INFO: worker %s deleted stale cache %s", w.cfg.Version, name)
	}

	w.setState(StateActivated)
	return nil
}

// Retire marks the worker as replaced. In-flight background fetches still
// finish but no longer write to the caches. Retire returns once any write
// already under way has completed.
func (w *Worker) Retire() {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.setState(StateRedundant)
}

// reinstate undoes Retire when the replacement failed to activate.
func (w *Worker) reinstate() {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.setState(StateActivated)
}

// Handle runs req through the pipeline. The boolean is false when the worker
// does not intercept the request and the caller should go to the network.
func (w *Worker) Handle(ctx context.Context, req *http.Request) (*Response, bool, error) {
	if w.State() != StateActivated {
		return nil, false, nil
	}
	for _, rule := range w.rules {
		if !rule.Match(req) {
			continue
		}
		if rule.Strategy == nil {
			return nil, false, nil
		}
		resp, err := rule.Strategy(ctx, req)
		return resp, true, err
	}
	return nil, false, nil
}

// Wait blocks until background fetches have finished.
func (w *Worker) Wait() {
	w.bg.Wait()
}

// NetworkFirst races the network against the navigation timeout. A network
// response that arrives after the timeout is still stashed.
func (w *Worker) NetworkFirst(ctx context.Context, req *http.Request) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)

	bgCtx := context.WithoutCancel(ctx)
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		resp, err := w.fetcher.Fetch(bgCtx, req.Clone(bgCtx))
		if err != nil {
			done <- result{err: err}
			return
		}
		// The copy is taken before the caller can read the body.
		stashed, cerr := resp.Clone()
		done <- result{resp: resp}
		if cerr == nil {
			w.stash(bgCtx, w.RuntimeCache(), req.URL, stashed)
		}
	}()

	timer := time.NewTimer(w.cfg.NavigationTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err == nil {
			return r.resp, nil
		}
		log.Printf("DEBUG: navigation %s failed, using cache: %v", req.URL, r.err)
	case <-timer.C:
		log.Printf("DEBUG: navigation %s exceeded %s, using cache", req.URL, w.cfg.NavigationTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return w.navigationFallback(ctx, req.URL)
}

func (w *Worker) navigationFallback(ctx context.Context, u *url.URL) (*Response, error) {
	if resp, ok := w.match(ctx, u, MatchOptions{}); ok {
		return resp, nil
	}
	if u.Path == "/" || u.Path == "" {
		if resp, ok := w.match(ctx, u, MatchOptions{IgnoreSearch: true}); ok {
			return resp, nil
		}
	}
	if w.cfg.OfflinePage != "" {
		if offline, err := w.resolve(w.cfg.OfflinePage); err == nil {
			if resp, ok := w.match(ctx, offline, MatchOptions{}); ok {
				return resp, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoResponse, u)
}

// StaleWhileRevalidate answers from cache when it can and refreshes the cache
// from the network either way.
func (w *Worker) StaleWhileRevalidate(ctx context.Context, req *http.Request) (*Response, error) {
	revalidate := func(ctx context.Context) (*Response, error) {
		resp, err := w.fetcher.Fetch(ctx, req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		w.stash(ctx, w.RuntimeCache(), req.URL, resp)
		return resp, nil
	}

	if cached, ok := w.match(ctx, req.URL, MatchOptions{}); ok {
		bgCtx := context.WithoutCancel(ctx)
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			if _, err := revalidate(bgCtx); err != nil {
				log.Printf("DEBUG: revalidate %s failed: %v", req.URL, err)
			}
		}()
		return cached, nil
	}

	resp, err := revalidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoResponse, req.URL, err)
	}
	return resp, nil
}

// match looks in the runtime cache first, then the shell.
func (w *Worker) match(ctx context.Context, u *url.URL, opts MatchOptions) (*Response, bool) {
	for _, name := range []string{w.RuntimeCache(), w.ShellCache()} {
		ok, err := w.storage.Has(ctx, name)
		if err != nil || !ok {
			continue
		}
		c, err := w.storage.Open(ctx, name)
		if err != nil {
			continue
		}
		resp, err := c.Match(ctx, u, opts)
		if err == nil {
			return resp, true
		}
		if !errors.Is(err, ErrNotCached) {
			log.Printf("ERROR: cache %s lookup %s: %v", name, u, err)
		}
	}
	return nil, false
}

// stash stores a copy of resp when it is cacheable. Failures are logged and
// never reach the caller. A retired worker stores nothing, so it cannot bring
// back a partition the next version deleted.
func (w *Worker) stash(ctx context.Context, name string, u *url.URL, resp *Response) {
	if !resp.Cacheable() {
		return
	}
	c, err := resp.Clone()
	if err != nil {
		return
	}

	w.writeMu.RLock()
	defer w.writeMu.RUnlock()
	if w.State() == StateRedundant {
		log.Printf("DEBUG: worker %s retired, dropping %s", w.cfg.Version, u)
		return
	}
	cache, err := w.storage.Open(ctx, name)
	if err != nil {
		log.Printf("ERROR: open cache %s: %v", name, err)
		return
	}
	if err := cache.Put(ctx, u, c); err != nil {
		log.Printf("ERROR: stash %s in %s: %v", u, name, err)
	}
}

func (w *Worker) resolve(p string) (*url.URL, error) {
	ref, err := url.Parse(p)
	if err != nil {
		return nil, err
	}
	return w.cfg.Origin.ResolveReference(ref), nil
}
