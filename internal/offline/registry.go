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

	"github.com/google/uuid"
)

var ErrMissingVersion = errors.New("worker script url has no v parameter")

// Registration describes the active worker.
type Registration struct {
	ID           string    `json:"id"`
	ScriptURL    string    `json:"script_url"`
	Version      string    `json:"version"`
	State        string    `json:"state"`
	RegisteredAt time.Time `json:"registered_at"`
	Caches       []string  `json:"caches,omitempty"`
}

// Registry keeps at most one active worker and replaces it when a script URL
// with a new ?v= version is registered.
type Registry struct {
	base    Config
	storage Storage
	fetcher Fetcher

	// serializes registrations; requests keep flowing while one installs
	installMu sync.Mutex

	mu     sync.RWMutex
	active *Worker
	reg    Registration
}

// NewRegistry creates a Registry. base supplies everything but the version.
func NewRegistry(base Config, storage Storage, fetcher Fetcher) *Registry {
	return &Registry{base: base, storage: storage, fetcher: fetcher}
}

// Register installs and activates the worker named by scriptURL unless that
// version is already active. The previous worker keeps serving when the new
// one fails to install. The boolean reports whether a new worker took over.
func (r *Registry) Register(ctx context.Context, scriptURL string) (Registration, bool, error) {
	u, err := url.Parse(scriptURL)
	if err != nil {
		return Registration{}, false, fmt.Errorf("parse script url: %w", err)
	}
	version := u.Query().Get("v")
	if version == "" {
		return Registration{}, false, ErrMissingVersion
	}

	r.installMu.Lock()
	defer r.installMu.Unlock()

	r.mu.RLock()
	current, reg := r.active, r.reg
	r.mu.RUnlock()

	if current != nil && current.Version() == version {
		return reg, false, nil
	}

	cfg := r.base
	cfg.Version = version
	w, err := NewWorker(cfg, r.storage, r.fetcher)
	if err != nil {
		return Registration{}, false, err
	}
	if err := w.Install(ctx); err != nil {
		log.Printf("ERROR: worker %s install failed: %v", version, err)
		return reg, false, err
	}
	// The old worker stops writing before activation deletes its partitions.
	if current != nil {
		current.Retire()
	}
	if err := w.Activate(ctx); err != nil {
		log.Printf("ERROR: worker %s activation failed: %v", version, err)
		if current != nil {
			current.reinstate()
		}
		return reg, false, err
	}

	reg = Registration{
		ID:           uuid.NewString(),
		ScriptURL:    scriptURL,
		Version:      version,
		RegisteredAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.active, r.reg = w, reg
	r.mu.Unlock()

	log.Printf("INFO: worker %s registered as %s", version, reg.ID)
	return reg, true, nil
}

// Active is the controlling worker, nil before the first registration.
func (r *Registry) Active() *Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Status reports the registration along with the live cache names.
func (r *Registry) Status(ctx context.Context) (Registration, error) {
	r.mu.RLock()
	reg, w := r.reg, r.active
	r.mu.RUnlock()

	if w == nil {
		return Registration{State: "unregistered"}, nil
	}
	reg.State = w.State().String()
	names, err := r.storage.Keys(ctx)
	if err != nil {
		return reg, err
	}
	reg.Caches = names
	return reg, nil
}

// Handle routes req through the active worker, or straight to the network
// when there is none or it declines the request.
func (r *Registry) Handle(ctx context.Context, req *http.Request) (*Response, error) {
	if w := r.Active(); w != nil {
		resp, handled, err := w.Handle(ctx, req)
		if handled {
			return resp, err
		}
	}
	return r.fetcher.Fetch(ctx, req)
}
