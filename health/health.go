// Package health tracks the reachability of the storage backends and
// metadata catalog this archive depends on, and exposes that status
// both programmatically and over a small debug HTTP endpoint.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/libreary/libreary/internal/dcontext"
)

func init() {
	DefaultRegistry = NewRegistry()
	http.HandleFunc("/debug/health", StatusHandler)
}

// A Registry is a collection of checks. Most callers use the package
// DefaultRegistry; tests may want an isolated one.
type Registry struct {
	mu               sync.RWMutex
	registeredChecks map[string]Checker
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{registeredChecks: make(map[string]Checker)}
}

// DefaultRegistry is the registry used by the package-level Register and
// StatusHandler functions.
var DefaultRegistry *Registry

// Checker is the interface for a health check.
type Checker interface {
	// Check returns nil if the checked dependency is reachable.
	Check(context.Context) error
}

// CheckFunc lets a plain function satisfy Checker.
type CheckFunc func(context.Context) error

// Check implements the Checker interface.
func (cf CheckFunc) Check(ctx context.Context) error {
	return cf(ctx)
}

// Updater is a health check whose status is set explicitly rather than
// recomputed on every Check call, for checks too expensive to run
// synchronously on every status request.
type Updater interface {
	Checker

	// Update sets the current status of the check.
	Update(status error)
}

type updater struct {
	mu     sync.Mutex
	status error
}

func (u *updater) Check(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

func (u *updater) Update(status error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
}

// NewStatusUpdater returns a new Updater with no initial status.
func NewStatusUpdater() Updater {
	return &updater{}
}

// CheckStatus returns a map of check name to error string for every
// currently failing check in registry.
func (registry *Registry) CheckStatus(ctx context.Context) map[string]string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	statusKeys := make(map[string]string)
	for k, v := range registry.registeredChecks {
		if err := v.Check(ctx); err != nil {
			statusKeys[k] = err.Error()
		}
	}
	return statusKeys
}

// CheckStatus reports the status of every check in the default registry.
func CheckStatus(ctx context.Context) map[string]string {
	return DefaultRegistry.CheckStatus(ctx)
}

// Register associates check with name in registry. Panics if name is
// already registered, since that indicates two components racing to
// claim the same check name.
func (registry *Registry) Register(name string, check Checker) {
	if registry == nil {
		registry = DefaultRegistry
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, ok := registry.registeredChecks[name]; ok {
		panic("health: check already registered: " + name)
	}
	registry.registeredChecks[name] = check
}

// Register associates check with name in the default registry.
func Register(name string, check Checker) {
	DefaultRegistry.Register(name, check)
}

// StatusHandler writes a JSON object of failing checks, with a 503
// status if any check is failing and 200 otherwise.
func StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	checks := CheckStatus(r.Context())
	status := http.StatusOK
	if len(checks) != 0 {
		status = http.StatusServiceUnavailable
	}
	statusResponse(w, r, status, checks)
}

func statusResponse(w http.ResponseWriter, r *http.Request, status int, checks map[string]string) {
	p, err := json.Marshal(checks)
	if err != nil {
		dcontext.GetLogger(r.Context()).Errorf("error serializing health status: %v", err)
		status = http.StatusInternalServerError
		p = []byte(`{"server_error":"could not serialize health status"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprint(len(p)))
	w.WriteHeader(status)
	if _, err := w.Write(p); err != nil {
		dcontext.GetLogger(r.Context()).Errorf("error writing health status response: %v", err)
	}
}
