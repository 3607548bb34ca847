// Package factory provides the constructor registry individual adapter
// backends register themselves into, so adapters are looked up by a
// configured type name instead of through reflection or a dynamic
// class lookup.
package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/libreary/libreary"
	"github.com/libreary/libreary/adapter"
)

// Factory constructs an adapter.Adapter of a fixed type for a given id
// and parameter set.
type Factory interface {
	Create(ctx context.Context, id string, params map[string]interface{}) (adapter.Adapter, error)
}

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register associates f with the given adapter type name. Panics if
// name is empty, f is nil, or name is already registered — these are
// programmer errors caught at init time, not runtime conditions.
func Register(name string, f Factory) {
	if name == "" {
		panic("factory: cannot register adapter factory with empty name")
	}
	if f == nil {
		panic("factory: cannot register nil adapter factory for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[name]; ok {
		panic("factory: adapter type already registered: " + name)
	}
	factories[name] = f
}

// Create constructs an adapter of the given type name with the given id
// and parameters. Returns an AdapterCreationFailedError if name is not
// registered or the underlying factory fails.
func Create(ctx context.Context, typeName, id string, params map[string]interface{}) (adapter.Adapter, error) {
	mu.Lock()
	f, ok := factories[typeName]
	mu.Unlock()
	if !ok {
		return nil, libreary.AdapterCreationFailedError{
			AdapterID:   id,
			AdapterType: typeName,
			Reason:      fmt.Sprintf("no adapter factory registered for type %q", typeName),
		}
	}

	a, err := f.Create(ctx, id, params)
	if err != nil {
		return nil, libreary.AdapterCreationFailedError{
			AdapterID:   id,
			AdapterType: typeName,
			Reason:      err.Error(),
		}
	}
	return a, nil
}

// Registered reports whether name has a registered factory. Exposed for
// configuration validation.
func Registered(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := factories[name]
	return ok
}
