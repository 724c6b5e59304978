package adaptors

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an adaptor from its configuration.
type Constructor func(config Config) (Adaptor, error)

// registry maps adaptor type identifiers to constructors. Variants
// register themselves from init; the set is fixed at process start, so
// unknown identifiers can be rejected when configuration is loaded
// rather than when a request arrives.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a constructor for the given adaptor type identifier.
// Registering the same identifier twice panics: it is a programming
// error, detectable only at process start.
func Register(typeID string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if typeID == "" {
		panic("adaptors: Register called with empty type identifier")
	}
	if ctor == nil {
		panic(fmt.Sprintf("adaptors: Register called with nil constructor for %q", typeID))
	}
	if _, dup := registry[typeID]; dup {
		panic(fmt.Sprintf("adaptors: Register called twice for %q", typeID))
	}
	registry[typeID] = ctor
}

// New resolves the adaptor type identifier in config.Type and invokes the
// registered constructor. Unknown identifiers yield a ConfigError.
func New(config Config) (Adaptor, error) {
	registryMu.RLock()
	ctor, ok := registry[config.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, &ConfigError{
			Endpoint: config.Slug,
			Field:    "type",
			Message:  fmt.Sprintf("unknown adaptor type %q (registered: %v)", config.Type, Registered()),
		}
	}

	adaptor, err := ctor(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create adaptor %q: %w", config.Slug, err)
	}
	return adaptor, nil
}

// Registered returns the sorted list of registered type identifiers.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsRegistered reports whether the given type identifier has a constructor.
func IsRegistered(typeID string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()

	_, ok := registry[typeID]
	return ok
}
