package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a fresh parser instance. Each Reader gets its own
// instance, so factories must not share mutable state.
type Factory func() Parser

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a factory available under contentType. Later
// registrations for the same type replace earlier ones. The built-in
// formats register themselves from their init functions.
func Register(contentType string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalizeType(contentType)] = f
}

// New constructs a parser for contentType. It returns an error wrapping
// ErrNoParser when no factory is registered, which the demux layer
// surfaces as an allocation failure.
func New(contentType string) (Parser, error) {
	registryMu.RLock()
	f, ok := registry[normalizeType(contentType)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoParser, contentType)
	}
	return f(), nil
}

// Registered returns the sorted list of registered content types.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for ct := range registry {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

func normalizeType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(contentType))
}
