package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider from config.
type Factory func(cfg Config) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

func init() {
	for _, d := range []Dialect{OpenAIDialect{}, OllamaDialect{}} {
		d := d
		Register(d.Name(), func(cfg Config) (Provider, error) {
			return NewWithDialect(d, cfg)
		})
	}
}

// Register adds a provider factory under name, replacing any earlier one.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// New builds the provider registered under cfg.Dialect.
func New(cfg Config) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Dialect]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown dialect %q", cfg.Dialect)
	}
	return f(cfg)
}

// Dialects returns the registered names, sorted.
func Dialects() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
