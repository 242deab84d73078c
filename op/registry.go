package op

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/dataflow/errors"
)

// Factory builds an unbound operator from its recipe arguments.
type Factory func(args map[string]any) (Operator, error)

// Param documents one operator argument.
type Param struct {
	Name    string `json:"name"`
	Default any    `json:"default,omitempty"`
	Doc     string `json:"doc"`
}

// Info describes a registered operator.
type Info struct {
	Kind        Kind    `json:"kind"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`
}

type entry struct {
	factory     Factory
	info        Info
	unavailable string
}

// Registry maps operator names to factories. It is filled by explicit
// registration calls at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds a factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory, info Info) error {
	if name == "" || f == nil {
		return fmt.Errorf("op: register: name and factory are required")
	}
	if !info.Kind.Valid() {
		return fmt.Errorf("op: register %s: invalid kind %q", name, info.Kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("op: %s is already registered", name)
	}
	r.entries[name] = entry{factory: f, info: info}
	return nil
}

// MarkUnavailable keeps name known but makes every lookup fail with reason.
// It is how an operator whose dependencies are missing stays discoverable.
func (r *Registry) MarkUnavailable(name, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[name]
	e.unavailable = reason
	if e.info.Kind == "" {
		e.info.Description = reason
	}
	r.entries[name] = e
}

// Lookup returns the factory for name, or OPERATOR_UNAVAILABLE.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	switch {
	case !ok:
		return nil, errors.OperatorUnavailable(name, "not registered")
	case e.unavailable != "":
		return nil, errors.OperatorUnavailable(name, e.unavailable)
	case e.factory == nil:
		return nil, errors.OperatorUnavailable(name, "no factory")
	}
	return e.factory, nil
}

// Info returns the description of name.
func (r *Registry) Info(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.info, ok
}

// Unavailable returns the reason name cannot be used, or "".
func (r *Registry) Unavailable(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name].unavailable
}

// Names returns sorted names of all known operators.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
