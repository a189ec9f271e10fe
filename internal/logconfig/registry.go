package logconfig

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Module is a namespace of attributes reachable through ext:// tokens.
type Module map[string]any

// Func is a callable that tokens with an argument list can invoke directly.
// Other Go func values are invoked through reflection.
type Func func(args ...any) (any, error)

// Registry maps dotted module paths to their attributes. It replaces dynamic
// import: only registered modules can be referenced.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register stores attrs under name guarding against duplicates.
func (r *Registry) Register(name string, attrs Module) error {
	if !validDotted(name) {
		return fmt.Errorf("logconfig: invalid module name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modules == nil {
		r.modules = make(map[string]Module)
	}
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("logconfig: module %q already registered", name)
	}
	r.modules[name] = cloneModule(attrs)
	return nil
}

// Set stores attrs under name, replacing any previous registration.
func (r *Registry) Set(name string, attrs Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.modules == nil {
		r.modules = make(map[string]Module)
	}
	r.modules[name] = cloneModule(attrs)
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names returns registered module names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return NewRegistry()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &Registry{modules: make(map[string]Module, len(r.modules))}
	for name, m := range r.modules {
		clone.modules[name] = m
	}
	return clone
}

// longestModule splits a dotted path into the longest registered module
// prefix and the remaining attribute chain.
func (r *Registry) longestModule(path string) (string, Module, []string, bool) {
	parts := strings.Split(path, ".")
	for i := len(parts); i > 0; i-- {
		name := strings.Join(parts[:i], ".")
		if m, ok := r.Lookup(name); ok {
			return name, m, parts[i:], true
		}
	}
	return "", nil, nil, false
}

func cloneModule(attrs Module) Module {
	out := make(Module, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
