package plugin

import (
	"maps"
	"slices"
	"sync"
)

// Registry maps namespaces to plugins. Registering a namespace again
// replaces the earlier plugin. The mutex only protects the map itself:
// mutating the registry while pipelines are running changes which handlers
// later steps dispatch to.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Register stores p under its namespace, replacing any earlier registration.
// The effect map is copied, so later changes by the caller have no effect.
func (r *Registry) Register(p Plugin) error {
	if err := p.Validate(); err != nil {
		return err
	}
	stored := Plugin{Namespace: p.Namespace, Effects: maps.Clone(p.Effects)}
	if stored.Effects == nil {
		stored.Effects = make(map[string]EffectHandler)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Namespace] = stored
	return nil
}

// Unregister removes the plugin for namespace and reports whether one was
// registered.
func (r *Registry) Unregister(namespace string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.plugins[namespace]
	delete(r.plugins, namespace)
	return ok
}

// Clear removes every plugin.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.plugins)
}

// Get returns the plugin registered for namespace.
func (r *Registry) Get(namespace string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[namespace]
	return p, ok
}

// Namespaces returns the registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.plugins))
}

// Lookup resolves a qualified effect name such as "entity.create" to its
// handler. It returns *UnknownNamespaceError or *UnknownEffectError when the
// name cannot be resolved.
func (r *Registry) Lookup(effect string) (EffectHandler, error) {
	namespace, name := SplitEffect(effect)

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[namespace]
	if !ok {
		return nil, &UnknownNamespaceError{Namespace: namespace}
	}
	h, ok := p.Effects[name]
	if !ok {
		return nil, &UnknownEffectError{Effect: namespace + "." + name}
	}
	return h, nil
}
