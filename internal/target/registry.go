// Package target holds the fixed registry of rule targets and the parameter
// schema each one requires.
package target

import (
	"fmt"
	"sort"
	"sync"
)

// Target is an executable action a rule can point at.
type Target struct {
	Name     string
	Required []string // parameter names that must be declared
}

// Registry maps target names to their schema.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Target
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]Target)}
}

// Builtin returns a registry holding the targets shipped with the service.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(Target{
		Name:     "s_security.cipher_ops.encrypt_data",
		Required: []string{"source_bucket_id", "source_key", "sink_bucket_id", "sink_key", "security_level"},
	})
	r.Register(Target{
		Name:     "s_ml.ml_clustering.skmean",
		Required: []string{"source_bucket_id", "source_key", "k"},
	})
	r.Register(Target{
		Name:     "mictlanx.put",
		Required: []string{"bucket_id", "key", "source_path", "replication_factor", "num_chunks"},
	})
	r.Register(Target{
		Name:     "mictlanx.get",
		Required: []string{"bucket_id", "key", "sink_path"},
	})
	return r
}

// Register adds a target. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.targets[t.Name]; exists {
		panic(fmt.Sprintf("target registry: duplicate target %q", t.Name))
	}
	r.targets[t.Name] = t
}

// Get returns the target registered under name.
func (r *Registry) Get(name string) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[name]
	return t, ok
}

// Names returns all registered target names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.targets))
	for k := range r.targets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
