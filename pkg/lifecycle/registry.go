// Package lifecycle owns the process-wide profile catalog and the per-profile
// tool-server lifecycle: projecting the enabled operations of a profile into
// a running tool server and tracking its liveness.
package lifecycle

import (
	"sort"
	"sync"

	"github.com/toolbridge/toolbridge/pkg/errs"
	"github.com/toolbridge/toolbridge/pkg/models"
)

// Registry is the single synchronized access point for profile state. All
// mutation goes through Put or WithLock; status reads may be stale by design.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*models.APIProfile
	logs     map[string]*models.LogRing
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]*models.APIProfile),
		logs:     make(map[string]*models.LogRing),
	}
}

// Get returns the profile with the given name.
func (r *Registry) Get(name string) (*models.APIProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Put inserts or replaces a profile.
func (r *Registry) Put(p *models.APIProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
}

// Remove deletes a profile and its log ring. Removing an unknown name is a
// no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, name)
	delete(r.logs, name)
}

// List returns all profiles sorted by name.
func (r *Registry) List() []*models.APIProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.APIProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// WithLock runs mutate with the registry lock held, serializing concurrent
// edits to the same profile's enabled map.
func (r *Registry) WithLock(name string, mutate func(*models.APIProfile) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[name]
	if !ok {
		return errs.New(errs.TypeStore, "profile not found", name)
	}
	return mutate(p)
}

// Logs returns the profile's log ring, creating it on first use. The ring is
// runtime-only state and is never part of the persisted profile record.
func (r *Registry) Logs(name string) *models.LogRing {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring, ok := r.logs[name]
	if !ok {
		ring = models.NewLogRing(models.DefaultLogCapacity)
		r.logs[name] = ring
	}
	return ring
}
