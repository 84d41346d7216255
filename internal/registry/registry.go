// Package registry is the schema catalog and version manager. It keeps
// every declared schema by name with a strictly increasing sequence of
// versions, decides which versions to migrate and in what order, and
// guarantees at most one migration per (name, version) for the process
// lifetime.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// MigrateFn applies the DDL (and any data transformation) that moves a
// table from one applied version to the next. from is nil when nothing
// has been applied yet.
type MigrateFn func(from, to *types.Schema) error

// OnAddFn persists a newly declared version (a row in schema_catalog
// and one in schema_versions).
type OnAddFn func(added *types.Schema) error

// OnApplyFn persists an applied version; oldVersion is -1 on the first
// application for a name.
type OnApplyFn func(applied *types.Schema, oldVersion int) error

// entry is one declared version of a schema.
type entry struct {
	schema   *types.Schema
	applied  bool
	inactive bool
	inUse    int32
}

// schemaItem holds every version declared for one name. item.mu
// serializes migrations per name; the active pointer and lastApplied
// are atomics so the already-migrated fast path takes no lock.
type schemaItem struct {
	mu       sync.Mutex
	versions map[int]*entry
	order    []int // ascending version numbers

	newest      atomic.Int32
	lastApplied atomic.Int32
	active      atomic.Pointer[types.Schema]
}

// Registry maps schema names to their version histories.
type Registry struct {
	mu      sync.RWMutex
	items   map[string]*schemaItem
	onAdd   OnAddFn
	onApply OnApplyFn
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{items: make(map[string]*schemaItem)}
}

// SetOnAdd installs the persistence hook for Add.
func (r *Registry) SetOnAdd(fn OnAddFn) { r.onAdd = fn }

// SetOnApply installs the persistence hook for applied versions.
func (r *Registry) SetOnApply(fn OnApplyFn) { r.onApply = fn }

// Add inserts a new version for a schema name. Versions never replace:
// an existing (name, version) is ErrDuplicateVersion, and a version not
// exceeding the newest declared one is ErrVersionNotIncreasing.
func (r *Registry) Add(s *types.Schema) error {
	if s == nil || s.Name == "" {
		return types.ErrMalformedSchema
	}

	r.mu.Lock()
	item, ok := r.items[s.Name]
	if !ok {
		item = &schemaItem{versions: make(map[int]*entry)}
		item.lastApplied.Store(-1)
		r.items[s.Name] = item
	}
	r.mu.Unlock()

	item.mu.Lock()
	defer item.mu.Unlock()

	if _, exists := item.versions[s.Version]; exists {
		return types.ErrDuplicateVersion
	}
	if len(item.order) > 0 && s.Version <= int(item.newest.Load()) {
		return types.ErrVersionNotIncreasing
	}

	item.versions[s.Version] = &entry{schema: s}
	item.order = append(item.order, s.Version)
	item.newest.Store(int32(s.Version))

	if r.onAdd != nil {
		if err := r.onAdd(s); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether any version is declared for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[name]
	return ok
}

// Get returns the latest applied schema for name, migrating forward as
// needed. Unknown names return ErrUnknownSchema. migrate runs at most
// once per (name, version) across the process, including under
// concurrent callers; a failed step leaves that step's state unchanged
// while earlier successful steps remain applied.
func (r *Registry) Get(name string, migrate MigrateFn) (*types.Schema, error) {
	r.mu.RLock()
	item, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.ErrUnknownSchema
	}

	// Fast path: newest already applied, active pointer published.
	// Lock-free so already-migrated readers never contend.
	if s := item.active.Load(); s != nil &&
		item.lastApplied.Load() == item.newest.Load() &&
		int(item.lastApplied.Load()) == s.Version {
		return s, nil
	}

	item.mu.Lock()
	defer item.mu.Unlock()

	last := int(item.lastApplied.Load())

	// Nothing applied yet: apply the newest declared version directly.
	// Older declared versions are only recorded; they become inactive
	// without ever being applied.
	if last < 0 {
		newest := int(item.newest.Load())
		tgt := item.versions[newest]
		if err := migrate(nil, tgt.schema); err != nil {
			return nil, err
		}
		tgt.applied = true
		tgt.schema.Applied = true
		for v, e := range item.versions {
			if v < newest {
				e.inactive = true
			}
		}
		item.lastApplied.Store(int32(newest))
		item.active.Store(tgt.schema)
		if r.onApply != nil {
			if err := r.onApply(tgt.schema, -1); err != nil {
				return tgt.schema, err
			}
		}
		return tgt.schema, nil
	}

	// Advance through declared versions above lastApplied, ascending.
	for _, v := range item.order {
		if v <= last {
			continue
		}
		tgt := item.versions[v]
		if tgt.applied {
			last = v
			item.lastApplied.Store(int32(v))
			continue
		}
		prev := item.versions[last]
		if err := migrate(prev.schema, tgt.schema); err != nil {
			return nil, err
		}
		prev.inactive = true
		tgt.applied = true
		tgt.schema.Applied = true
		item.lastApplied.Store(int32(v))
		item.active.Store(tgt.schema)
		if r.onApply != nil {
			if err := r.onApply(tgt.schema, last); err != nil {
				return tgt.schema, err
			}
		}
		last = v
	}

	cur, ok := item.versions[last]
	if !ok {
		return nil, types.ErrUnknownSchema
	}
	return cur.schema, nil
}

// UnappliedVersions returns the ascending version numbers for name that
// have not been applied.
func (r *Registry) UnappliedVersions(name string) []int {
	r.mu.RLock()
	item, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	item.mu.Lock()
	defer item.mu.Unlock()

	var out []int
	for v, e := range item.versions {
		if !e.applied {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Inactive reports whether the given declared version is inactive.
func (r *Registry) Inactive(name string, version int) bool {
	r.mu.RLock()
	item, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	item.mu.Lock()
	defer item.mu.Unlock()
	e, ok := item.versions[version]
	return ok && e.inactive
}

// Remove drops every version of name from the catalog.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return false
	}
	delete(r.items, name)
	return true
}

// Names returns the declared schema names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
