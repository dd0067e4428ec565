// Package registry holds the process-wide mapping of discovered spells.
//
// A Registry is built from scratch by one discovery pass and read by the
// synchronization and execution layers. It is an explicit value passed
// through the pipeline rather than a package-level global, so independent
// engine instances (and tests) never interfere. The Registry provides no
// internal locking: the engine assumes a single coordinating caller per root
// directory, and discovery, sync, and search calls against one Registry must
// be serialized by that caller.
package registry

import (
	"context"
	"fmt"
	"sort"
)

// DefaultCollection is the sync bucket used for spells registered without a
// derivable collection and without an explicit override.
const DefaultCollection = "default_grimorium"

// InvokeFunc executes a spell with the given arguments.
type InvokeFunc func(ctx context.Context, args map[string]any) (any, error)

// Spell is one registered callable tool.
type Spell struct {
	// ID is the qualified identifier, Collection + "." + Name.
	ID string

	// Collection is the id of the directory the spell was discovered in.
	// Empty for spells registered programmatically.
	Collection string

	// Name is the spell's local name within its collection.
	Name string

	// Doc is the spell's documentation text, used as its search document.
	Doc string

	// CollectionOverride, when set, replaces the derived collection as the
	// spell's sync bucket. It does not change the qualified ID.
	CollectionOverride string

	// Invoke is the spell's callable handle.
	Invoke InvokeFunc
}

// Bucket returns the collection the spell is synchronized under: the
// explicit override when present, the derived collection otherwise, and
// DefaultCollection when neither is known.
func (s Spell) Bucket() string {
	if s.CollectionOverride != "" {
		return s.CollectionOverride
	}
	if s.Collection != "" {
		return s.Collection
	}
	return DefaultCollection
}

// QualifiedID derives a spell's registry key from its collection and local
// name.
func QualifiedID(collection, name string) string {
	return collection + "." + name
}

// Registry maps qualified spell ids to spells.
type Registry struct {
	spells map[string]Spell
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{spells: make(map[string]Spell)}
}

// Register adds a spell under its qualified id. Registering a duplicate id
// within one build is an error; re-running discovery rebuilds the Registry
// from scratch instead of mutating an existing one.
func (r *Registry) Register(s Spell) error {
	if s.Name == "" {
		return ErrEmptyName
	}
	if s.Invoke == nil {
		return ErrNilInvoke
	}
	if s.ID == "" {
		s.ID = QualifiedID(s.Collection, s.Name)
	}
	if _, exists := r.spells[s.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSpell, s.ID)
	}
	r.spells[s.ID] = s
	return nil
}

// Get returns the spell registered under the qualified id.
func (r *Registry) Get(id string) (Spell, bool) {
	s, ok := r.spells[id]
	return s, ok
}

// Len returns the number of registered spells.
func (r *Registry) Len() int {
	return len(r.spells)
}

// IDs returns all qualified ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.spells))
	for id := range r.spells {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByBucket groups all spells by their sync bucket. Within each bucket the
// spells are sorted by qualified id for deterministic processing.
func (r *Registry) ByBucket() map[string][]Spell {
	buckets := make(map[string][]Spell)
	for _, s := range r.spells {
		bucket := s.Bucket()
		buckets[bucket] = append(buckets[bucket], s)
	}
	for _, spells := range buckets {
		sort.Slice(spells, func(i, j int) bool { return spells[i].ID < spells[j].ID })
	}
	return buckets
}
