package refs

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates which concrete entity type a Ref points to.
// It is the Go replacement for a generic foreign key: instead of runtime
// type introspection, every votable/watchable table is addressed by an
// explicit (kind, id) pair.
type Kind string

const (
	KindProject   Kind = "project"
	KindUserStory Kind = "userstory"
	KindTask      Kind = "task"
	KindIssue     Kind = "issue"
)

// Ref is the polymorphic join key used by the vote and watch tables.
// A Ref is only meaningful while the referenced row exists; deleting the
// entity cascades to every vote/watch row carrying its Ref.
type Ref struct {
	Kind Kind
	ID   int64
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// Votable is the capability interface the vote store operates against.
// Concrete entity types opt in explicitly; the store never sees
// concrete types.
type Votable interface {
	EntityRef() Ref
	ProjectID() int64
}

// Watchable is the capability interface the watch store and the
// notification fan-out operate against. OwnerID/AssigneeID return
// uuid.Nil when the entity has no such person (projects have no
// assignee, for example).
type Watchable interface {
	EntityRef() Ref
	ProjectID() int64
	OwnerID() uuid.UUID
	AssigneeID() uuid.UUID
}

// Descriptor is what an entity kind registers so the generic feed can
// render it without per-kind special-casing. HasRefSubject tells the
// feed whether the kind uses ref/subject display fields (work items) or
// slug/name (projects).
type Descriptor struct {
	Kind Kind

	// ViewPermission is the per-kind permission slug checked by the
	// favourites feed gate (view_project, view_us, ...).
	ViewPermission string

	// HasRefSubject: true for work items (user story, task, issue)
	// whose display identity is (ref, subject); false for projects
	// whose identity is (slug, name).
	HasRefSubject bool
}

// Registry is the closed, registrable set of entity kinds. External
// packages register their kind once at init; lookups after that are
// read-only, so no locking is needed past startup.
type Registry struct {
	kinds map[Kind]Descriptor
	order []Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[Kind]Descriptor)}
}

// Register adds a kind descriptor. Registering the same kind twice is a
// programmer error and panics; this runs at wiring time, not per request.
func (r *Registry) Register(d Descriptor) {
	if _, dup := r.kinds[d.Kind]; dup {
		panic(fmt.Sprintf("refs: kind %q registered twice", d.Kind))
	}
	r.kinds[d.Kind] = d
	r.order = append(r.order, d.Kind)
}

// Lookup resolves a kind to its descriptor.
func (r *Registry) Lookup(k Kind) (Descriptor, bool) {
	d, ok := r.kinds[k]
	return d, ok
}

// Kinds returns every registered kind in registration order. The
// favourites feed iterates this to stay kind-agnostic.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.order))
	copy(out, r.order)
	return out
}

// Default returns a registry pre-loaded with the four built-in kinds.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Descriptor{Kind: KindProject, ViewPermission: "view_project"})
	r.Register(Descriptor{Kind: KindUserStory, ViewPermission: "view_us", HasRefSubject: true})
	r.Register(Descriptor{Kind: KindTask, ViewPermission: "view_tasks", HasRefSubject: true})
	r.Register(Descriptor{Kind: KindIssue, ViewPermission: "view_issues", HasRefSubject: true})
	return r
}
