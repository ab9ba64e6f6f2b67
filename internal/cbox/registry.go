package cbox

import (
	"fmt"
	"slices"
)

// Factory constructs a default-initialised object of one type. The container
// is passed so the object can hold Refs to its peers.
type Factory func(objects *Container) Object

// TypeEntry binds a type ID to its factory.
type TypeEntry struct {
	ID   TypeID
	Name string

	// New builds a fresh instance. A nil New marks a type that is known by
	// name but cannot be created over the wire, such as system objects.
	New Factory
}

// Registry maps type IDs to factories.
//
// The registry is populated once at startup and is read-only afterwards.
type Registry struct {
	entries map[TypeID]TypeEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[TypeID]TypeEntry)}
}

// Register adds a type. It panics on a duplicate ID or a zero ID, since
// both are programming errors caught at startup.
func (r *Registry) Register(entry TypeEntry) {
	if entry.ID == 0 {
		panic("cbox: type id 0 is reserved")
	}
	if existing, dup := r.entries[entry.ID]; dup {
		panic(fmt.Sprintf("cbox: type %d registered twice (%s, %s)", entry.ID, existing.Name, entry.Name))
	}
	r.entries[entry.ID] = entry
}

// Known reports whether typeID has been registered.
func (r *Registry) Known(typeID TypeID) bool {
	_, ok := r.entries[typeID]
	return ok
}

// Name returns the registered name of a type, or a numeric placeholder.
func (r *Registry) Name(typeID TypeID) string {
	if entry, ok := r.entries[typeID]; ok && entry.Name != "" {
		return entry.Name
	}
	return fmt.Sprintf("type-%d", typeID)
}

// Types returns all registered entries ordered by type ID.
func (r *Registry) Types() []TypeEntry {
	out := make([]TypeEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b TypeEntry) int { return int(a.ID) - int(b.ID) })
	return out
}

// Create builds an object of typeID from the definition in in.
//
// The definition reader is always drained, whatever the outcome, and the
// returned count is the number of bytes consumed from it. With dryRun set
// nothing is constructed: the bytes are consumed exactly as a real create
// would and a nil object is returned.
//
// Parameters:
//   - objects: Container the new object may reference; nil is allowed for dry runs
//   - typeID: Type to construct
//   - in: Bounded reader over the definition blob
//   - dryRun: Consume without constructing
//
// Returns:
//   - Object: The new object, or nil on dry run or error
//   - int: Bytes consumed from in
//   - error: ErrInvalidType, ErrOutOfMemory or ErrInvalidDefinition
func (r *Registry) Create(objects *Container, typeID TypeID, in *DataIn, dryRun bool) (Object, int, error) {
	start := in.Consumed()
	consumed := func() int {
		in.Drain()
		return in.Consumed() - start
	}

	entry, ok := r.entries[typeID]
	if !ok || entry.New == nil {
		return nil, consumed(), fmt.Errorf("%w: %d", ErrInvalidType, typeID)
	}
	if dryRun {
		return nil, consumed(), nil
	}
	if objects != nil && objects.Full() {
		return nil, consumed(), ErrOutOfMemory
	}

	obj := entry.New(objects)
	if obj == nil {
		return nil, consumed(), ErrOutOfMemory
	}
	if err := obj.StreamFrom(in); err != nil {
		return nil, consumed(), fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, entry.Name, err)
	}
	return obj, consumed(), nil
}
