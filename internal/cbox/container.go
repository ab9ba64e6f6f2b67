package cbox

import (
	"fmt"
	"iter"
	"math"
	"slices"
)

// Default container limits.
const (
	// DefaultStartID is the first ID handed out to user objects when no
	// system range is configured.
	DefaultStartID ObjectID = 1

	// DefaultCapacity bounds the number of live objects.
	DefaultCapacity = 256
)

// Entry is one live object together with its container metadata.
type Entry struct {
	id         ObjectID
	groups     GroupMask
	object     Object
	nextUpdate Tick
}

// ID returns the object ID.
func (e *Entry) ID() ObjectID { return e.id }

// Groups returns the group mask.
func (e *Entry) Groups() GroupMask { return e.groups }

// Type returns the object's type tag.
func (e *Entry) Type() TypeID { return e.object.TypeID() }

// Object returns the object itself.
func (e *Entry) Object() Object { return e.object }

// NextUpdate returns the tick at which the object is next due.
func (e *Entry) NextUpdate() Tick { return e.nextUpdate }

// Update calls the object's Update if it is due at now and records the
// tick it asks for. It reports whether the object ran.
func (e *Entry) Update(now Tick) bool {
	if now < e.nextUpdate {
		return false
	}
	e.nextUpdate = e.object.Update(now)
	return true
}

// Container holds live objects ordered by ID.
//
// IDs below the start ID form the system range: they are only populated
// through Add and cannot be removed. User IDs are allocated monotonically
// and never reused while the container lives.
type Container struct {
	registry *Registry
	entries  []*Entry // sorted by id
	startID  ObjectID
	nextID   uint32 // uint32 so exhaustion past 0xFFFF is detectable
	capacity int
}

// Option configures a Container.
type Option func(*Container)

// WithStartID sets the first user object ID. IDs below it are reserved for
// system objects.
func WithStartID(id ObjectID) Option {
	return func(c *Container) {
		if id > 0 {
			c.startID = id
		}
	}
}

// WithCapacity bounds the number of live objects, system objects included.
func WithCapacity(n int) Option {
	return func(c *Container) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewContainer creates an empty container backed by registry.
func NewContainer(registry *Registry, opts ...Option) *Container {
	c := &Container{
		registry: registry,
		startID:  DefaultStartID,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.nextID = uint32(c.startID)
	return c
}

// Registry returns the type registry the container creates objects from.
func (c *Container) Registry() *Registry { return c.registry }

// StartID returns the first user object ID.
func (c *Container) StartID() ObjectID { return c.startID }

// IsSystem reports whether id lies in the reserved system range.
func (c *Container) IsSystem(id ObjectID) bool {
	return id != 0 && id < c.startID
}

// Len returns the number of live objects.
func (c *Container) Len() int { return len(c.entries) }

// Full reports whether the container is at capacity.
func (c *Container) Full() bool { return len(c.entries) >= c.capacity }

// Create constructs an object from a definition and stores it under the
// next free user ID. The definition is always fully consumed.
//
// Returns:
//   - ObjectID: The allocated ID
//   - error: ErrIDsExhausted, or any error from Registry.Create
func (c *Container) Create(typeID TypeID, groups GroupMask, in *DataIn) (ObjectID, error) {
	if c.nextID > math.MaxUint16 {
		c.registry.Create(nil, typeID, in, true) //nolint:errcheck // consuming only
		return 0, ErrIDsExhausted
	}
	obj, _, err := c.registry.Create(c, typeID, in, false)
	if err != nil {
		return 0, err
	}
	id := ObjectID(c.nextID)
	c.nextID++
	c.insert(&Entry{id: id, groups: groups, object: obj})
	return id, nil
}

// CreateWithID constructs an object from a definition and stores it under
// an explicit user ID. The allocator is advanced past id. The definition is
// always fully consumed.
func (c *Container) CreateWithID(id ObjectID, typeID TypeID, groups GroupMask, in *DataIn) error {
	if id == 0 || c.IsSystem(id) {
		c.registry.Create(nil, typeID, in, true) //nolint:errcheck // consuming only
		return fmt.Errorf("%w: %d", ErrInvalidObjectID, id)
	}
	if _, exists := c.search(id); exists {
		c.registry.Create(nil, typeID, in, true) //nolint:errcheck // consuming only
		return fmt.Errorf("%w: %d in use", ErrInvalidObjectID, id)
	}
	obj, _, err := c.registry.Create(c, typeID, in, false)
	if err != nil {
		return err
	}
	c.Reserve(id)
	c.insert(&Entry{id: id, groups: groups, object: obj})
	return nil
}

// Add stores an already constructed object under id. It is how system
// objects enter the container; any free ID is accepted.
func (c *Container) Add(id ObjectID, groups GroupMask, obj Object) error {
	if id == 0 {
		return fmt.Errorf("%w: 0", ErrInvalidObjectID)
	}
	if _, exists := c.search(id); exists {
		return fmt.Errorf("%w: %d in use", ErrInvalidObjectID, id)
	}
	if c.Full() {
		return ErrOutOfMemory
	}
	if !c.IsSystem(id) {
		c.Reserve(id)
	}
	c.insert(&Entry{id: id, groups: groups, object: obj})
	return nil
}

// Reserve advances the allocator so that the next allocated ID is greater
// than id.
func (c *Container) Reserve(id ObjectID) {
	if uint32(id) >= c.nextID {
		c.nextID = uint32(id) + 1
	}
}

// Entry returns the entry at id.
func (c *Container) Entry(id ObjectID) (*Entry, bool) {
	i, ok := c.search(id)
	if !ok {
		return nil, false
	}
	return c.entries[i], true
}

// Fetch returns the object at id.
func (c *Container) Fetch(id ObjectID) (Object, bool) {
	e, ok := c.Entry(id)
	if !ok {
		return nil, false
	}
	return e.object, true
}

// FetchAs returns the capability iface of the object at id. It returns
// false when the object is missing or does not expose iface.
func (c *Container) FetchAs(id ObjectID, iface InterfaceID) (any, bool) {
	obj, ok := c.Fetch(id)
	if !ok {
		return nil, false
	}
	v := obj.Implements(iface)
	return v, v != nil
}

// SetGroups replaces the group mask of the object at id.
func (c *Container) SetGroups(id ObjectID, groups GroupMask) error {
	e, ok := c.Entry(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrObjectNotFound, id)
	}
	e.groups = groups
	return nil
}

// Remove deletes the object at id. System objects cannot be removed.
func (c *Container) Remove(id ObjectID) error {
	if c.IsSystem(id) {
		return fmt.Errorf("%w: %d", ErrSystemObject, id)
	}
	i, ok := c.search(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrObjectNotFound, id)
	}
	c.entries = slices.Delete(c.entries, i, i+1)
	return nil
}

// Clear removes every user object and returns the removed IDs.
func (c *Container) Clear() []ObjectID {
	var removed []ObjectID
	kept := c.entries[:0]
	for _, e := range c.entries {
		if c.IsSystem(e.id) {
			kept = append(kept, e)
			continue
		}
		removed = append(removed, e.id)
	}
	clear(c.entries[len(kept):])
	c.entries = kept
	return removed
}

// All iterates over a snapshot of the entries in ascending ID order.
// Objects removed during iteration are still visited if the snapshot was
// taken before their removal.
func (c *Container) All() iter.Seq[*Entry] {
	snapshot := slices.Clone(c.entries)
	return func(yield func(*Entry) bool) {
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

func (c *Container) search(id ObjectID) (int, bool) {
	return slices.BinarySearchFunc(c.entries, id, func(e *Entry, target ObjectID) int {
		return int(e.id) - int(target)
	})
}

func (c *Container) insert(e *Entry) {
	i, _ := c.search(e.id)
	c.entries = slices.Insert(c.entries, i, e)
}
