package cbox

import "math"

// ObjectID identifies an object in the container. 0 is never a valid ID.
type ObjectID uint16

// TypeID identifies a concrete object type.
type TypeID uint16

// InterfaceID identifies a capability an object may expose. Interface IDs
// share their number space with type IDs: asking an object for its own
// TypeID returns the object itself.
type InterfaceID uint16

// GroupMask selects the groups an object belongs to. An object is updated
// only while its mask intersects the active groups.
type GroupMask uint8

// SystemGroup is always active. System objects live in this group only.
const SystemGroup GroupMask = 0x80

// DefaultActiveGroups is the active mask of a freshly booted controller.
const DefaultActiveGroups = 0x01 | SystemGroup

// Tick is a monotonic millisecond timestamp.
type Tick uint64

// TickNever is returned from Update by objects that do not need updating.
const TickNever Tick = math.MaxUint64

// Object is the contract every block implements.
//
// StreamFrom and StreamTo carry the block's settings blob. Implementations
// must consume their input in a way that is independent of their current
// state, so the runtime can rely on every definition being read to the end.
type Object interface {
	// TypeID returns the concrete type tag.
	TypeID() TypeID

	// StreamFrom applies settings read from in. It returns an error when the
	// settings are malformed; the object must then be left unchanged.
	StreamFrom(in *DataIn) error

	// StreamTo writes the full current state, including live values.
	StreamTo(out *DataOut) error

	// StreamPersistedTo writes only the fields that survive a restart.
	StreamPersistedTo(out *DataOut) error

	// Update advances the object to now and returns the tick at which it
	// next wants to be updated.
	Update(now Tick) Tick

	// Implements returns the capability registered for iface, or nil.
	Implements(iface InterfaceID) any
}

// Capabilities maps interface IDs to functions producing the typed
// capability. Blocks build one table at construction and delegate
// Implements to Lookup.
type Capabilities map[InterfaceID]func() any

// Lookup returns the capability for iface, or nil if it is not exposed.
func (c Capabilities) Lookup(iface InterfaceID) any {
	if fn, ok := c[iface]; ok {
		return fn()
	}
	return nil
}

// Self returns a capability producer that yields v itself.
func Self(v any) func() any {
	return func() any { return v }
}
