package cbox

// Ref is a late-binding handle from one object to another.
//
// A Ref stores only a target ID and the interface it expects. Every Lock
// goes back to the container, so a Ref never keeps its target alive and
// resolves to nothing as soon as the target is removed, replaced by an
// incompatible type, or not yet created.
type Ref[T any] struct {
	objects *Container
	iface   InterfaceID
	id      ObjectID
}

// NewRef returns an unbound handle that resolves targets exposing iface as T.
func NewRef[T any](objects *Container, iface InterfaceID) Ref[T] {
	return Ref[T]{objects: objects, iface: iface}
}

// ID returns the target ID, 0 when unbound.
func (r *Ref[T]) ID() ObjectID { return r.id }

// SetID retargets the handle. 0 unbinds it.
func (r *Ref[T]) SetID(id ObjectID) { r.id = id }

// Interface returns the interface the handle resolves.
func (r *Ref[T]) Interface() InterfaceID { return r.iface }

// Lock resolves the handle. It returns false when the handle is unbound,
// the target is missing, or the target does not expose the interface as T.
func (r *Ref[T]) Lock() (T, bool) {
	var zero T
	if r.objects == nil || r.id == 0 {
		return zero, false
	}
	v, ok := r.objects.FetchAs(r.id, r.iface)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Valid reports whether Lock would currently succeed.
func (r *Ref[T]) Valid() bool {
	_, ok := r.Lock()
	return ok
}
