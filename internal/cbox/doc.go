// Package cbox implements the object runtime at the heart of the controller.
//
// A controller hosts a set of objects (blocks). Each object has a 16-bit ID,
// a type tag, a group mask and an opaque settings blob that the object itself
// knows how to decode. The runtime never interprets the blob: it hands the
// object a bounded reader and lets it consume what it understands.
//
// # Components
//
//   - Object: the contract every block implements (stream in/out, update,
//     capability lookup)
//   - Registry: type ID to factory mapping, including a dry-run mode that
//     consumes a definition without constructing anything
//   - Container: the live set of objects ordered by ID, with monotonic ID
//     allocation and a reserved system range
//   - Ref: a late-binding handle from one object to another, resolved
//     through the container on every use
//   - DataIn / DataOut: the byte streams objects read from and write to
//
// # Capabilities
//
// Objects expose interfaces through Implements. Asking an object for its own
// type ID always returns the object. Asking for an interface ID returns a
// value of that interface, which may be the object itself or one of its
// members:
//
//	v := obj.Implements(blocks.IfaceTempSensor)
//	sensor, ok := v.(blocks.TempSensor)
//
// # Concurrency
//
// Nothing in this package is safe for concurrent use. All access goes through
// the single control loop in the box package.
package cbox
