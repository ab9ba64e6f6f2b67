// Package blocks provides the concrete object types served by the controller.
//
// Every block implements cbox.Object and carries its settings as a protobuf
// wire message. Each block splits its fields into two sets:
//
//   - Persisted settings, written by StreamPersistedTo and restored at boot.
//   - Live state, appended by StreamTo only. Live fields are ignored on input,
//     so a read-back blob can be written again without effect on them.
//
// A write replaces every persisted setting: fields absent from the message
// take their zero value, as in proto3. The message is decoded in full before
// anything is applied, so a malformed write leaves the block untouched.
//
// # Capabilities
//
// Blocks expose capabilities through a cbox.Capabilities table built at
// construction. Other blocks reach them through cbox.Ref handles, which
// resolve on every use:
//
//	sensor := cbox.NewRef[blocks.TempSensor](objects, blocks.IfaceTempSensor)
//	sensor.SetID(10)
//	if s, ok := sensor.Lock(); ok {
//	    value, valid := s.Value()
//	}
//
// # System Objects
//
// SysInfo and Groups live at fixed IDs below the first user ID. They are
// registered without a factory, so a client cannot create them, and are
// added to the container by the daemon at startup via SystemObjects.
//
// # Usage
//
//	registry := cbox.NewRegistry()
//	blocks.Register(registry)
package blocks
