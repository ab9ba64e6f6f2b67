// Package box is the controller runtime: it dispatches protocol commands
// against the object container, keeps the persistence store in step,
// replays the store at boot and runs the periodic update pass.
//
// # Architecture
//
// A Box owns one container and one store. It is not safe for concurrent
// use. A Loop owns the Box and is the only goroutine that touches it:
//
//	transports ──Submit──┐
//	                     ├──► Loop.Run ──► Box.Dispatch / Box.Update
//	diagnostics ──Do─────┘
//
// Every request frame produces exactly one reply frame. Commands that carry
// an object definition always consume it, whether or not they succeed, so
// the client and the controller never disagree about stream position.
//
// # Persistence
//
// CREATE and WRITE save the object's persisted settings; DELETE and CLEAR
// erase them. A save that fails is rolled back in the container so that the
// live state never runs ahead of what a reboot would restore.
//
// # Usage
//
//	b := box.New(objects, store)
//	b.SetLogger(logger.Component("box"))
//	stats, err := b.LoadFromStorage(ctx)
//
//	loop := box.NewLoop(b, box.LoopConfig{Interval: 10 * time.Millisecond})
//	go loop.Run(ctx)
//	reply, err := loop.Submit(ctx, frame, nil)
package box
