// Package audit keeps a trail of the commands that change the controller.
//
// Every mutating command (write, create, delete, clear) and every frame the
// codec rejected is written to the command_log table, with the transport
// session it came from and its outcome. Reads and pings are not recorded.
//
// Entries reach the table through a Recorder: the control loop hands it
// events without blocking, and a single goroutine writes them serially.
// When the queue is full, entries are dropped and counted.
//
//	repo := audit.NewSQLiteRepository(db.DB)
//	rec := audit.NewRecorder(repo, audit.DefaultQueueSize)
//	b.SetCommandHook(rec.Record)
//	go rec.Run(ctx)
package audit
