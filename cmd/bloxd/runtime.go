package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nerrad567/blox-core/internal/audit"
	"github.com/nerrad567/blox-core/internal/blocks"
	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/infrastructure/config"
	"github.com/nerrad567/blox-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/blox-core/internal/infrastructure/logging"
	"github.com/nerrad567/blox-core/internal/storage"
)

// newBox builds the registry, container and box, and places the system
// objects at their fixed IDs.
func newBox(cfg *config.Config, store storage.Store, log *logging.Logger) (*box.Box, error) {
	registry := cbox.NewRegistry()
	blocks.Register(registry)

	objects := cbox.NewContainer(registry,
		cbox.WithStartID(cbox.ObjectID(cfg.Scheduler.FirstUserID)), // #nosec G115 -- validated range
		cbox.WithCapacity(cfg.Scheduler.MaxObjects),
	)

	b := box.New(objects, store)
	b.SetLogger(log.Component("box"))

	for _, so := range blocks.SystemObjects(deviceID(cfg.Controller), version, b.SetActiveGroups) {
		if err := b.AddSystemObject(so.ID, so.Object); err != nil {
			return nil, fmt.Errorf("adding system object %d: %w", so.ID, err)
		}
	}
	return b, nil
}

// deviceID returns the configured device ID as bytes. A hex string is
// decoded; anything else is used as-is. An empty device ID falls back to
// the controller ID.
func deviceID(cfg config.ControllerConfig) []byte {
	if cfg.DeviceID == "" {
		return []byte(cfg.ID)
	}
	if raw, err := hex.DecodeString(cfg.DeviceID); err == nil {
		return raw
	}
	return []byte(cfg.DeviceID)
}

// commandHook feeds each dispatched command to the audit trail and to the
// metrics client. Either may be nil.
func commandHook(recorder *audit.Recorder, metrics *influxdb.Client) func(box.CommandEvent) {
	return func(ev box.CommandEvent) {
		if recorder != nil {
			recorder.Record(ev)
		}
		metrics.WriteCommand(influxdb.CommandSample{
			Command:  ev.Command.String(),
			Status:   ev.Status.String(),
			Source:   ev.Source,
			Duration: ev.Duration,
		})
	}
}

// passSampler records one update pass in every `every`, together with the
// object count. It runs on the loop goroutine, so reading b is safe.
func passSampler(b *box.Box, metrics *influxdb.Client, every int) func(cbox.Tick, box.UpdateStats) {
	if every < 1 {
		every = 1
	}
	var n int
	return func(_ cbox.Tick, s box.UpdateStats) {
		n++
		if n%every != 0 {
			return
		}
		metrics.WriteUpdatePass(influxdb.PassSample{
			Visited:  s.Visited,
			Updated:  s.Updated,
			Inactive: s.Inactive,
			Duration: s.Duration,
		})
		metrics.WriteObjectCount(b.Objects().Len())
	}
}

// runInBackground starts fn with its own context. The returned stop
// cancels it and waits for fn to return; it may be called more than once.
func runInBackground(fn func(context.Context) error) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx) //nolint:errcheck // stopped by cancellation
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
