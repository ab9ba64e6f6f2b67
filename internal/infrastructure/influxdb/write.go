package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementUpdatePass = "update_pass"
	measurementCommand    = "command"
	measurementObjects    = "objects"
)

// PassSample is the outcome of one scheduler pass.
type PassSample struct {
	Visited  int
	Updated  int
	Inactive int
	Duration time.Duration
}

// CommandSample is the outcome of one dispatched command.
type CommandSample struct {
	Command  string
	Status   string
	Source   string
	Duration time.Duration
}

// WriteUpdatePass records a scheduler pass. Non-blocking.
//
// Example:
//
//	client.WriteUpdatePass(influxdb.PassSample{Visited: 12, Updated: 3, Duration: 40 * time.Microsecond})
func (c *Client) WriteUpdatePass(s PassSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(updatePassPoint(c.controller, s, time.Now()))
}

// WriteCommand records a dispatched command. Non-blocking.
func (c *Client) WriteCommand(s CommandSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(commandPoint(c.controller, s, time.Now()))
}

// WriteObjectCount records the number of live objects.
func (c *Client) WriteObjectCount(count int) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		measurementObjects,
		map[string]string{"controller": c.controller},
		map[string]any{"count": count},
		time.Now(),
	))
}

func updatePassPoint(controller string, s PassSample, at time.Time) *write.Point {
	return write.NewPoint(
		measurementUpdatePass,
		map[string]string{"controller": controller},
		map[string]any{
			"visited":     s.Visited,
			"updated":     s.Updated,
			"inactive":    s.Inactive,
			"duration_us": s.Duration.Microseconds(),
		},
		at,
	)
}

func commandPoint(controller string, s CommandSample, at time.Time) *write.Point {
	return write.NewPoint(
		measurementCommand,
		map[string]string{
			"controller": controller,
			"command":    s.Command,
			"status":     s.Status,
			"source":     s.Source,
		},
		map[string]any{
			"duration_us": s.Duration.Microseconds(),
		},
		at,
	)
}
