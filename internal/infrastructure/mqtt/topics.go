package mqtt

import "fmt"

// Topic suffixes below the configured prefix.
const (
	topicCommand = "command"
	topicReply   = "reply"
	topicState   = "state"
	topicStatus  = "status"
)

// Topics builds the topic tree of one controller. Every topic lives under
// Prefix, so several controllers can share a broker.
//
//	topics := mqtt.Topics{Prefix: "blox/kitchen"}
//	topics.State(100)
//	// Returns: "blox/kitchen/state/100"
type Topics struct {
	Prefix string
}

// Command returns the topic the controller takes encoded frames from.
//
// Example: blox/command
func (t Topics) Command() string {
	return fmt.Sprintf("%s/%s", t.Prefix, topicCommand)
}

// Reply returns the topic reply frames are published to.
//
// Example: blox/reply
func (t Topics) Reply() string {
	return fmt.Sprintf("%s/%s", t.Prefix, topicReply)
}

// State returns the retained state topic of one object.
//
// Example: blox/state/100
func (t Topics) State(id uint16) string {
	return fmt.Sprintf("%s/%s/%d", t.Prefix, topicState, id)
}

// AllStates returns a pattern matching every object state topic.
//
// Pattern: blox/state/+
func (t Topics) AllStates() string {
	return fmt.Sprintf("%s/%s/+", t.Prefix, topicState)
}

// Status returns the retained online/offline topic, also used as the
// Last Will topic.
//
// Example: blox/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s", t.Prefix, topicStatus)
}
