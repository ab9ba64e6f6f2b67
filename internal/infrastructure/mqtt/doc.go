// Package mqtt provides MQTT client connectivity for the controller daemon.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after a reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
// All topics live under the configured prefix (see Topics):
//
//	<prefix>/command    encoded request frames, one per message
//	<prefix>/reply      encoded reply frames
//	<prefix>/state/<id> retained JSON snapshot of one object
//	<prefix>/status     retained online/offline status (also the LWT)
//
// The frame bridge itself lives in internal/transport; this package only
// knows about connections and topics.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Command(), 1, func(topic string, payload []byte) error {
//	    return handleFrame(payload)
//	})
package mqtt
