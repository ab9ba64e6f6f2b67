// Package transport connects remote clients to the control loop.
//
// Two transports are provided, both speaking the frame protocol of
// internal/cbox/codec:
//
//   - Server accepts TCP connections. Each connection is a byte stream that
//     may mix binary and hex frames; garbage between frames is skipped.
//   - Bridge subscribes to an MQTT command topic. Each message carries one
//     or more encoded frames; replies go to the reply topic. The bridge can
//     also publish a retained JSON snapshot of every object on an interval.
//
// Every frame read, including one the codec rejects, produces exactly one
// reply in the framing it arrived in. Frames are executed by the control
// loop (box.Loop); transports never touch the object container directly.
//
// # Usage
//
//	srv := transport.NewServer(transport.ServerConfig{Addr: ":8332"}, loop)
//	srv.SetLogger(logger)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Close()
package transport
