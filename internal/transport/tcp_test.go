package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/nerrad567/blox-core/internal/box"
	"github.com/nerrad567/blox-core/internal/cbox"
	"github.com/nerrad567/blox-core/internal/cbox/codec"
)

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	srv := NewServer(cfg, startLoop(t))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func dial(t *testing.T, srv *Server) (net.Conn, *codec.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetDeadline() error = %v", err)
	}
	return conn, codec.NewReader(conn, 0)
}

func readReply(t *testing.T, r *codec.Reader) codec.Frame {
	t.Helper()
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	return f
}

// waitClosed reads until the server closes the connection.
func waitClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 64)
	for {
		_, err := conn.Read(buf)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection was not closed")
			}
			return
		}
	}
}

func TestServer_ResyncsAfterGarbageAndMixesFramings(t *testing.T) {
	srv := startServer(t, ServerConfig{})
	conn, r := dial(t, srv)

	var stream []byte
	stream = append(stream, "noise\x00\xff"...)
	stream = append(stream, encode(t, ping(codec.ModeBinary, 1))...)
	stream = append(stream, "more noise"...)
	stream = append(stream, encode(t, codec.Frame{Mode: codec.ModeHex, MsgID: 2, Command: uint8(box.CmdListObjects)})...)
	stream = append(stream, encode(t, createMockPins(3, 0))...)
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	first := readReply(t, r)
	if first.MsgID != 1 || first.Mode != codec.ModeBinary || status(t, first) != cbox.StatusOK {
		t.Errorf("first reply = %+v", first)
	}

	second := readReply(t, r)
	if second.MsgID != 2 || second.Mode != codec.ModeHex || status(t, second) != cbox.StatusOK {
		t.Errorf("second reply = %+v", second)
	}
	// status, count u16 = 2 system objects
	if len(second.Payload) < 3 || second.Payload[1] != 2 || second.Payload[2] != 0 {
		t.Errorf("list payload = %x, want two objects", second.Payload)
	}

	third := readReply(t, r)
	if third.MsgID != 3 || status(t, third) != cbox.StatusOK {
		t.Errorf("third reply = %+v", third)
	}
}

func TestServer_CorruptFrameGetsOneReply(t *testing.T) {
	srv := startServer(t, ServerConfig{})
	conn, r := dial(t, srv)

	stream := corrupt(t, createMockPins(7, 0))
	stream = append(stream, encode(t, ping(codec.ModeBinary, 8))...)
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	rejected := readReply(t, r)
	if rejected.MsgID != 7 || rejected.Command != uint8(box.CmdCreateObject) || status(t, rejected) != cbox.StatusCRCError {
		t.Errorf("rejection = %+v", rejected)
	}
	if len(rejected.Payload) != 1 {
		t.Errorf("rejection payload = %x, want status only", rejected.Payload)
	}

	next := readReply(t, r)
	if next.MsgID != 8 || status(t, next) != cbox.StatusOK {
		t.Errorf("next reply = %+v", next)
	}

	// The corrupt create had no effect: the next create gets the first user ID.
	if _, err := conn.Write(encode(t, createMockPins(9, 0))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	created := readReply(t, r)
	if status(t, created) != cbox.StatusOK || created.Payload[1] != 100 {
		t.Errorf("created = %x, want id 100", created.Payload)
	}
}

func TestServer_OversizedFrameRejected(t *testing.T) {
	srv := startServer(t, ServerConfig{MaxFrame: 16})
	conn, r := dial(t, srv)

	big := codec.Frame{MsgID: 4, Command: uint8(box.CmdNone), Payload: make([]byte, 64)}
	stream := append(encode(t, big), encode(t, ping(codec.ModeBinary, 5))...)
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if got := readReply(t, r); status(t, got) != cbox.StatusInvalidFrame {
		t.Errorf("oversized reply status = %v, want invalid frame", status(t, got))
	}
	if got := readReply(t, r); got.MsgID != 5 || status(t, got) != cbox.StatusOK {
		t.Errorf("follow-up reply = %+v", got)
	}
}

func TestServer_MaxConnections(t *testing.T) {
	srv := startServer(t, ServerConfig{MaxConnections: 1})
	first, r := dial(t, srv)

	// A round trip guarantees the first session is registered.
	if _, err := first.Write(encode(t, ping(codec.ModeBinary, 1))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	readReply(t, r)

	second, _ := dial(t, srv)
	waitClosed(t, second)

	if got := srv.Sessions(); got != 1 {
		t.Errorf("Sessions() = %d, want 1", got)
	}
}

func TestServer_IdleTimeout(t *testing.T) {
	srv := startServer(t, ServerConfig{IdleTimeout: 50 * time.Millisecond})
	conn, _ := dial(t, srv)
	waitClosed(t, conn)
}

func TestServer_CloseEndsSessions(t *testing.T) {
	srv := startServer(t, ServerConfig{})
	conn, r := dial(t, srv)
	if _, err := conn.Write(encode(t, ping(codec.ModeHex, 1))); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	readReply(t, r)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	waitClosed(t, conn)

	if got := srv.Sessions(); got != 0 {
		t.Errorf("Sessions() after Close = %d, want 0", got)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Start() after Close error = %v, want ErrServerClosed", err)
	}
}

func TestServer_StartTwice(t *testing.T) {
	srv := startServer(t, ServerConfig{})
	if err := srv.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestServer_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(ServerConfig{Addr: "127.0.0.1:0"}, startLoop(t))
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conn, _ := dial(t, srv)

	cancel()
	waitClosed(t, conn)
	srv.Close()
}
