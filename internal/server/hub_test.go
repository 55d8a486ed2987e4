package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/wavescope/internal/stats"
	"github.com/MrWong99/wavescope/pkg/capture"
	"github.com/MrWong99/wavescope/pkg/envelope"
)

// newTestServer wires a Server with a fresh hub around src and serves it
// via httptest. The hub is closed before the listener on cleanup so
// stream clients disconnect first.
func newTestServer(t *testing.T, src SessionSource, opts ...HubOption) (*httptest.Server, *Server) {
	t.Helper()
	srv := New(Config{
		Session: src,
		Stats:   stats.New(0),
		Hub:     NewHub(opts...),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return ts, srv
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, ts.URL+"/v1/stream", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return conn
}

func readWireMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", data, err)
	}
	return msg
}

func readHello(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if msg := readWireMessage(t, conn); msg["type"] != "hello" {
		t.Fatalf("first message type = %v, want hello", msg["type"])
	}
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), want)
}

func TestStream_HelloOnConnect(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)

	msg := readWireMessage(t, conn)
	if msg["type"] != "hello" {
		t.Fatalf("type = %v, want hello", msg["type"])
	}
	if msg["state"] != "recording" {
		t.Fatalf("state = %v, want recording", msg["state"])
	}
	if msg["decimation_factor"] != float64(10) {
		t.Fatalf("decimation_factor = %v, want 10", msg["decimation_factor"])
	}
	if msg["block_count"] != float64(513) {
		t.Fatalf("block_count = %v, want 513", msg["block_count"])
	}
}

func TestStream_CommandsReachHub(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)
	readHello(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload := []byte(`{"type":"zoom","steps":3,"anchor_ratio":0.25}`)
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case cmd := <-srv.Hub().Commands():
		if cmd.Type != CmdZoom {
			t.Fatalf("command type = %q, want %q", cmd.Type, CmdZoom)
		}
		if cmd.Steps != 3 {
			t.Fatalf("Steps = %d, want 3", cmd.Steps)
		}
		if cmd.AnchorRatio != 0.25 {
			t.Fatalf("AnchorRatio = %v, want 0.25", cmd.AnchorRatio)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestStream_InvalidCommandsRejected(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)
	readHello(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, payload := range []string{
		`{not json`,
		`{"type":"rewind"}`,
		`{"type":"gain","value":-2}`,
		`{"type":"stop"}`,
	} {
		if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
			t.Fatalf("Write(%q) error = %v", payload, err)
		}
	}

	for i := 0; i < 3; i++ {
		msg := readWireMessage(t, conn)
		if msg["type"] != "error" {
			t.Fatalf("reply %d type = %v, want error", i, msg["type"])
		}
		if text, _ := msg["error"].(string); text == "" {
			t.Fatalf("reply %d carries no error text", i)
		}
	}

	select {
	case cmd := <-srv.Hub().Commands():
		if cmd.Type != CmdStop {
			t.Fatalf("first forwarded command = %q, want %q", cmd.Type, CmdStop)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	first := dialStream(t, ts)
	readHello(t, first)
	second := dialStream(t, ts)
	readHello(t, second)

	srv.Hub().BroadcastView(envelope.View{Start: 100, Visible: 640, Zoom: 2, AutoScroll: true})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readWireMessage(t, conn)
		if msg["type"] != "view" {
			t.Fatalf("type = %v, want view", msg["type"])
		}
		view := msg["view"].(map[string]any)
		if view["start"] != float64(100) {
			t.Fatalf("view.start = %v, want 100", view["start"])
		}
		if view["zoom"] != float64(2) {
			t.Fatalf("view.zoom = %v, want 2", view["zoom"])
		}
	}
}

func TestHub_BroadcastEventError(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)
	readHello(t, conn)

	srv.Hub().BroadcastEvent(capture.Event{
		Kind:  capture.EventError,
		Stage: capture.StageCapture,
		Err:   errors.New("input overrun"),
	})

	msg := readWireMessage(t, conn)
	if msg["type"] != "event" {
		t.Fatalf("type = %v, want event", msg["type"])
	}
	if msg["kind"] != string(capture.EventError) {
		t.Fatalf("kind = %v, want %v", msg["kind"], capture.EventError)
	}
	if msg["stage"] != string(capture.StageCapture) {
		t.Fatalf("stage = %v, want %v", msg["stage"], capture.StageCapture)
	}
	if msg["error"] != "input overrun" {
		t.Fatalf("error = %v, want input overrun", msg["error"])
	}
}

func TestHub_BroadcastRecordingOmitsAudio(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)
	readHello(t, conn)

	srv.Hub().BroadcastRecording(&capture.Recording{
		Data:        make([]byte, 480044),
		Duration:    2500 * time.Millisecond,
		SampleCount: 120000,
		SampleRate:  48000,
		Mode:        capture.ModePolling,
		Path:        "/takes/take-7.wav",
	})

	msg := readWireMessage(t, conn)
	if msg["type"] != "recording" {
		t.Fatalf("type = %v, want recording", msg["type"])
	}
	if msg["size_bytes"] != float64(480044) {
		t.Fatalf("size_bytes = %v, want 480044", msg["size_bytes"])
	}
	if msg["duration_ms"] != float64(2500) {
		t.Fatalf("duration_ms = %v, want 2500", msg["duration_ms"])
	}
	if msg["path"] != "/takes/take-7.wav" {
		t.Fatalf("path = %v, want /takes/take-7.wav", msg["path"])
	}
	if _, ok := msg["data"]; ok {
		t.Fatal("recording message carries audio bytes, want summary only")
	}
}

func TestHub_BroadcastSeekPosition(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)
	readHello(t, conn)

	srv.Hub().BroadcastSeek(envelope.Seek{
		Block:       42,
		SampleIndex: 420,
		Offset:      8750 * time.Microsecond,
	})

	msg := readWireMessage(t, conn)
	if msg["type"] != "seek" {
		t.Fatalf("type = %v, want seek", msg["type"])
	}
	if msg["block"] != float64(42) {
		t.Fatalf("block = %v, want 42", msg["block"])
	}
	if msg["sample_index"] != float64(420) {
		t.Fatalf("sample_index = %v, want 420", msg["sample_index"])
	}
	if msg["offset_ms"] != 8.75 {
		t.Fatalf("offset_ms = %v, want 8.75", msg["offset_ms"])
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()}, WithSendQueue(1))
	conn := dialStream(t, ts)
	readHello(t, conn)

	// The client stops reading here. Large frames fill the socket buffers,
	// the write loop blocks, the one-slot queue fills and the next
	// broadcast has nowhere to go.
	mins := make([]float32, 64000)
	maxs := make([]float32, 64000)
	for i := range mins {
		mins[i] = -0.5
		maxs[i] = 0.5
	}
	for i := 0; i < 20; i++ {
		srv.Hub().BroadcastBlocks(0, mins, maxs)
	}

	waitForClients(t, srv.Hub(), 0)
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	conn := dialStream(t, ts)
	readHello(t, conn)
	waitForClients(t, srv.Hub(), 1)

	srv.Hub().Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("Read() after Close succeeded, want connection error")
	}
	if n := srv.Hub().ClientCount(); n != 0 {
		t.Fatalf("ClientCount() = %d, want 0", n)
	}
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	h := NewHub()
	h.Close()
	h.Close()
	if n := h.ClientCount(); n != 0 {
		t.Fatalf("ClientCount() = %d, want 0", n)
	}
}
