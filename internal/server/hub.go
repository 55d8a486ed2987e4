package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/wavescope/internal/observe"
	"github.com/MrWong99/wavescope/internal/stats"
	"github.com/MrWong99/wavescope/pkg/capture"
	"github.com/MrWong99/wavescope/pkg/envelope"
)

const (
	// defaultSendQueue bounds each client's outbound queue. A client that
	// falls this far behind the broadcast stream is disconnected rather
	// than allowed to stall everyone else.
	defaultSendQueue = 64

	// commandQueue bounds the shared inbound command channel.
	commandQueue = 64

	// writeTimeout caps a single frame write to one client.
	writeTimeout = 5 * time.Second
)

// Hub fans engine events, envelope deltas and view updates out to every
// connected monitor client and funnels their commands into a single
// channel for the session coordinator. Broadcasts marshal each message
// once and never block: a client whose queue is full is dropped.
type Hub struct {
	log       *slog.Logger
	metrics   *observe.Metrics
	queueSize int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	commands chan Command
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithMetrics sets the metrics sink used for the client gauge.
func WithMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithSendQueue overrides the per-client outbound queue length.
func WithSendQueue(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		log:       slog.Default(),
		queueSize: defaultSendQueue,
		clients:   make(map[*client]struct{}),
		commands:  make(chan Command, commandQueue),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Commands returns the channel carrying every valid command received from
// any connected client, in arrival order.
func (h *Hub) Commands() <-chan Command {
	return h.commands
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects future registrations. It
// waits for all client goroutines to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	leaving := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		leaving = append(leaving, c)
	}
	clear(h.clients)
	h.mu.Unlock()

	for _, c := range leaving {
		c.stop(websocket.StatusGoingAway, "server shutting down")
	}
	for _, c := range leaving {
		c.wg.Wait()
	}
	if h.metrics != nil && len(leaving) > 0 {
		h.metrics.MonitorClients.Add(context.Background(), -int64(len(leaving)))
	}
}

// register adopts an accepted connection: the hello snapshot is queued as
// the client's first frame, then the read and write loops start.
func (h *Hub) register(conn *websocket.Conn, snap SessionSnapshot) {
	c := &client{
		conn: conn,
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}
	hello, err := json.Marshal(helloMessage{Type: "hello", SessionSnapshot: snap})
	if err != nil {
		h.log.Error("hub: marshal hello", "error", err)
		conn.Close(websocket.StatusInternalError, "hello encoding failed")
		return
	}
	c.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.MonitorClients.Add(context.Background(), 1)
	}
	h.log.Info("monitor client connected", "clients", n)

	c.wg.Add(2)
	go c.writeLoop(h)
	go c.readLoop(h)
}

// drop removes a client and tears its connection down. Safe to call from
// the client's own loops and from broadcast; only the first caller wins.
func (h *Hub) drop(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, registered := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.stop(code, reason)
	if registered {
		if h.metrics != nil {
			h.metrics.MonitorClients.Add(context.Background(), -1)
		}
		h.log.Info("monitor client disconnected", "reason", reason, "clients", n)
	}
}

// broadcast marshals msg once and offers it to every client. Clients with
// a full queue are dropped on the spot.
func (h *Hub) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("hub: marshal broadcast", "error", err)
		return
	}

	var stalled []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.drop(c, websocket.StatusPolicyViolation, "client too slow")
	}
}

// BroadcastEvent relays an engine lifecycle event to all clients.
func (h *Hub) BroadcastEvent(ev capture.Event) {
	msg := eventMessage{Type: "event", Kind: string(ev.Kind)}
	switch ev.Kind {
	case capture.EventInitialized:
		msg.SampleRate = ev.SampleRate
		msg.Mode = ev.Mode.String()
		msg.Gain = ev.Gain
	case capture.EventRecordingStart:
		msg.SampleRate = ev.SampleRate
		msg.Mode = ev.Mode.String()
	case capture.EventGainChanged:
		msg.Gain = ev.Gain
	case capture.EventError:
		msg.Stage = string(ev.Stage)
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
	}
	h.broadcast(msg)
}

// BroadcastBlocks pushes the envelope blocks appended since the last
// push. Start is the index of the first block in mins and maxs.
func (h *Hub) BroadcastBlocks(start int, mins, maxs []float32) {
	h.broadcast(blocksMessage{Type: "blocks", Start: start, Mins: mins, Maxs: maxs})
}

// BroadcastView pushes the current window after any zoom, pan, resize or
// auto-scroll movement.
func (h *Hub) BroadcastView(v envelope.View) {
	h.broadcast(viewMessage{Type: "view", View: ViewFrom(v)})
}

// BroadcastSeek announces a completed seek with its resolved position.
func (h *Hub) BroadcastSeek(s envelope.Seek) {
	h.broadcast(seekMessage{
		Type:        "seek",
		Block:       s.Block,
		SampleIndex: s.SampleIndex,
		OffsetMs:    float64(s.Offset) / float64(time.Millisecond),
	})
}

// BroadcastRecording announces a finished take. Only the summary travels
// over the socket, never the encoded bytes.
func (h *Hub) BroadcastRecording(rec *capture.Recording) {
	if rec == nil {
		return
	}
	h.broadcast(recordingMessage{
		Type:        "recording",
		SizeBytes:   len(rec.Data),
		DurationMs:  float64(rec.Duration) / float64(time.Millisecond),
		SampleCount: rec.SampleCount,
		SampleRate:  rec.SampleRate,
		Mode:        rec.Mode.String(),
		Path:        rec.Path,
	})
}

// BroadcastStats pushes a pipeline stats snapshot.
func (h *Hub) BroadcastStats(snap stats.Snapshot) {
	h.broadcast(statsMessage{Type: "stats", Stats: snap})
}

// client is one connected monitor socket. Frames to send pass through the
// buffered send queue so a slow connection never blocks the hub.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// stop closes the connection and releases both loops. Idempotent.
func (c *client) stop(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(code, reason)
	})
}

func (c *client) writeLoop(h *Hub) {
	defer c.wg.Done()
	for {
		select {
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.drop(c, websocket.StatusNormalClosure, "write failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) readLoop(h *Hub) {
	defer c.wg.Done()
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			h.drop(c, websocket.StatusNormalClosure, "connection closed")
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.log.Debug("rejecting malformed command", "error", err)
			c.reject("malformed command")
			continue
		}
		if err := cmd.Validate(); err != nil {
			h.log.Debug("rejecting invalid command", "type", cmd.Type, "error", err)
			c.reject(err.Error())
			continue
		}
		select {
		case h.commands <- cmd:
		case <-c.done:
			return
		}
	}
}

// reject answers a refused inbound frame with an error message. Best
// effort: a full send queue drops the reply rather than stalling reads.
func (c *client) reject(reason string) {
	data, err := json.Marshal(errorMessage{Type: "error", Error: reason})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
