// Package mirror runs waveform rendering off the coordinator goroutine.
//
// A [Mirror] owns a worker goroutine fed by a one-way command queue. The
// coordinator posts fire-and-forget commands describing envelope growth and
// frame requests; the worker maintains a private copy of the block arrays
// and paints frames through a [Painter]. Posts never block and the mirror
// never writes back into authoritative state, so a slow painter can only
// ever delay its own frames.
//
// Consecutive draw requests coalesce: when the painter falls behind, queued
// frames collapse into the most recent request rather than piling up.
package mirror

import (
	"sync"
	"time"

	"github.com/MrWong99/wavescope/pkg/envelope"
)

// Frame is one rendered mirror frame.
type Frame struct {
	Width   int
	Height  int
	Strokes []envelope.Stroke

	// Playhead is the pixel column of the playback cursor, or -1 when no
	// cursor falls inside the frame.
	Playhead int
}

// Painter consumes rendered frames. Paint is called sequentially from the
// mirror's worker goroutine; a slow Paint delays only the mirror.
type Painter interface {
	Paint(Frame)
}

// PainterFunc adapts a function to the [Painter] interface.
type PainterFunc func(Frame)

// Paint calls f.
func (f PainterFunc) Paint(frame Frame) { f(frame) }

// DrawParams carries the view parameters for one frame request.
type DrawParams struct {
	Zoom        float64
	ViewStart   int
	PlaybackPos float64
	Playing     bool
}

// Detail describes one painted frame for diagnostics.
type Detail struct {
	BlocksPainted int
	PaintDuration time.Duration
}

type cmdKind int

const (
	cmdInit cmdKind = iota
	cmdAppend
	cmdDraw
	cmdReset
	cmdResize
	cmdSetRate
)

type command struct {
	kind       cmdKind
	width      int
	height     int
	sampleRate int
	factor     int
	mins       []float32
	maxs       []float32
	draw       DrawParams
}

// Mirror is the off-thread render worker. All exported methods are safe for
// concurrent use and return without blocking on the painter.
type Mirror struct {
	painter Painter

	mu       sync.Mutex
	pending  []command
	closed   bool
	onDetail func(Detail)

	notify chan struct{} // signalled when a command is posted
	done   chan struct{} // closed by Close to stop the worker
	wg     sync.WaitGroup

	// Worker-private mirrored state. Only the worker goroutine touches it.
	width  int
	height int
	rate   int
	factor int
	mins   []float32
	maxs   []float32
}

// New creates a mirror painting through painter and starts its worker
// goroutine. painter must not be nil. Call [Mirror.Close] to stop the worker.
func New(painter Painter) *Mirror {
	m := &Mirror{
		painter: painter,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// OnDetail registers fn to receive paint diagnostics. Only one callback may
// be registered at a time; subsequent calls replace the previous
// registration. The callback runs on the worker goroutine and must not block.
func (m *Mirror) OnDetail(fn func(Detail)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetail = fn
}

// Init sets the canvas geometry and source parameters, clearing any blocks.
func (m *Mirror) Init(width, height, sampleRate, decimationFactor int) {
	m.post(command{kind: cmdInit, width: width, height: height, sampleRate: sampleRate, factor: decimationFactor})
}

// Append extends the mirrored block arrays. The mirror takes ownership of
// both slices; callers must not retain or mutate them after the call.
func (m *Mirror) Append(mins, maxs []float32) {
	m.post(command{kind: cmdAppend, mins: mins, maxs: maxs})
}

// Draw requests a frame for the given view parameters. Requests queued
// behind an unpainted one are coalesced, last wins.
func (m *Mirror) Draw(p DrawParams) {
	m.post(command{kind: cmdDraw, draw: p})
}

// Reset clears the mirrored block arrays.
func (m *Mirror) Reset() {
	m.post(command{kind: cmdReset})
}

// Resize updates the canvas geometry.
func (m *Mirror) Resize(width, height int) {
	m.post(command{kind: cmdResize, width: width, height: height})
}

// SetSampleRate updates the mirrored source rate.
func (m *Mirror) SetSampleRate(rate int) {
	m.post(command{kind: cmdSetRate, sampleRate: rate})
}

// Close stops the worker goroutine and discards any pending commands. Close
// is idempotent and waits for an in-flight paint to finish.
func (m *Mirror) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.pending = nil
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	return nil
}

func (m *Mirror) post(c command) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	// Collapse a draw onto a directly preceding unprocessed draw.
	if c.kind == cmdDraw {
		if n := len(m.pending); n > 0 && m.pending[n-1].kind == cmdDraw {
			m.pending[n-1] = c
			m.wake()
			return
		}
	}
	m.pending = append(m.pending, c)
	m.wake()
}

// wake signals the worker. Must be called with m.mu held.
func (m *Mirror) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// take swaps out the pending command list. Returns nil when idle.
func (m *Mirror) take() []command {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := m.pending
	m.pending = nil
	return batch
}

// run is the worker goroutine. It drains the command queue in posting
// order, applying state commands immediately and painting at most one frame
// per drain using the most recent draw parameters.
func (m *Mirror) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case <-m.notify:
		}

		for {
			batch := m.take()
			if len(batch) == 0 {
				break
			}

			var draw DrawParams
			wantDraw := false
			for _, c := range batch {
				switch c.kind {
				case cmdInit:
					m.width = c.width
					m.height = c.height
					m.rate = c.sampleRate
					m.factor = c.factor
					m.mins = nil
					m.maxs = nil
				case cmdAppend:
					m.mins = append(m.mins, c.mins...)
					m.maxs = append(m.maxs, c.maxs...)
				case cmdDraw:
					draw = c.draw
					wantDraw = true
				case cmdReset:
					m.mins = nil
					m.maxs = nil
				case cmdResize:
					m.width = c.width
					m.height = c.height
				case cmdSetRate:
					m.rate = c.sampleRate
				}
			}
			if wantDraw {
				m.paint(draw)
			}
		}
	}
}

// paint renders one frame from the mirrored state.
func (m *Mirror) paint(p DrawParams) {
	started := time.Now()

	n := len(m.mins)
	visible := n
	if p.Zoom > 1 && n > 0 {
		visible = int(float64(n)/p.Zoom + 0.5)
		if visible < 1 {
			visible = 1
		}
		if visible > n {
			visible = n
		}
	}

	frame := Frame{
		Width:    m.width,
		Height:   m.height,
		Strokes:  envelope.Strokes(m.mins, m.maxs, p.ViewStart, visible, m.width),
		Playhead: playheadPixel(p, visible, m.width),
	}
	m.painter.Paint(frame)

	m.mu.Lock()
	fn := m.onDetail
	m.mu.Unlock()
	if fn != nil {
		painted := n - p.ViewStart
		if painted > visible {
			painted = visible
		}
		if painted < 0 {
			painted = 0
		}
		fn(Detail{BlocksPainted: painted, PaintDuration: time.Since(started)})
	}
}

// playheadPixel maps the playback cursor onto a pixel column, or -1 when it
// falls outside the window.
func playheadPixel(p DrawParams, visible, width int) int {
	if !p.Playing || visible <= 0 || width <= 0 {
		return -1
	}
	rel := p.PlaybackPos - float64(p.ViewStart)
	if rel < 0 || rel >= float64(visible) {
		return -1
	}
	x := int(rel * float64(width) / float64(visible))
	if x >= width {
		x = width - 1
	}
	return x
}
