// Package envelope maintains a streaming min/max decimation of captured
// audio together with the view window over it.
//
// An [Envelope] ingests raw sample batches and reduces each run of
// decimationFactor samples to one (min, max) block, mean-centered to remove
// DC bias. Zoom, pan, seek and resize operate on the derived view window and
// cost the same regardless of take length, which is what keeps hour-long
// takes navigable.
//
// The envelope is intentionally unsynchronized: exactly one goroutine (the
// session coordinator) owns all mutation. Observers receive value snapshots
// through registered callbacks, and render mirrors receive copies of the
// block arrays; nothing writes back into authoritative state.
package envelope

import (
	"math"

	"github.com/MrWong99/wavescope/pkg/pcm"
)

const (
	// DefaultTargetRate is the envelope resolution the decimation factor is
	// derived from: factor = round(sampleRate / target), at least 1.
	DefaultTargetRate = 5000

	// DefaultZoomStep is the per-step zoom ratio used by [Envelope.ZoomSteps].
	DefaultZoomStep = 1.5

	// minVisibleDivisor sizes the smallest permitted window: about a tenth
	// of the canvas width in blocks, so every block keeps a usable pixel
	// footprint and the view cannot zoom past single-block resolution.
	minVisibleDivisor = 10

	defaultCanvasWidth  = 800
	defaultCanvasHeight = 200
)

// Option configures an [Envelope] during construction.
type Option func(*Envelope)

// WithTargetRate overrides the envelope resolution in Hz.
func WithTargetRate(hz int) Option {
	return func(e *Envelope) {
		if hz > 0 {
			e.targetRate = hz
		}
	}
}

// WithZoomStep overrides the per-step zoom ratio. Values at or below 1 are
// ignored.
func WithZoomStep(r float64) Option {
	return func(e *Envelope) {
		if r > 1 {
			e.zoomStep = r
		}
	}
}

// Envelope is the streaming decimation of one take plus its view window.
// Not safe for concurrent use; a single owning goroutine mutates it.
type Envelope struct {
	mins []float32
	maxs []float32

	rate       int
	factor     int
	targetRate int
	zoomStep   float64

	width  int
	height int

	start      int
	zoom       float64
	autoScroll bool
	panRem     float64

	pb playback

	onView   func(View)
	onSeek   func(Seek)
	lastView View
}

// New creates an empty envelope for audio at sampleRate, rendered on a
// canvas of the given pixel size.
func New(sampleRate, canvasWidth, canvasHeight int, opts ...Option) *Envelope {
	e := &Envelope{
		targetRate: DefaultTargetRate,
		zoomStep:   DefaultZoomStep,
		width:      canvasWidth,
		height:     canvasHeight,
		zoom:       1,
		autoScroll: true,
	}
	if e.width < 1 {
		e.width = defaultCanvasWidth
	}
	if e.height < 1 {
		e.height = defaultCanvasHeight
	}
	for _, o := range opts {
		o(e)
	}
	e.setRate(sampleRate)
	e.lastView = e.View()
	return e
}

// OnViewChanged registers fn to receive a snapshot whenever the view window
// changes. Only one callback may be registered at a time; subsequent calls
// replace the previous registration. The callback runs synchronously on the
// mutating goroutine and must not call back into the envelope.
func (e *Envelope) OnViewChanged(fn func(View)) { e.onView = fn }

// OnSeek registers fn to receive seek events. Replacement semantics match
// [Envelope.OnViewChanged].
func (e *Envelope) OnSeek(fn func(Seek)) { e.onSeek = fn }

// SampleRate returns the source sample rate in Hz.
func (e *Envelope) SampleRate() int { return e.rate }

// Factor returns the decimation factor: raw samples per envelope block.
func (e *Envelope) Factor() int { return e.factor }

// BlockCount returns the number of blocks appended so far.
func (e *Envelope) BlockCount() int { return len(e.mins) }

// Block returns the (min, max) pair at index i.
func (e *Envelope) Block(i int) (float32, float32) { return e.mins[i], e.maxs[i] }

// CopyBlocks returns copies of the block arrays covering [from, to), clipped
// to the available range. Mirrors and network observers consume copies so
// they can never alias authoritative state.
func (e *Envelope) CopyBlocks(from, to int) (mins, maxs []float32) {
	if from < 0 {
		from = 0
	}
	if to > len(e.mins) {
		to = len(e.mins)
	}
	if from >= to {
		return nil, nil
	}
	mins = make([]float32, to-from)
	maxs = make([]float32, to-from)
	copy(mins, e.mins[from:to])
	copy(maxs, e.maxs[from:to])
	return mins, maxs
}

// Append decimates samples into blocks and updates the view window.
//
// Each run of Factor samples yields one block: the block mean is computed
// first, then the min and max of (sample − mean), clamped back into [-1, 1].
// A trailing partial block covers the remaining samples, so the block count
// grows by ceil(len(samples)/Factor). While autoScroll is on the window is
// moved to end at the newest block; otherwise it is re-clamped in place.
func (e *Envelope) Append(samples []float32) {
	for i := 0; i < len(samples); i += e.factor {
		end := i + e.factor
		if end > len(samples) {
			end = len(samples)
		}
		mn, mx := decimate(samples[i:end])
		e.mins = append(e.mins, mn)
		e.maxs = append(e.maxs, mx)
	}
	if e.autoScroll {
		e.start = len(e.mins) - e.visible()
		if e.start < 0 {
			e.start = 0
		}
	} else {
		e.clampView()
	}
	e.notify()
}

// Reset wipes the envelope for a new take. A positive sampleRate replaces
// the current rate and decimation factor.
func (e *Envelope) Reset(sampleRate int) {
	e.mins = nil
	e.maxs = nil
	if sampleRate > 0 {
		e.setRate(sampleRate)
	}
	e.start = 0
	e.zoom = 1
	e.autoScroll = true
	e.panRem = 0
	e.pb = playback{}
	e.notify()
}

func (e *Envelope) setRate(sampleRate int) {
	if sampleRate < 1 {
		sampleRate = 1
	}
	e.rate = sampleRate
	e.factor = DecimationFactor(sampleRate, e.targetRate)
}

// DecimationFactor returns the number of raw samples per envelope block for
// the given source and target rates: round(sampleRate/targetRate), at least 1.
func DecimationFactor(sampleRate, targetRate int) int {
	if targetRate < 1 {
		targetRate = DefaultTargetRate
	}
	f := int(math.Round(float64(sampleRate) / float64(targetRate)))
	if f < 1 {
		f = 1
	}
	return f
}

// decimate reduces one block of raw samples to its mean-centered extrema.
func decimate(block []float32) (float32, float32) {
	if len(block) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range block {
		sum += float64(s)
	}
	mean := float32(sum / float64(len(block)))

	mn := block[0] - mean
	mx := mn
	for _, s := range block[1:] {
		c := s - mean
		if c < mn {
			mn = c
		}
		if c > mx {
			mx = c
		}
	}
	mn = pcm.Clamp(mn)
	mx = pcm.Clamp(mx)
	if mn > mx {
		return 0, 0
	}
	return mn, mx
}
