// Package overview correlates the whole take with the current view window.
//
// An [Overview] renders one min/max stroke per pixel across the entire
// envelope and overlays the view window as a rectangle. Pointer gestures on
// the strip translate into envelope operations: a press outside the
// rectangle jumps there, a drag inside it pans, and a drag on either edge
// resizes the window with the opposite edge held. The overview owns no view
// state of its own; everything reads from and writes through the envelope.
package overview

import (
	"math"

	"github.com/MrWong99/wavescope/pkg/envelope"
)

// DefaultEdgeTolerance is the pixel distance within which a press grabs a
// rectangle edge instead of the rectangle body.
const DefaultEdgeTolerance = 5

// Option configures an [Overview] during construction.
type Option func(*Overview)

// WithEdgeTolerance overrides the edge grab distance in pixels.
func WithEdgeTolerance(px int) Option {
	return func(o *Overview) {
		if px >= 0 {
			o.edgeTol = px
		}
	}
}

type gesture int

const (
	gestureNone gesture = iota
	gesturePan
	gestureLeftEdge
	gestureRightEdge
)

// Overview is the navigation strip over one envelope. Like the envelope it
// is owned by a single goroutine and does no locking.
type Overview struct {
	env     *envelope.Envelope
	width   int
	height  int
	edgeTol int

	drag      gesture
	lastX     int
	fixedEdge int // block index of the edge held during a resize
	panRem    float64
}

// New creates an overview strip of the given pixel size over env.
func New(env *envelope.Envelope, width, height int, opts ...Option) *Overview {
	o := &Overview{
		env:     env,
		width:   width,
		height:  height,
		edgeTol: DefaultEdgeTolerance,
	}
	if o.width < 1 {
		o.width = 1
	}
	if o.height < 1 {
		o.height = 1
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Resize updates the strip geometry. An active gesture is cancelled since
// its pixel anchors no longer mean anything.
func (o *Overview) Resize(width, height int) {
	if width > 0 {
		o.width = width
	}
	if height > 0 {
		o.height = height
	}
	o.PointerUp()
}

// Strokes renders the entire take at the strip width.
func (o *Overview) Strokes() []envelope.Stroke {
	return o.env.OverviewStrokes(o.width)
}

// ViewRect returns the pixel span [x0, x1] of the current view window on
// the strip. With no blocks yet the rectangle covers the whole strip.
func (o *Overview) ViewRect() (x0, x1 int) {
	n := o.env.BlockCount()
	if n == 0 {
		return 0, o.width - 1
	}
	v := o.env.View()
	x0 = v.Start * o.width / n
	x1 = (v.Start + v.Visible) * o.width / n
	if x1 > o.width-1 {
		x1 = o.width - 1
	}
	if x1 < x0 {
		x1 = x0
	}
	return x0, x1
}

// blockAt maps a strip pixel onto a block index.
func (o *Overview) blockAt(x int) int {
	n := o.env.BlockCount()
	if n == 0 {
		return 0
	}
	b := x * n / o.width
	if b < 0 {
		b = 0
	}
	if b >= n {
		b = n - 1
	}
	return b
}

// PointerDown begins a gesture at strip pixel x. A press on a rectangle
// edge starts a resize, a press inside the rectangle starts a pan, and a
// press outside recenters the window on the pressed block and emits a seek
// event before panning from there.
func (o *Overview) PointerDown(x int) {
	if o.env.BlockCount() == 0 {
		return
	}
	x0, x1 := o.ViewRect()
	o.lastX = x
	o.panRem = 0

	switch {
	case abs(x-x0) <= o.edgeTol:
		o.drag = gestureLeftEdge
		v := o.env.View()
		o.fixedEdge = v.Start + v.Visible
	case abs(x-x1) <= o.edgeTol:
		o.drag = gestureRightEdge
		o.fixedEdge = o.env.View().Start
	case x > x0 && x < x1:
		o.drag = gesturePan
	default:
		b := o.blockAt(x)
		o.env.Recenter(b)
		o.env.SeekBlock(b)
		o.drag = gesturePan
	}
}

// PointerMove continues the active gesture at strip pixel x. Without a
// preceding PointerDown it does nothing.
func (o *Overview) PointerMove(x int) {
	switch o.drag {
	case gesturePan:
		o.pan(x)
	case gestureLeftEdge:
		start := o.blockAt(x)
		if start > o.fixedEdge-1 {
			start = o.fixedEdge - 1
		}
		o.env.SetWindow(start, o.fixedEdge-start)
	case gestureRightEdge:
		end := o.blockAt(x) + 1
		if end < o.fixedEdge+1 {
			end = o.fixedEdge + 1
		}
		o.env.SetWindow(o.fixedEdge, end-o.fixedEdge)
	}
	o.lastX = x
}

// PointerUp ends the active gesture.
func (o *Overview) PointerUp() {
	o.drag = gestureNone
	o.panRem = 0
}

// Dragging reports whether a gesture is active.
func (o *Overview) Dragging() bool { return o.drag != gestureNone }

// pan converts a pixel delta on the strip into a block delta over the whole
// take, carrying the fractional remainder across moves.
func (o *Overview) pan(x int) {
	n := o.env.BlockCount()
	if n == 0 {
		return
	}
	exact := float64(x-o.lastX)*float64(n)/float64(o.width) + o.panRem
	whole := math.Trunc(exact)
	o.panRem = exact - whole
	if whole != 0 {
		o.env.PanBlocks(int(whole))
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
