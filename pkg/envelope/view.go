package envelope

import (
	"math"
	"time"
)

// View is a value snapshot of the window over the envelope. Start and
// Visible are in blocks; Zoom is the magnification over the whole take.
type View struct {
	Start      int
	Visible    int
	Zoom       float64
	AutoScroll bool
}

// Seek describes a user-initiated jump to a position in the take.
type Seek struct {
	// Block is the envelope block that was targeted.
	Block int
	// SampleIndex is the first raw sample of that block.
	SampleIndex int64
	// Offset is the position from the start of the take.
	Offset time.Duration
}

// View returns the current window snapshot.
func (e *Envelope) View() View {
	return View{
		Start:      e.start,
		Visible:    e.visible(),
		Zoom:       e.zoom,
		AutoScroll: e.autoScroll,
	}
}

// minVisible returns the smallest permitted window in blocks. It tracks the
// canvas width but never exceeds the block count.
func (e *Envelope) minVisible() int {
	mv := e.width / minVisibleDivisor
	if mv < 1 {
		mv = 1
	}
	if n := len(e.mins); mv > n {
		mv = n
	}
	return mv
}

// visible returns the current window size in blocks, derived from the block
// count and zoom factor and clamped to [minVisible, blockCount].
func (e *Envelope) visible() int {
	n := len(e.mins)
	if n == 0 {
		return 0
	}
	v := int(math.Round(float64(n) / e.zoom))
	if mv := e.minVisible(); v < mv {
		v = mv
	}
	if v > n {
		v = n
	}
	return v
}

// maxZoom returns the largest zoom factor that still shows minVisible blocks.
func (e *Envelope) maxZoom() float64 {
	n := len(e.mins)
	mv := e.minVisible()
	if n == 0 || mv == 0 {
		return 1
	}
	z := float64(n) / float64(mv)
	if z < 1 {
		z = 1
	}
	return z
}

// clampView pins the window start into [0, blockCount − visible].
func (e *Envelope) clampView() {
	max := len(e.mins) - e.visible()
	if e.start > max {
		e.start = max
	}
	if e.start < 0 {
		e.start = 0
	}
}

// notify publishes the view snapshot to the registered callback when it
// differs from the last published one.
func (e *Envelope) notify() {
	snap := e.View()
	if snap == e.lastView {
		return
	}
	e.lastView = snap
	if e.onView != nil {
		e.onView(snap)
	}
}

// SetZoom sets the zoom factor, clamped into [1, maxZoom]. A non-negative
// anchor names a block whose position within the window is preserved across
// the zoom change; a negative anchor preserves the window center instead.
func (e *Envelope) SetZoom(target float64, anchor int) {
	oldStart := e.start
	oldVisible := e.visible()

	if math.IsNaN(target) || target < 1 {
		target = 1
	}
	if max := e.maxZoom(); target > max {
		target = max
	}
	e.zoom = target
	newVisible := e.visible()

	if anchor >= 0 && oldVisible > 0 {
		ratio := float64(anchor-oldStart) / float64(oldVisible)
		e.start = anchor - int(math.Round(ratio*float64(newVisible)))
	} else {
		center := oldStart + oldVisible/2
		e.start = center - newVisible/2
	}
	e.clampView()
	e.notify()
}

// ZoomSteps applies n discrete zoom steps, each multiplying (n > 0) or
// dividing (n < 0) the zoom factor by the configured step ratio. The anchor
// block is taken at anchorRatio across the current window, so a cursor
// position can stay put while the window stretches around it.
func (e *Envelope) ZoomSteps(n int, anchorRatio float64) {
	if n == 0 {
		return
	}
	if math.IsNaN(anchorRatio) || anchorRatio < 0 {
		anchorRatio = 0
	}
	if anchorRatio > 1 {
		anchorRatio = 1
	}
	anchor := e.start + int(math.Round(anchorRatio*float64(e.visible())))

	target := e.zoom
	steps := n
	if steps < 0 {
		steps = -steps
	}
	for i := 0; i < steps; i++ {
		if n > 0 {
			target *= e.zoomStep
		} else {
			target /= e.zoomStep
		}
	}
	e.SetZoom(target, anchor)
}

// PanBlocks shifts the window by delta blocks, disabling auto-scroll. The
// window pins at either edge rather than wrapping.
func (e *Envelope) PanBlocks(delta int) {
	e.autoScroll = false
	e.start += delta
	e.clampView()
	e.notify()
}

// PanPixels shifts the window by a horizontal pixel distance, converting
// through the current blocks-per-pixel density. The fractional remainder is
// retained across calls so slow drags still accumulate movement.
func (e *Envelope) PanPixels(dx float64) {
	e.autoScroll = false
	v := e.visible()
	if v == 0 || e.width == 0 {
		return
	}
	exact := dx*float64(v)/float64(e.width) + e.panRem
	whole := math.Trunc(exact)
	e.panRem = exact - whole
	e.start += int(whole)
	e.clampView()
	e.notify()
}

// SetAutoScroll toggles following the newest block. Turning it on snaps the
// window to the live edge.
func (e *Envelope) SetAutoScroll(on bool) {
	e.autoScroll = on
	if on {
		e.start = len(e.mins) - e.visible()
		if e.start < 0 {
			e.start = 0
		}
	}
	e.notify()
}

// Resize updates the canvas geometry and re-clamps the window, since the
// minimum visible span follows the canvas width.
func (e *Envelope) Resize(width, height int) {
	if width > 0 {
		e.width = width
	}
	if height > 0 {
		e.height = height
	}
	e.clampView()
	e.notify()
}

// SetWindow places the window at start spanning visible blocks, expressed
// as the equivalent zoom factor. Both values are clamped the same way the
// zoom and pan operations clamp, so a request below the minimum window
// grows around the requested start. Auto-scroll is disabled.
func (e *Envelope) SetWindow(start, visible int) {
	n := len(e.mins)
	if visible < 1 || n == 0 {
		return
	}
	e.autoScroll = false
	z := float64(n) / float64(visible)
	if z < 1 {
		z = 1
	}
	if max := e.maxZoom(); z > max {
		z = max
	}
	e.zoom = z
	e.start = start
	e.clampView()
	e.notify()
}

// Recenter moves the window so block sits at its center, disabling
// auto-scroll. Used by the overview strip when a click lands outside the
// current view rectangle.
func (e *Envelope) Recenter(block int) {
	e.autoScroll = false
	e.start = block - e.visible()/2
	e.clampView()
	e.notify()
}

// SeekBlock emits a seek event for the given block, clamped into the take.
// The event carries the block index, the index of its first raw sample and
// the wall-clock offset of that sample from the start of the take.
func (e *Envelope) SeekBlock(block int) Seek {
	if n := len(e.mins); block >= n {
		block = n - 1
	}
	if block < 0 {
		block = 0
	}
	sample := int64(block) * int64(e.factor)
	s := Seek{
		Block:       block,
		SampleIndex: sample,
		Offset:      time.Duration(sample) * time.Second / time.Duration(e.rate),
	}
	if e.onSeek != nil {
		e.onSeek(s)
	}
	return s
}

// SeekRatio emits a seek event for the position at ratio r across the
// current window, so a click on the wave canvas maps to the take position
// under the pointer.
func (e *Envelope) SeekRatio(r float64) Seek {
	if math.IsNaN(r) || r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return e.SeekBlock(e.start + int(math.Round(r*float64(e.visible()))))
}
