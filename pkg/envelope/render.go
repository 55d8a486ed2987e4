package envelope

// Stroke is one vertical min/max line of a rendered waveform: the column it
// occupies and the amplitude range of the blocks mapped onto that column.
type Stroke struct {
	X   int
	Min float32
	Max float32
}

// Strokes maps the block window [start, start+visible) onto a raster of the
// given pixel width, one stroke per column. When several blocks share a
// column their extrema are merged; when the window runs past the available
// blocks the uncovered columns are omitted, so the result may be shorter
// than width. Both the render mirror and the overview strip draw from this.
func Strokes(mins, maxs []float32, start, visible, width int) []Stroke {
	if visible <= 0 || width <= 0 || start >= len(mins) {
		return nil
	}
	if start < 0 {
		start = 0
	}
	strokes := make([]Stroke, 0, width)
	for x := 0; x < width; x++ {
		lo := start + x*visible/width
		hi := start + (x+1)*visible/width
		if hi <= lo {
			hi = lo + 1
		}
		if lo >= len(mins) {
			break
		}
		if hi > len(mins) {
			hi = len(mins)
		}
		mn := mins[lo]
		mx := maxs[lo]
		for i := lo + 1; i < hi; i++ {
			if mins[i] < mn {
				mn = mins[i]
			}
			if maxs[i] > mx {
				mx = maxs[i]
			}
		}
		strokes = append(strokes, Stroke{X: x, Min: mn, Max: mx})
	}
	return strokes
}

// ViewStrokes renders the current window at the envelope's canvas width.
func (e *Envelope) ViewStrokes() []Stroke {
	v := e.View()
	return Strokes(e.mins, e.maxs, v.Start, v.Visible, e.width)
}

// OverviewStrokes renders the entire take at the given pixel width,
// regardless of the current window.
func (e *Envelope) OverviewStrokes(width int) []Stroke {
	return Strokes(e.mins, e.maxs, 0, len(e.mins), width)
}
