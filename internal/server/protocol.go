package server

import (
	"fmt"
	"math"

	"github.com/MrWong99/wavescope/internal/stats"
	"github.com/MrWong99/wavescope/pkg/envelope"
)

// Command types accepted from monitor clients. Anything else is discarded
// with a debug log; a bad command must never take the stream down.
const (
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdGain       = "gain"
	CmdZoom       = "zoom"
	CmdPan        = "pan"
	CmdSeek       = "seek"
	CmdAutoScroll = "autoscroll"
	CmdResize     = "resize"
)

// Command is an interaction request sent by a monitor client over the
// stream socket. Type selects the operation and the remaining fields are
// its parameters; unused fields stay zero.
type Command struct {
	Type string `json:"type"`
	// Value is the target mic gain for "gain".
	Value float64 `json:"value,omitempty"`
	// Steps is the wheel step count for "zoom". Positive zooms in.
	Steps int `json:"steps,omitempty"`
	// AnchorRatio is the canvas position kept stable while zooming, 0..1.
	AnchorRatio float64 `json:"anchor_ratio,omitempty"`
	// Pixels is the horizontal drag distance for "pan".
	Pixels float64 `json:"pixels,omitempty"`
	// Ratio is the click position for "seek", 0..1 across the canvas.
	Ratio float64 `json:"ratio,omitempty"`
	// Enabled toggles follow mode for "autoscroll".
	Enabled bool `json:"enabled,omitempty"`
	// Width and Height are the new canvas size for "resize".
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Validate checks that the command type is known and its parameters are
// usable. Range clamping is left to the envelope and engine; this only
// rejects values that have no sensible interpretation at all.
func (c Command) Validate() error {
	switch c.Type {
	case CmdStart, CmdStop, CmdAutoScroll:
		return nil
	case CmdGain:
		if c.Value <= 0 || math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			return fmt.Errorf("gain value %v out of range", c.Value)
		}
		return nil
	case CmdZoom:
		if c.Steps == 0 {
			return fmt.Errorf("zoom with zero steps")
		}
		return nil
	case CmdPan:
		if math.IsNaN(c.Pixels) || math.IsInf(c.Pixels, 0) {
			return fmt.Errorf("pan distance %v not finite", c.Pixels)
		}
		return nil
	case CmdSeek:
		if math.IsNaN(c.Ratio) || math.IsInf(c.Ratio, 0) {
			return fmt.Errorf("seek ratio %v not finite", c.Ratio)
		}
		return nil
	case CmdResize:
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("resize to %dx%d", c.Width, c.Height)
		}
		return nil
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
}

// ViewJSON is the wire form of an envelope view window.
type ViewJSON struct {
	Start      int     `json:"start"`
	Visible    int     `json:"visible"`
	Zoom       float64 `json:"zoom"`
	AutoScroll bool    `json:"auto_scroll"`
}

// ViewFrom converts an envelope view to its wire form.
func ViewFrom(v envelope.View) ViewJSON {
	return ViewJSON{
		Start:      v.Start,
		Visible:    v.Visible,
		Zoom:       v.Zoom,
		AutoScroll: v.AutoScroll,
	}
}

// SessionSnapshot describes the capture session as a whole. It is served
// at /v1/session and doubles as the payload of the hello message a client
// receives right after connecting to /v1/stream.
type SessionSnapshot struct {
	State            string   `json:"state"`
	Mode             string   `json:"mode"`
	SampleRate       int      `json:"sample_rate"`
	DecimationFactor int      `json:"decimation_factor"`
	MicGain          float64  `json:"mic_gain"`
	BlockCount       int      `json:"block_count"`
	View             ViewJSON `json:"view"`
}

// EnvelopeSnapshot carries the full decimated waveform, served at
// /v1/envelope. Mins and Maxs are parallel slices of BlockCount entries.
type EnvelopeSnapshot struct {
	BlockCount int       `json:"block_count"`
	Mins       []float32 `json:"mins"`
	Maxs       []float32 `json:"maxs"`
	View       ViewJSON  `json:"view"`
}

// helloMessage is the first frame pushed to every new stream client.
type helloMessage struct {
	Type string `json:"type"`
	SessionSnapshot
}

// eventMessage relays an engine lifecycle event. Fields beyond Kind are
// populated per kind: initialized and recording-start carry mode and rate,
// mic-gain-changed carries the clamped gain, error carries stage and text.
type eventMessage struct {
	Type       string  `json:"type"`
	Kind       string  `json:"kind"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Mode       string  `json:"mode,omitempty"`
	Gain       float64 `json:"gain,omitempty"`
	Stage      string  `json:"stage,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// blocksMessage is the incremental envelope delta: the blocks appended
// since the previous push, starting at index Start.
type blocksMessage struct {
	Type  string    `json:"type"`
	Start int       `json:"start"`
	Mins  []float32 `json:"mins"`
	Maxs  []float32 `json:"maxs"`
}

type viewMessage struct {
	Type string   `json:"type"`
	View ViewJSON `json:"view"`
}

type seekMessage struct {
	Type        string  `json:"type"`
	Block       int     `json:"block"`
	SampleIndex int64   `json:"sample_index"`
	OffsetMs    float64 `json:"offset_ms"`
}

// recordingMessage summarizes a finished take. The encoded WAV itself
// never travels over the socket; clients that want the bytes fetch the
// file at Path out of band.
type recordingMessage struct {
	Type        string  `json:"type"`
	SizeBytes   int     `json:"size_bytes"`
	DurationMs  float64 `json:"duration_ms"`
	SampleCount int64   `json:"sample_count"`
	SampleRate  int     `json:"sample_rate"`
	Mode        string  `json:"mode"`
	Path        string  `json:"path,omitempty"`
}

type statsMessage struct {
	Type  string         `json:"type"`
	Stats stats.Snapshot `json:"stats"`
}

// errorMessage answers an inbound frame the server refused to act on.
type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
