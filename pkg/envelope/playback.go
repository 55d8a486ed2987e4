package envelope

import "time"

// playback tracks the wall-clock anchor of the current playhead. Positions
// are derived on demand, so no timer runs between queries.
type playback struct {
	playing    bool
	startBlock int
	startedAt  time.Time
}

// StartPlayback anchors the playhead at startBlock as of the given instant.
func (e *Envelope) StartPlayback(startBlock int, at time.Time) {
	if startBlock < 0 {
		startBlock = 0
	}
	e.pb = playback{playing: true, startBlock: startBlock, startedAt: at}
}

// StopPlayback clears the playhead.
func (e *Envelope) StopPlayback() {
	e.pb = playback{}
}

// PlaybackPosition returns the playhead in fractional blocks as of the given
// instant, advancing from the anchor at the source sample rate. The second
// return is false when nothing is playing.
func (e *Envelope) PlaybackPosition(at time.Time) (float64, bool) {
	if !e.pb.playing {
		return 0, false
	}
	elapsed := at.Sub(e.pb.startedAt).Seconds()
	pos := float64(e.pb.startBlock) + elapsed*float64(e.rate)/float64(e.factor)
	if pos < 0 {
		pos = 0
	}
	return pos, true
}

// Playing reports whether a playhead is active.
func (e *Envelope) Playing() bool { return e.pb.playing }
