package capture

import "time"

// State is the lifecycle phase of a capture session.
//
// A session starts Uninitialized, becomes Initialized once the audio host has
// been probed and a mode selected, moves between Recording and Stopped as
// takes start and finish, and returns to Uninitialized after [Engine.Dispose].
type State int

const (
	// StateUninitialized is the zero state: no host resources are held.
	StateUninitialized State = iota

	// StateInitialized means the host has been probed, the sample rate
	// resolved and the capture mode selected, but no stream is open.
	StateInitialized

	// StateRecording means a capture stream is open and batches are flowing.
	StateRecording

	// StateStopped means a take has finished. A new take may start without
	// re-initializing.
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Mode identifies how samples are acquired from the host.
type Mode int

const (
	// ModeRealtime delivers samples through the host's audio callback; a
	// batch is handed off as soon as the staging buffer fills.
	ModeRealtime Mode = iota

	// ModePolling drains a blocking stream in fixed time slices. Downstream
	// consumers cannot tell polling batches from realtime ones except by the
	// origin tag.
	ModePolling
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime-callback"
	case ModePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// Batch is the atomic unit of capture transport: one contiguous run of mono
// float32 samples in [-1, 1], already gain-staged by the engine.
type Batch struct {
	// Samples holds the batch audio. The slice is shared with every event
	// consumer and must be treated as read-only.
	Samples []float32

	// Origin is the acquisition mode that produced the batch.
	Origin Mode

	// Start is the running sample index of Samples[0], counted from the
	// beginning of the current take.
	Start int64

	// SampleRate of the samples in Hz, as resolved at initialization.
	SampleRate int
}

// Recording is the finished product of a take.
type Recording struct {
	// Data is the encoded WAV container (44-byte header plus 16-bit PCM).
	Data []byte

	// Duration of the take, derived from the captured sample count.
	Duration time.Duration

	// SampleCount is the total number of mono samples captured.
	SampleCount int64

	// SampleRate of the take in Hz.
	SampleRate int

	// Mode is the acquisition mode the take finished in. A take that
	// degraded mid-flight reports ModePolling.
	Mode Mode

	// Path is filled in by a sink once the container has been persisted.
	Path string
}

// EventKind classifies entries on the engine's event stream.
type EventKind string

const (
	// EventInitialized fires once the host has been probed and a capture
	// mode selected. Carries SampleRate, Mode and Gain.
	EventInitialized EventKind = "initialized"

	// EventRecordingStart fires when a take begins. Carries Mode and
	// SampleRate.
	EventRecordingStart EventKind = "recording-start"

	// EventDataAvailable fires once per captured batch. Carries Batch.
	EventDataAvailable EventKind = "data-available"

	// EventRecordingStop fires when a take has been encoded. Carries
	// Recording.
	EventRecordingStop EventKind = "recording-stop"

	// EventGainChanged fires when the mic gain changes. Carries the clamped
	// Gain.
	EventGainChanged EventKind = "mic-gain-changed"

	// EventError reports a failure or a recovered degradation. Carries
	// Stage and Err. Recovered degradations (capability or device fallback)
	// appear here as diagnostics without failing the triggering operation.
	EventError EventKind = "error"
)

// Stage locates an [EventError] in the capture pipeline.
type Stage string

const (
	StageInitialize Stage = "initialize"
	StageStart      Stage = "start"
	StageCapture    Stage = "capture"
	StageStop       Stage = "stop"
	StageEncode     Stage = "encode"
	StageSave       Stage = "save"
)

// Event is one entry on the engine's event stream. Kind determines which of
// the remaining fields are meaningful.
type Event struct {
	Kind EventKind

	// SampleRate and Mode describe the session for initialized and
	// recording-start events.
	SampleRate int
	Mode       Mode

	// Gain is the clamped mic gain for initialized and mic-gain-changed
	// events.
	Gain float64

	// Batch is set for data-available events.
	Batch *Batch

	// Recording is set for recording-stop events.
	Recording *Recording

	// Stage and Err are set for error events.
	Stage Stage
	Err   error
}
