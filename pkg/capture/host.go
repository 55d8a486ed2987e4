package capture

import "strings"

// Device describes one input-capable endpoint exposed by a [Host].
type Device struct {
	// ID uniquely identifies the device to its host. The PortAudio host
	// uses the device name as its ID.
	ID string

	// Name is the human-readable device name.
	Name string

	// MaxInputChannels as reported by the host.
	MaxInputChannels int

	// DefaultSampleRate in Hz as reported by the host.
	DefaultSampleRate float64
}

// StreamConfig carries the parameters for opening a capture stream.
type StreamConfig struct {
	// Device to capture from, or nil for the host's default input.
	Device *Device

	// SampleRate in Hz to request from the host.
	SampleRate int

	// EchoCancellation, NoiseSuppression and AutoGainControl are processing
	// hints. Hosts without the corresponding stages ignore them.
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Stream is an open capture stream's lifecycle.
type Stream interface {
	// Start begins sample delivery.
	Start() error

	// Stop halts delivery, draining buffered samples first.
	Stop() error

	// Abort halts delivery immediately, discarding buffered samples. A
	// blocked read returns with an error.
	Abort() error

	// Close releases the stream's host resources. The stream must not be
	// used afterwards.
	Close() error
}

// BlockingStream is a capture stream drained by synchronous reads.
type BlockingStream interface {
	Stream

	// Read blocks until one buffer of samples is available and returns a
	// copy the caller owns.
	Read() ([]float32, error)
}

// FallibleStream is optionally implemented by streams that can detect
// asynchronous death, such as the device disappearing mid-capture. The engine
// degrades a realtime take to polling when its stream reports a failure.
type FallibleStream interface {
	Stream

	// Failed returns a channel that delivers at most one error when the
	// stream dies.
	Failed() <-chan error
}

// Host abstracts the audio backend so the engine can run against PortAudio in
// production and an in-memory fake in tests.
//
// Implementations must be safe for concurrent use.
type Host interface {
	// Init prepares the backend. Calls nest: every successful Init must
	// eventually be paired with a Terminate.
	Init() error

	// Terminate releases the backend.
	Terminate() error

	// SupportsCallback reports whether OpenCallback is usable on this host.
	SupportsCallback() bool

	// Devices enumerates the input-capable devices currently visible.
	Devices() ([]Device, error)

	// DefaultDevice returns the host's default input device.
	DefaultDevice() (*Device, error)

	// OpenCallback opens a realtime stream that invokes fn on the host's
	// audio thread with each captured quantum. fn must not block and must
	// not retain the slice.
	OpenCallback(cfg StreamConfig, fn func([]float32)) (Stream, error)

	// OpenBlocking opens a stream drained by Read calls of frames samples
	// each.
	OpenBlocking(cfg StreamConfig, frames int) (BlockingStream, error)
}

// MatchDevice returns the first device whose ID or name contains want,
// compared case-insensitively, or nil when nothing matches.
func MatchDevice(devices []Device, want string) *Device {
	if want == "" {
		return nil
	}
	want = strings.ToLower(want)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].ID), want) ||
			strings.Contains(strings.ToLower(devices[i].Name), want) {
			return &devices[i]
		}
	}
	return nil
}
