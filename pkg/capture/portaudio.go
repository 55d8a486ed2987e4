package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Compile-time interface assertion.
var _ Host = (*PortAudioHost)(nil)

// PortAudioHost is the production [Host] backed by PortAudio.
//
// PortAudio exposes no echo-cancellation, noise-suppression or AGC stages, so
// the processing hints in [StreamConfig] are accepted and ignored.
type PortAudioHost struct{}

// NewPortAudioHost returns an uninitialized PortAudio host. Call
// [PortAudioHost.Init] before opening streams.
func NewPortAudioHost() *PortAudioHost { return &PortAudioHost{} }

// Init initializes the PortAudio library. PortAudio reference-counts
// initialization, so nested Init/Terminate pairs are safe.
func (h *PortAudioHost) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio library.
func (h *PortAudioHost) Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("capture: terminate portaudio: %w", err)
	}
	return nil
}

// SupportsCallback reports true: PortAudio streams can always deliver through
// the audio callback.
func (h *PortAudioHost) SupportsCallback() bool { return true }

// Devices enumerates the input-capable PortAudio devices.
func (h *PortAudioHost) Devices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	var out []Device
	for _, info := range infos {
		if info.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			ID:                info.Name,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		})
	}
	return out, nil
}

// DefaultDevice returns the system default input device.
func (h *PortAudioHost) DefaultDevice() (*Device, error) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("capture: default input device: %w", err)
	}
	return &Device{
		ID:                info.Name,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
	}, nil
}

// OpenCallback opens a low-latency mono input stream that invokes fn on the
// PortAudio callback thread. The host picks the quantum size.
func (h *PortAudioHost) OpenCallback(cfg StreamConfig, fn func([]float32)) (Stream, error) {
	info, err := resolveInfo(cfg.Device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	stream, err := portaudio.OpenStream(params, func(in []float32) { fn(in) })
	if err != nil {
		return nil, fmt.Errorf("capture: open callback stream: %w", err)
	}
	return &paStream{stream: stream}, nil
}

// OpenBlocking opens a high-latency mono input stream read in buffers of
// frames samples.
func (h *PortAudioHost) OpenBlocking(cfg StreamConfig, frames int) (BlockingStream, error) {
	info, err := resolveInfo(cfg.Device)
	if err != nil {
		return nil, err
	}
	buf := make([]float32, frames)
	params := portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = frames
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("capture: open blocking stream: %w", err)
	}
	return &paBlockingStream{paStream: paStream{stream: stream}, buf: buf}, nil
}

// resolveInfo maps a Device back to its PortAudio entry, falling back to the
// default input when dev is nil.
func resolveInfo(dev *Device) (*portaudio.DeviceInfo, error) {
	if dev == nil {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: default input device: %w", err)
		}
		return info, nil
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	for _, info := range infos {
		if info.Name == dev.ID && info.MaxInputChannels > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("capture: device %q: %w", dev.ID, ErrOverconstrained)
}

// paStream adapts [*portaudio.Stream] to [Stream].
type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Start() error { return s.stream.Start() }
func (s *paStream) Stop() error  { return s.stream.Stop() }
func (s *paStream) Abort() error { return s.stream.Abort() }
func (s *paStream) Close() error { return s.stream.Close() }

// paBlockingStream adds buffered reads on top of [paStream].
type paBlockingStream struct {
	paStream
	buf []float32
}

// Read blocks until the stream buffer fills and returns a copy of it.
func (s *paBlockingStream) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("capture: read stream: %w", err)
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	return out, nil
}
