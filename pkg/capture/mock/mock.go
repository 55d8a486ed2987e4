// Package mock provides in-memory mock implementations of [capture.Host] and
// its stream interfaces for use in unit tests.
//
// All mocks are safe for concurrent use, record method calls, and expose
// exported fields for configuring behavior.
//
// Example:
//
//	host := &mock.Host{}
//	eng := capture.New(host)
//	_ = eng.Initialize(ctx, capture.Config{PreferRealtime: true})
//	_ = eng.StartRecording(ctx)
//	host.CallbackStreams[0].Feed(make([]float32, 2048))
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/wavescope/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ capture.Host           = (*Host)(nil)
	_ capture.Stream         = (*CallbackStream)(nil)
	_ capture.FallibleStream = (*CallbackStream)(nil)
	_ capture.BlockingStream = (*BlockingStream)(nil)
)

// ─── Host ─────────────────────────────────────────────────────────────────────

// Host is a mock [capture.Host].
type Host struct {
	mu sync.Mutex

	// NoCallback disables realtime support: SupportsCallback reports false.
	NoCallback bool

	// InitError is returned by Init.
	InitError error

	// TerminateError is returned by Terminate.
	TerminateError error

	// DevicesResult is returned by Devices.
	DevicesResult []capture.Device

	// DevicesError is returned by Devices.
	DevicesError error

	// DefaultDeviceResult is returned by DefaultDevice. When nil (and no
	// DefaultDeviceError is set) a 48 kHz mono device named "mock" is
	// returned.
	DefaultDeviceResult *capture.Device

	// DefaultDeviceError is returned by DefaultDevice.
	DefaultDeviceError error

	// OpenCallbackError makes every OpenCallback fail.
	OpenCallbackError error

	// OpenBlockingError makes every OpenBlocking fail.
	OpenBlockingError error

	// FailDevice makes OpenCallback and OpenBlocking fail whenever the
	// stream config names a device with this ID, leaving other devices and
	// the default input usable.
	FailDevice string

	// FailDeviceError is the error returned for FailDevice opens. A generic
	// error is used when unset.
	FailDeviceError error

	// StartCallbackError is copied into streams opened by OpenCallback and
	// returned by their Start.
	StartCallbackError error

	// StartBlockingError is copied into streams opened by OpenBlocking and
	// returned by their Start.
	StartBlockingError error

	// CallbackStreams records every stream opened by OpenCallback.
	CallbackStreams []*CallbackStream

	// BlockingStreams records every stream opened by OpenBlocking.
	BlockingStreams []*BlockingStream

	// OpenCallbackConfigs records the configs passed to OpenCallback.
	OpenCallbackConfigs []capture.StreamConfig

	// OpenBlockingConfigs records the configs passed to OpenBlocking.
	OpenBlockingConfigs []capture.StreamConfig

	// CallCountInit records how many times Init was called.
	CallCountInit int

	// CallCountTerminate records how many times Terminate was called.
	CallCountTerminate int
}

// Init records the call and returns InitError.
func (h *Host) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountInit++
	return h.InitError
}

// Terminate records the call and returns TerminateError.
func (h *Host) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountTerminate++
	return h.TerminateError
}

// SupportsCallback reports the inverse of NoCallback.
func (h *Host) SupportsCallback() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.NoCallback
}

// Devices returns the configured device list.
func (h *Host) Devices() ([]capture.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.DevicesResult, h.DevicesError
}

// DefaultDevice returns the configured default input.
func (h *Host) DefaultDevice() (*capture.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DefaultDeviceError != nil {
		return nil, h.DefaultDeviceError
	}
	if h.DefaultDeviceResult != nil {
		d := *h.DefaultDeviceResult
		return &d, nil
	}
	return &capture.Device{ID: "mock", Name: "mock", MaxInputChannels: 1, DefaultSampleRate: 48000}, nil
}

// OpenCallback records the config and returns a new [CallbackStream], or the
// configured error.
func (h *Host) OpenCallback(cfg capture.StreamConfig, fn func([]float32)) (capture.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OpenCallbackConfigs = append(h.OpenCallbackConfigs, cfg)
	if h.OpenCallbackError != nil {
		return nil, h.OpenCallbackError
	}
	if err := h.failFor(cfg); err != nil {
		return nil, err
	}
	s := &CallbackStream{
		fn:       fn,
		failed:   make(chan error, 1),
		startErr: h.StartCallbackError,
	}
	h.CallbackStreams = append(h.CallbackStreams, s)
	return s, nil
}

// OpenBlocking records the config and returns a new [BlockingStream], or the
// configured error.
func (h *Host) OpenBlocking(cfg capture.StreamConfig, frames int) (capture.BlockingStream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.OpenBlockingConfigs = append(h.OpenBlockingConfigs, cfg)
	if h.OpenBlockingError != nil {
		return nil, h.OpenBlockingError
	}
	if err := h.failFor(cfg); err != nil {
		return nil, err
	}
	s := &BlockingStream{
		Frames:   frames,
		reads:    make(chan []float32, 64),
		aborted:  make(chan struct{}),
		startErr: h.StartBlockingError,
	}
	h.BlockingStreams = append(h.BlockingStreams, s)
	return s, nil
}

func (h *Host) failFor(cfg capture.StreamConfig) error {
	if h.FailDevice == "" || cfg.Device == nil || cfg.Device.ID != h.FailDevice {
		return nil
	}
	if h.FailDeviceError != nil {
		return h.FailDeviceError
	}
	return errors.New("mock: device unavailable")
}

// ─── CallbackStream ───────────────────────────────────────────────────────────

// CallbackStream is a mock realtime stream. Tests drive it by calling
// [CallbackStream.Feed] with raw quanta, which invokes the capture callback
// synchronously on the caller's goroutine, and [CallbackStream.Fail] to
// simulate asynchronous stream death.
type CallbackStream struct {
	fn       func([]float32)
	failed   chan error
	startErr error

	mu      sync.Mutex
	started bool
	closed  bool
}

// Start marks the stream running.
func (s *CallbackStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

// Stop marks the stream stopped.
func (s *CallbackStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Abort marks the stream stopped.
func (s *CallbackStream) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Close marks the stream closed.
func (s *CallbackStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Started reports whether the stream is currently running.
func (s *CallbackStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Feed invokes the capture callback with quantum, as the host audio thread
// would. It is a no-op unless the stream is started.
func (s *CallbackStream) Feed(quantum []float32) {
	s.mu.Lock()
	ok := s.started && !s.closed
	s.mu.Unlock()
	if ok {
		s.fn(quantum)
	}
}

// Fail delivers err on the Failed channel, simulating stream death.
func (s *CallbackStream) Fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

// Failed returns the stream's death channel.
func (s *CallbackStream) Failed() <-chan error { return s.failed }

// ─── BlockingStream ───────────────────────────────────────────────────────────

// BlockingStream is a mock blocking stream. Tests push sample buffers with
// [BlockingStream.Push]; each Read returns one pushed buffer, blocking until
// one is available or the stream is aborted.
type BlockingStream struct {
	// Frames is the read size the stream was opened with.
	Frames int

	reads    chan []float32
	aborted  chan struct{}
	startErr error

	mu        sync.Mutex
	started   bool
	closed    bool
	abortOnce sync.Once
}

// Start marks the stream running.
func (s *BlockingStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

// Stop marks the stream stopped. A blocked Read stays blocked; the engine
// aborts before stopping.
func (s *BlockingStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Abort unblocks any pending Read with an error.
func (s *BlockingStream) Abort() error {
	s.abortOnce.Do(func() { close(s.aborted) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Close marks the stream closed.
func (s *BlockingStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Read returns the next pushed buffer, or an error once the stream has been
// aborted.
func (s *BlockingStream) Read() ([]float32, error) {
	select {
	case buf := <-s.reads:
		return buf, nil
	case <-s.aborted:
		return nil, errors.New("mock: stream aborted")
	}
}

// Push queues one buffer for delivery through Read.
func (s *BlockingStream) Push(samples []float32) {
	select {
	case s.reads <- samples:
	case <-s.aborted:
	}
}
