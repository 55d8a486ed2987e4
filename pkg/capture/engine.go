// Package capture records microphone audio through a pluggable host backend.
//
// The central type is [Engine]: a session state machine that probes the host,
// selects an acquisition mode, gain-stages incoming batches and encodes each
// finished take as a mono 16-bit WAV. Two acquisition modes exist:
//
//   - [ModeRealtime] receives samples on the host's audio callback thread and
//     hands them off in batches without ever blocking the audio path.
//   - [ModePolling] drains a blocking stream in fixed time slices and encodes
//     incrementally into the recorder's own container.
//
// The engine prefers the realtime callback when the host supports it and the
// config requests it, and degrades to polling otherwise: at initialization
// when the capability is missing, at start when the callback stream fails to
// open, or mid-take when a started stream dies. Degradation never loses
// already-captured audio.
//
// This package lives under pkg/ because audio backends are expected to
// implement [Host]; configuration, observability and serving stay in internal
// packages.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/wavescope/pkg/pcm"
)

const (
	// MinGain and MaxGain bound the mic gain factor.
	MinGain = 1.0
	MaxGain = 6.0

	// defaultEventBuffer bounds the event stream. Emission drops events
	// (counted) when the consumer lags this far behind.
	defaultEventBuffer = 64

	// fallbackRate is used when the host cannot be probed for a native
	// sample rate. Acquisition will still fail loudly later if there is
	// genuinely no input device.
	fallbackRate = 48000
)

// Config carries the session parameters for [Engine.Initialize].
type Config struct {
	// SampleRate in Hz is a hint. Zero selects the input device's native
	// rate.
	SampleRate int

	// DeviceID selects the input device by case-insensitive substring match
	// against the host's device list. Empty selects the default input.
	DeviceID string

	// PreferRealtime requests the realtime callback mode when the host
	// supports it. Without it the engine always polls.
	PreferRealtime bool

	// EchoCancellation, NoiseSuppression and AutoGainControl are passed to
	// the host as processing hints.
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool

	// MicGain is the initial gain factor, clamped to [MinGain, MaxGain].
	// Zero means neutral gain.
	MicGain float64

	// PollInterval paces polling-mode reads. Zero means 100 ms.
	PollInterval time.Duration

	// BatchSize is the realtime staging threshold in samples. Zero means
	// 2048.
	BatchSize int
}

// Option configures an [Engine] during construction.
type Option func(*Engine)

// WithLogger sets the engine's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithEventBuffer sets the event stream's buffer size.
func WithEventBuffer(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.events = make(chan Event, n)
		}
	}
}

// strategy is one acquisition mode. Exactly one is active while Recording.
type strategy interface {
	mode() Mode
	start() error
	stop() error
}

// Engine is a microphone capture session.
//
// All exported methods are safe for concurrent use, but the event stream has
// a single consumer: [Engine.Events] always returns the same channel.
type Engine struct {
	host Host
	log  *slog.Logger

	events         chan Event
	droppedEvents  atomic.Uint64
	droppedBatches atomic.Uint64

	mu       sync.Mutex
	state    State
	mode     Mode
	cfg      Config
	rate     int
	device   *Device // resolved constraint, nil = default input
	gain     float64
	strat    strategy
	cont     *container
	pcmBuf   []float32
	total    int64
	started  time.Time
	hostInit bool
}

// New creates an [Engine] on top of host. The engine is Uninitialized until
// [Engine.Initialize] runs.
func New(host Host, opts ...Option) *Engine {
	e := &Engine{
		host:   host,
		log:    slog.Default(),
		events: make(chan Event, defaultEventBuffer),
		gain:   1,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Events returns the engine's event stream. The channel is never closed;
// consumers simply stop reading when they shut down. Emission never blocks
// the audio path: when the buffer is full the event is dropped and counted.
func (e *Engine) Events() <-chan Event { return e.events }

// State returns the session's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Mode returns the selected acquisition mode. Meaningful once Initialized.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SampleRate returns the resolved sample rate in Hz. Meaningful once
// Initialized.
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// MicGain returns the currently applied gain factor.
func (e *Engine) MicGain() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gain
}

// DroppedEvents reports how many events were discarded because the stream
// buffer was full.
func (e *Engine) DroppedEvents() uint64 { return e.droppedEvents.Load() }

// DroppedBatches reports how many realtime batches were discarded because
// the callback hand-off queue was full. Cumulative across takes.
func (e *Engine) DroppedBatches() uint64 { return e.droppedBatches.Load() }

// Initialize probes the audio host, resolves the session sample rate and
// selects the acquisition mode.
//
// The config sample rate is a hint: zero resolves to the input device's
// native rate. When the realtime callback is unavailable the engine selects
// polling and, if realtime had been requested, emits a diagnostic event
// wrapping [ErrCapabilityFallback].
//
// Initialize is idempotent while Initialized and returns [ErrInvalidState]
// while Recording. Calling it while Stopped re-initializes with the new
// config.
func (e *Engine) Initialize(ctx context.Context, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	switch e.state {
	case StateRecording:
		e.mu.Unlock()
		return fmt.Errorf("capture: initialize while recording: %w", ErrInvalidState)
	case StateInitialized:
		e.mu.Unlock()
		return nil
	}

	if !e.hostInit {
		if err := e.host.Init(); err != nil {
			e.mu.Unlock()
			e.emit(errorEvent(StageInitialize, err))
			return err
		}
		e.hostInit = true
	}

	cfg.MicGain = clampGain(cfg.MicGain)
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = e.nativeRate(cfg.DeviceID)
	}

	mode := ModePolling
	var capDiag *Event
	if cfg.PreferRealtime {
		if e.host.SupportsCallback() {
			mode = ModeRealtime
		} else {
			ev := errorEvent(StageInitialize,
				fmt.Errorf("capture: host has no realtime callback support: %w", ErrCapabilityFallback))
			capDiag = &ev
		}
	}

	e.cfg = cfg
	e.rate = rate
	e.mode = mode
	e.gain = cfg.MicGain
	e.state = StateInitialized
	e.mu.Unlock()

	if capDiag != nil {
		e.emit(*capDiag)
		e.log.Warn("realtime capture unavailable, selecting polling")
	}
	e.emit(Event{Kind: EventInitialized, SampleRate: rate, Mode: mode, Gain: cfg.MicGain})
	e.log.Info("capture initialized", "sample_rate", rate, "mode", mode, "gain", cfg.MicGain)
	return nil
}

// StartRecording acquires the microphone and begins a take.
//
// The device constraint is tried first; when acquisition with it fails the
// engine emits a diagnostic wrapping [ErrOverconstrained] and retries once
// against the default input. A realtime open failure degrades the take to
// polling with a diagnostic wrapping [ErrCapabilityFallback]. When no stream
// can be opened at all the take fails with [ErrPermission].
//
// Requires Initialized or Stopped; otherwise returns [ErrInvalidState].
func (e *Engine) StartRecording(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateInitialized && e.state != StateStopped {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("capture: start recording in state %s: %w", state, ErrInvalidState)
	}

	// Reset take counters before the first batch can arrive.
	e.pcmBuf = nil
	e.total = 0
	e.cont = nil
	e.started = time.Now()

	prev := e.state
	e.state = StateRecording

	strat, diags, err := e.openStrategy(ctx)
	if err != nil {
		e.state = prev
		e.mu.Unlock()
		for _, d := range diags {
			e.emit(d)
		}
		e.emit(errorEvent(StageStart, err))
		return err
	}
	e.strat = strat
	e.mode = strat.mode()
	mode, rate := e.mode, e.rate
	e.mu.Unlock()

	for _, d := range diags {
		e.emit(d)
	}
	e.emit(Event{Kind: EventRecordingStart, Mode: mode, SampleRate: rate})
	e.log.Info("recording started", "mode", mode, "sample_rate", rate)
	return nil
}

// StopRecording halts capture and encodes the take.
//
// Polling stop is synchronous: once StopRecording returns, no further
// data-available event is emitted. Realtime batches still queued at stop
// time are discarded. A take with zero captured samples returns
// [ErrEmptyRecording] and no container.
func (e *Engine) StopRecording(ctx context.Context) (*Recording, error) {
	_ = ctx

	e.mu.Lock()
	if e.state != StateRecording {
		state := e.state
		e.mu.Unlock()
		return nil, fmt.Errorf("capture: stop recording in state %s: %w", state, ErrInvalidState)
	}
	// Leave Recording before halting the strategy so a batch racing the
	// stop is dropped by onBatch rather than delivered after return.
	e.state = StateStopped
	strat := e.strat
	cont := e.cont
	e.strat = nil
	e.cont = nil
	mode := e.mode
	rate := e.rate
	total := e.total
	samples := e.pcmBuf
	started := e.started
	e.mu.Unlock()

	if strat != nil {
		if err := strat.stop(); err != nil {
			e.log.Warn("stopping capture stream", "error", err)
		}
	}

	if total == 0 {
		if cont != nil {
			cont.discard()
		}
		err := fmt.Errorf("capture: stop recording: %w", ErrEmptyRecording)
		e.emit(errorEvent(StageStop, err))
		return nil, err
	}

	var data []byte
	var err error
	if cont != nil {
		data, err = cont.finalize()
	} else {
		data, err = encodeTake(samples, rate)
	}
	if err != nil {
		e.emit(errorEvent(StageEncode, err))
		return nil, err
	}

	rec := &Recording{
		Data:        data,
		Duration:    time.Duration(total) * time.Second / time.Duration(rate),
		SampleCount: total,
		SampleRate:  rate,
		Mode:        mode,
	}
	e.emit(Event{Kind: EventRecordingStop, Recording: rec})
	e.log.Info("recording stopped",
		"mode", mode, "samples", total, "bytes", len(rec.Data),
		"duration", rec.Duration, "wall", time.Since(started))
	return rec, nil
}

// SetMicGain clamps g to [MinGain, MaxGain], applies it to the live gain
// stage and returns the applied value. A take in flight picks the new gain
// up on its next batch.
func (e *Engine) SetMicGain(g float64) float64 {
	g = clampGain(g)
	e.mu.Lock()
	e.gain = g
	e.mu.Unlock()
	e.emit(Event{Kind: EventGainChanged, Gain: g})
	e.log.Debug("mic gain changed", "gain", g)
	return g
}

// SetPollInterval updates the polling cadence. Takes effect on the next take.
func (e *Engine) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.cfg.PollInterval = d
	e.mu.Unlock()
}

// PcmWindow returns the accumulated samples covering [start, start+count),
// clipped to the available range. The returned slice aliases the engine's
// accumulation buffer and must be treated as read-only. Polling takes do not
// accumulate floats, so the window is empty in polling mode.
func (e *Engine) PcmWindow(start, count int64) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := int64(len(e.pcmBuf))
	if start < 0 {
		start = 0
	}
	if start >= n || count <= 0 {
		return nil
	}
	end := start + count
	if end > n {
		end = n
	}
	return e.pcmBuf[start:end:end]
}

// Dispose stops any active take, releases the host and resets the session to
// Uninitialized. Errors along the way are logged, not returned; Dispose is
// safe to call repeatedly and in any state.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.state == StateRecording {
		e.mu.Unlock()
		if _, err := e.StopRecording(context.Background()); err != nil && !errors.Is(err, ErrEmptyRecording) {
			e.log.Warn("stopping recording during dispose", "error", err)
		}
		e.mu.Lock()
	}
	if e.hostInit {
		if err := e.host.Terminate(); err != nil {
			e.log.Warn("terminating audio host", "error", err)
		}
		e.hostInit = false
	}
	e.pcmBuf = nil
	e.total = 0
	e.strat = nil
	e.cont = nil
	e.device = nil
	e.state = StateUninitialized
	e.mu.Unlock()
}

// onBatch is the single entry point for captured samples regardless of mode.
// It gain-stages the batch in place, advances the running sample count,
// feeds the mode's accumulation (float buffer for realtime, incremental
// container for polling) and emits a data-available event. Batches arriving
// after the take stopped are dropped.
func (e *Engine) onBatch(samples []float32) {
	e.mu.Lock()
	if e.state != StateRecording {
		e.mu.Unlock()
		return
	}
	if gain := float32(e.gain); gain != 1 {
		for i, s := range samples {
			samples[i] = pcm.Clamp(s * gain)
		}
	}
	start := e.total
	e.total += int64(len(samples))

	var writeErr error
	if e.mode == ModeRealtime {
		e.pcmBuf = append(e.pcmBuf, samples...)
	} else if e.cont != nil {
		writeErr = e.cont.write(samples)
	}
	batch := &Batch{Samples: samples, Origin: e.mode, Start: start, SampleRate: e.rate}
	e.mu.Unlock()

	if writeErr != nil {
		e.emit(errorEvent(StageEncode, writeErr))
		e.log.Error("encoding polling batch", "error", writeErr)
	}
	e.emit(Event{Kind: EventDataAvailable, Batch: batch})
}

// degrade switches a live realtime take to polling after its stream died.
// Already-captured audio and the running sample count survive the switch:
// the accumulated float batches are flushed into the new container before
// polling batches start appending.
func (e *Engine) degrade(cause error) {
	e.mu.Lock()
	if e.state != StateRecording || e.mode != ModeRealtime || e.strat == nil {
		e.mu.Unlock()
		return
	}
	old := e.strat
	e.strat = nil
	e.mu.Unlock()

	if err := old.stop(); err != nil {
		e.log.Warn("stopping failed realtime stream", "error", err)
	}
	e.emit(errorEvent(StageCapture,
		fmt.Errorf("capture: realtime stream failed, degrading to polling: %w: %v", ErrCapabilityFallback, cause)))
	e.log.Warn("realtime stream failed, degrading to polling", "error", cause)

	e.mu.Lock()
	if e.state != StateRecording {
		e.mu.Unlock()
		return
	}
	strat, diags, err := e.openPolling(context.Background(), e.device, e.pcmBuf)
	if err == nil {
		e.strat = strat
		e.mode = ModePolling
	}
	e.mu.Unlock()

	for _, d := range diags {
		e.emit(d)
	}
	if err != nil {
		e.emit(errorEvent(StageCapture,
			fmt.Errorf("capture: reacquire after realtime failure: %w: %v", ErrPermission, err)))
		e.log.Error("reacquiring microphone after realtime failure", "error", err)
	}
}

// pollFailed reports a dead polling stream. The take stays open so the
// caller can decide to stop and keep what was captured.
func (e *Engine) pollFailed(err error) {
	e.emit(errorEvent(StageCapture, fmt.Errorf("capture: polling stream failed: %w", err)))
	e.log.Error("polling stream failed", "error", err)
}

// openStrategy runs the acquisition chain: the preferred mode against the
// constrained device, then the default input, then the polling fallback.
// Called with e.mu held. Returns the started strategy plus any diagnostic
// events describing fallbacks taken along the way.
func (e *Engine) openStrategy(ctx context.Context) (strategy, []Event, error) {
	var diags []Event
	device, diag := e.resolveDevice()
	if diag != nil {
		diags = append(diags, *diag)
	}
	e.device = device

	if e.mode == ModeRealtime {
		strat, moreDiags, err := e.openRealtime(ctx, device)
		diags = append(diags, moreDiags...)
		if err == nil {
			return strat, diags, nil
		}
		if ctx.Err() != nil {
			return nil, diags, err
		}
		diags = append(diags, errorEvent(StageStart,
			fmt.Errorf("capture: realtime callback unavailable: %w: %v", ErrCapabilityFallback, err)))
	}

	strat, moreDiags, err := e.openPolling(ctx, device, nil)
	diags = append(diags, moreDiags...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, diags, err
		}
		return nil, diags, fmt.Errorf("capture: acquire microphone: %w: %v", ErrPermission, err)
	}
	return strat, diags, nil
}

// openRealtime tries the callback mode against each acquisition candidate.
// Called with e.mu held.
func (e *Engine) openRealtime(ctx context.Context, device *Device) (strategy, []Event, error) {
	var diags []Event
	var lastErr error
	for _, dev := range candidatesFor(device) {
		if err := ctx.Err(); err != nil {
			return nil, diags, err
		}
		strat := newRealtimeStrategy(e.host, e.streamConfig(dev), e.cfg.BatchSize, e.onBatch, e.degrade, &e.droppedBatches)
		if err := strat.start(); err != nil {
			lastErr = err
			if dev != nil {
				diags = append(diags, errorEvent(StageStart,
					fmt.Errorf("capture: open realtime stream on %q: %w: %v", dev.ID, ErrOverconstrained, err)))
			}
			continue
		}
		return strat, diags, nil
	}
	return nil, diags, lastErr
}

// openPolling tries the polling mode against each acquisition candidate,
// creating the incremental container first so no batch can outrun it. A
// non-empty prefix (audio captured before a mid-take degrade) is flushed
// into the container before the stream starts. Called with e.mu held.
func (e *Engine) openPolling(ctx context.Context, device *Device, prefix []float32) (strategy, []Event, error) {
	var diags []Event
	var lastErr error
	for _, dev := range candidatesFor(device) {
		if err := ctx.Err(); err != nil {
			return nil, diags, err
		}
		cont, err := newContainer(e.rate)
		if err != nil {
			return nil, diags, err
		}
		if len(prefix) > 0 {
			if err := cont.write(prefix); err != nil {
				cont.discard()
				return nil, diags, err
			}
		}
		strat := newPollingStrategy(e.host, e.streamConfig(dev), e.cfg.PollInterval, e.onBatch, e.pollFailed)
		if err := strat.start(); err != nil {
			cont.discard()
			lastErr = err
			if dev != nil {
				diags = append(diags, errorEvent(StageStart,
					fmt.Errorf("capture: open polling stream on %q: %w: %v", dev.ID, ErrOverconstrained, err)))
			}
			continue
		}
		e.cont = cont
		return strat, diags, nil
	}
	return nil, diags, lastErr
}

// resolveDevice maps the configured device constraint to a live device.
// Returns a diagnostic event when the constraint matches nothing. Called
// with e.mu held.
func (e *Engine) resolveDevice() (*Device, *Event) {
	if e.cfg.DeviceID == "" {
		return nil, nil
	}
	devices, err := e.host.Devices()
	if err == nil {
		if dev := MatchDevice(devices, e.cfg.DeviceID); dev != nil {
			return dev, nil
		}
	}
	ev := errorEvent(StageStart,
		fmt.Errorf("capture: device %q not found: %w", e.cfg.DeviceID, ErrOverconstrained))
	return nil, &ev
}

// nativeRate probes the host for the native sample rate of the selected
// input.
func (e *Engine) nativeRate(deviceID string) int {
	if deviceID != "" {
		if devices, err := e.host.Devices(); err == nil {
			if dev := MatchDevice(devices, deviceID); dev != nil && dev.DefaultSampleRate > 0 {
				return int(dev.DefaultSampleRate)
			}
		}
	}
	if dev, err := e.host.DefaultDevice(); err == nil && dev.DefaultSampleRate > 0 {
		return int(dev.DefaultSampleRate)
	}
	return fallbackRate
}

func (e *Engine) streamConfig(dev *Device) StreamConfig {
	return StreamConfig{
		Device:           dev,
		SampleRate:       e.rate,
		EchoCancellation: e.cfg.EchoCancellation,
		NoiseSuppression: e.cfg.NoiseSuppression,
		AutoGainControl:  e.cfg.AutoGainControl,
	}
}

// emit delivers ev without blocking; when the stream buffer is full the
// event is dropped and counted.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.droppedEvents.Add(1)
	}
}

func errorEvent(stage Stage, err error) Event {
	return Event{Kind: EventError, Stage: stage, Err: err}
}

// candidatesFor lists acquisition attempts in order: the constrained device
// when one resolved, then the default input.
func candidatesFor(device *Device) []*Device {
	if device == nil {
		return []*Device{nil}
	}
	return []*Device{device, nil}
}

// encodeTake wraps the accumulated realtime batches in a WAV container.
func encodeTake(samples []float32, rate int) ([]byte, error) {
	data, err := pcm.EncodeWAVBytes(samples, rate)
	if err != nil {
		return nil, fmt.Errorf("capture: encode take: %w", err)
	}
	return data, nil
}

// clampGain normalizes a requested gain factor into [MinGain, MaxGain].
// Zero and NaN select the neutral gain.
func clampGain(g float64) float64 {
	switch {
	case math.IsNaN(g), g < MinGain:
		return MinGain
	case g > MaxGain:
		return MaxGain
	default:
		return g
	}
}
