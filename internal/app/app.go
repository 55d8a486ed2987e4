// Package app wires all wavescope subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the session coordinator and the monitor server,
// and Shutdown tears everything down in order.
//
// All envelope, mirror and playback state is owned by the coordinator
// goroutine. Engine events, monitor commands and snapshot queries funnel
// into it over channels, so the waveform path runs without a lock.
//
// For testing, inject doubles via functional options (WithHost, WithSink,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wavescope/internal/config"
	"github.com/MrWong99/wavescope/internal/health"
	"github.com/MrWong99/wavescope/internal/observe"
	"github.com/MrWong99/wavescope/internal/resilience"
	"github.com/MrWong99/wavescope/internal/server"
	"github.com/MrWong99/wavescope/internal/sink"
	"github.com/MrWong99/wavescope/internal/stats"
	"github.com/MrWong99/wavescope/pkg/capture"
	"github.com/MrWong99/wavescope/pkg/envelope"
	"github.com/MrWong99/wavescope/pkg/envelope/mirror"
)

const (
	// queryQueue bounds pending snapshot queries into the coordinator.
	queryQueue = 16

	// statsInterval paces periodic stats pushes to monitor clients.
	statsInterval = 2 * time.Second
)

// ErrStopped is returned for snapshot queries once the session coordinator
// has exited.
var ErrStopped = errors.New("app: session coordinator stopped")

// App owns all subsystem lifetimes and orchestrates the wavescope capture
// pipeline.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	host     capture.Host
	engine   *capture.Engine
	env      *envelope.Envelope
	mir      *mirror.Mirror
	saver    sink.Sink
	breaker  *resilience.CircuitBreaker
	hub      *server.Hub
	srv      *server.Server
	pipeline *stats.Pipeline
	metrics  *observe.Metrics
	watcher  *config.Watcher

	painter   mirror.Painter
	level     *slog.LevelVar
	watchPath string
	sinkName  string

	// Coordinator plumbing. queries carries snapshot closures executed on
	// the coordinator goroutine; coordDone closes when it exits.
	queries   chan func()
	coordDone chan struct{}

	// Coordinator-owned counters. Touched only from coordinate.
	lastBatch time.Time
	dropSeen  uint64

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

var _ server.SessionSource = (*App)(nil)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHost injects a capture host instead of the PortAudio backend.
func WithHost(h capture.Host) Option {
	return func(a *App) { a.host = h }
}

// WithSink injects a recording sink instead of building the configured
// fallback chain.
func WithSink(s sink.Sink) Option {
	return func(a *App) { a.saver = s }
}

// WithPainter injects a mirror painter, for embedding UIs and tests. The
// mirror runs whenever a painter is injected, regardless of render.mirror.
func WithPainter(p mirror.Painter) Option {
	return func(a *App) { a.painter = p }
}

// WithLogLevelVar hands the app the level var backing the process logger
// so config reloads can retune verbosity.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigFile enables hot reload by watching the given config file.
func WithConfigFile(path string) Option {
	return func(a *App) { a.watchPath = path }
}

// WithMetrics injects a metrics set instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: the capture host is
// probed and the engine initialised, the envelope and render mirror are
// sized from the resolved sample rate, the sink chain is built from the
// registry and the monitor server is assembled. Run starts the loops.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		queries:   make(chan func(), queryQueue),
		coordDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Observability ─────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Capture engine ────────────────────────────────────────────────
	if err := a.initEngine(ctx); err != nil {
		return nil, fmt.Errorf("app: init capture engine: %w", err)
	}

	// ── 3. Envelope + render mirror ──────────────────────────────────────
	a.initEnvelope()

	// ── 4. Recording sink chain ──────────────────────────────────────────
	if err := a.initSink(); err != nil {
		return nil, fmt.Errorf("app: init sink: %w", err)
	}

	// ── 5. Pipeline stats + capture breaker ──────────────────────────────
	a.pipeline = stats.New(0)
	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "capture"})

	// ── 6. Monitor server ────────────────────────────────────────────────
	a.initServer()

	// ── 7. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initEngine probes the capture host and initialises the session engine.
func (a *App) initEngine(ctx context.Context) error {
	if a.host == nil {
		a.host = capture.NewPortAudioHost()
	}
	a.engine = capture.New(a.host)

	cc := a.cfg.Capture
	if err := a.engine.Initialize(ctx, capture.Config{
		SampleRate:       cc.SampleRate,
		DeviceID:         cc.DeviceID,
		PreferRealtime:   cc.PreferRealtime,
		EchoCancellation: cc.EchoCancellation,
		NoiseSuppression: cc.NoiseSuppression,
		AutoGainControl:  cc.AutoGainControl,
		MicGain:          cc.MicGain,
		PollInterval:     time.Duration(cc.PollingInterval),
		BatchSize:        cc.BatchSize,
	}); err != nil {
		return err
	}

	a.closers = append(a.closers, func() error {
		a.engine.Dispose()
		return nil
	})
	return nil
}

// initEnvelope builds the decimation envelope at the engine's resolved
// rate and, when enabled, the off-thread render mirror behind it.
func (a *App) initEnvelope() {
	ec := a.cfg.Envelope
	a.env = envelope.New(a.engine.SampleRate(), ec.CanvasWidth, ec.CanvasHeight,
		envelope.WithTargetRate(ec.TargetRate),
		envelope.WithZoomStep(ec.ZoomStep),
	)
	a.env.OnViewChanged(func(v envelope.View) {
		a.hub.BroadcastView(v)
		a.drawMirror()
	})
	a.env.OnSeek(func(s envelope.Seek) {
		a.hub.BroadcastSeek(s)
	})

	if !a.cfg.Render.Mirror && a.painter == nil {
		return
	}
	p := a.painter
	if p == nil {
		p = mirror.PainterFunc(func(f mirror.Frame) {
			slog.Debug("mirror frame", "strokes", len(f.Strokes), "playhead", f.Playhead)
		})
	}
	a.mir = mirror.New(p)
	a.mir.OnDetail(func(d mirror.Detail) {
		a.metrics.PaintDuration.Record(context.Background(), d.PaintDuration.Seconds())
	})
	a.mir.Init(ec.CanvasWidth, ec.CanvasHeight, a.engine.SampleRate(), a.env.Factor())
	a.closers = append(a.closers, a.mir.Close)
}

// initSink builds the configured sink wrapped in a fallback chain ending
// at the discard sink, so a finished take never blocks on a dead disk.
func (a *App) initSink() error {
	if a.saver != nil {
		a.sinkName = "injected"
		return nil
	}
	primary, err := config.BuiltinRegistry().CreateSink(a.cfg.Output)
	if err != nil {
		return err
	}
	chain := resilience.NewSinkFallback(primary, a.cfg.Output.Sink, resilience.FallbackConfig{})
	if a.cfg.Output.Sink != "discard" {
		chain.AddFallback("discard", sink.DiscardSink{})
	}
	a.saver = chain
	a.sinkName = a.cfg.Output.Sink
	return nil
}

// initServer assembles the hub, health checkers and monitor HTTP server.
func (a *App) initServer() {
	a.hub = server.NewHub(server.WithMetrics(a.metrics))

	checkers := []health.Checker{
		{Name: "engine", Check: func(context.Context) error {
			if a.engine.State() == capture.StateUninitialized {
				return errors.New("capture engine not initialized")
			}
			return nil
		}},
		{Name: "coordinator", Check: func(context.Context) error {
			select {
			case <-a.coordDone:
				return ErrStopped
			default:
				return nil
			}
		}},
	}

	a.srv = server.New(server.Config{
		ListenAddr: a.cfg.Server.ListenAddr,
		Session:    a,
		Stats:      a.pipeline,
		Health:     health.New(checkers),
		Hub:        a.hub,
		Metrics:    a.metrics,
	})
}

// initWatcher starts config hot reload when a watch path was provided.
func (a *App) initWatcher() error {
	if a.watchPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.watchPath, a.applyConfigChange)
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		a.watcher.Stop()
		return nil
	})
	return nil
}

// applyConfigChange applies the hot-reloadable fields of a config change
// and logs what a reload cannot touch. Runs on the watcher goroutine;
// only thread-safe engine setters and the level var are used.
func (a *App) applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level reloaded", "level", d.NewLogLevel)
	}
	if d.MicGainChanged {
		applied := a.engine.SetMicGain(d.NewMicGain)
		slog.Info("mic gain reloaded", "gain", applied)
	}
	if d.PollingIntervalChanged {
		a.engine.SetPollInterval(d.NewPollingInterval)
		slog.Info("polling interval reloaded", "interval", d.NewPollingInterval)
	}
	for _, field := range d.RestartOnly {
		slog.Warn("config change requires restart", "field", field)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the monitor server and the session coordinator and blocks
// until ctx is cancelled or either loop fails. On a clean stop it returns
// context.Canceled.
func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return a.srv.Run(egCtx)
	})
	eg.Go(func() error {
		a.coordinate(egCtx)
		return nil
	})
	slog.Info("app running",
		"addr", a.cfg.Server.ListenAddr,
		"mode", a.engine.Mode().String(),
		"sample_rate", a.engine.SampleRate(),
		"decimation_factor", a.env.Factor(),
	)
	return eg.Wait()
}

// ─── Coordinator ─────────────────────────────────────────────────────────────

// coordinate is the single writer for the envelope, mirror and playback
// state. It drains engine events, applies monitor commands, answers
// snapshot queries and pushes periodic stats until ctx is done.
func (a *App) coordinate(ctx context.Context) {
	defer close(a.coordDone)

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.engine.Events():
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		case cmd := <-a.hub.Commands():
			a.handleCommand(ctx, cmd)
		case fn := <-a.queries:
			fn()
		case <-ticker.C:
			if a.hub.ClientCount() > 0 {
				a.hub.BroadcastStats(a.pipeline.Snapshot())
			}
		}
	}
}

func (a *App) handleEvent(ctx context.Context, ev capture.Event) {
	switch ev.Kind {
	case capture.EventRecordingStart:
		// Mirror first: resetting the envelope fires the view callback,
		// and the repaint it queues must land on fresh mirror state.
		if a.mir != nil {
			a.mir.Reset()
			a.mir.Init(a.cfg.Envelope.CanvasWidth, a.cfg.Envelope.CanvasHeight, ev.SampleRate,
				envelope.DecimationFactor(ev.SampleRate, a.cfg.Envelope.TargetRate))
		}
		a.env.Reset(ev.SampleRate)
		a.lastBatch = time.Time{}
		a.pipeline.Reset()
		a.breaker.Reset()
		a.metrics.ActiveTakes.Add(ctx, 1)
		a.hub.BroadcastEvent(ev)

	case capture.EventDataAvailable:
		a.handleBatch(ctx, ev.Batch)

	case capture.EventRecordingStop:
		a.finishTake(ctx, ev)

	case capture.EventError:
		a.handleCaptureError(ctx, ev)

	default:
		a.hub.BroadcastEvent(ev)
	}
}

// handleBatch folds one capture batch into the envelope, forwards the new
// blocks to the mirror and monitor clients, and records pipeline timings.
func (a *App) handleBatch(ctx context.Context, b *capture.Batch) {
	if b == nil {
		return
	}
	now := time.Now()
	if !a.lastBatch.IsZero() {
		gap := now.Sub(a.lastBatch)
		a.pipeline.RecordBatchGap(gap)
		a.metrics.BatchGap.Record(ctx, gap.Seconds())
		if b.Origin == capture.ModePolling {
			a.pipeline.RecordPollRead(gap)
		}
	}
	a.lastBatch = now

	pre := a.env.BlockCount()
	appendStart := time.Now()
	a.env.Append(b.Samples)
	appendDur := time.Since(appendStart)
	a.pipeline.RecordAppend(appendDur)
	a.metrics.AppendDuration.Record(ctx, appendDur.Seconds())

	a.pipeline.AddBatch(len(b.Samples))
	a.metrics.RecordBatch(ctx, b.Origin.String(), int64(len(b.Samples)))
	a.trackDrops(ctx)

	if post := a.env.BlockCount(); post > pre {
		mins, maxs := a.env.CopyBlocks(pre, post)
		if a.mir != nil {
			a.mir.Append(mins, maxs)
		}
		a.hub.BroadcastBlocks(pre, mins, maxs)
	}
	a.drawMirror()

	a.breaker.Execute(func() error { return nil })
}

// trackDrops converts newly dropped realtime batches to a sample count.
// Realtime batches are threshold-sized, so the conversion is exact.
func (a *App) trackDrops(ctx context.Context) {
	d := a.engine.DroppedBatches()
	if d <= a.dropSeen {
		return
	}
	delta := d - a.dropSeen
	a.dropSeen = d
	a.pipeline.SetDropped(int64(d) * int64(a.batchSize()))
	a.metrics.DroppedSamples.Add(ctx, int64(delta)*int64(a.batchSize()))
}

func (a *App) batchSize() int {
	if n := a.cfg.Capture.BatchSize; n > 0 {
		return n
	}
	return 2048
}

// drawMirror requests a repaint with the current view and playback cursor.
func (a *App) drawMirror() {
	if a.mir == nil {
		return
	}
	v := a.env.View()
	pos, playing := a.env.PlaybackPosition(time.Now())
	a.mir.Draw(mirror.DrawParams{
		Zoom:        v.Zoom,
		ViewStart:   v.Start,
		PlaybackPos: pos,
		Playing:     playing,
	})
}

// finishTake persists a finished recording and announces it. The stop
// event goes out first so clients see the state change before the save
// result.
func (a *App) finishTake(ctx context.Context, ev capture.Event) {
	a.metrics.ActiveTakes.Add(ctx, -1)
	a.hub.BroadcastEvent(ev)
	if ev.Recording == nil {
		return
	}
	a.saveRecording(ctx, ev.Recording)
	a.hub.BroadcastRecording(ev.Recording)
	snap := a.pipeline.Snapshot()
	slog.Info("take pipeline stats",
		"batches", snap.Batches,
		"samples", snap.Samples,
		"dropped", snap.Dropped,
		"errors", snap.Errors,
		"batch_gap_p50", snap.BatchGap.P50,
		"batch_gap_p95", snap.BatchGap.P95,
		"append_p95", snap.Append.P95,
		"encode_p95", snap.Encode.P95)
	a.hub.BroadcastStats(snap)
}

// saveRecording hands a take to the sink chain and stamps the stored path
// onto it.
func (a *App) saveRecording(ctx context.Context, rec *capture.Recording) {
	start := time.Now()
	path, err := a.saver.Save(ctx, rec)
	if err != nil {
		a.metrics.RecordRecordingSave(ctx, a.sinkName, "error")
		slog.Error("recording save failed", "err", err, "samples", rec.SampleCount)
		return
	}
	rec.Path = path
	a.metrics.RecordRecordingSave(ctx, a.sinkName, "ok")
	slog.Info("recording saved",
		"path", path,
		"bytes", len(rec.Data),
		"duration", rec.Duration,
		"elapsed", time.Since(start),
	)
}

// handleCaptureError counts the failure and trips the take when capture
// errors arrive back to back. Non-capture stages (a failed probe, a
// failed save) surface to clients but never trip the breaker.
func (a *App) handleCaptureError(ctx context.Context, ev capture.Event) {
	a.pipeline.IncrErrors()
	a.metrics.RecordCaptureError(ctx, string(ev.Stage))
	a.hub.BroadcastEvent(ev)

	if ev.Stage != capture.StageCapture {
		return
	}
	a.breaker.Execute(func() error { return ev.Err })
	if a.breaker.State() == resilience.StateOpen && a.engine.State() == capture.StateRecording {
		slog.Warn("capture failing repeatedly, stopping take")
		if _, err := a.stopTake(ctx); err != nil {
			slog.Error("emergency stop failed", "err", err)
		}
	}
}

// handleCommand applies one monitor command. Transport commands go to the
// engine; view commands mutate the envelope, whose change callbacks fan
// the results back out.
func (a *App) handleCommand(ctx context.Context, cmd server.Command) {
	switch cmd.Type {
	case server.CmdStart:
		if err := a.engine.StartRecording(ctx); err != nil {
			slog.Warn("start command rejected", "err", err)
		}
	case server.CmdStop:
		if _, err := a.stopTake(ctx); err != nil {
			slog.Warn("stop command rejected", "err", err)
		}
	case server.CmdGain:
		a.engine.SetMicGain(cmd.Value)
	case server.CmdZoom:
		a.env.ZoomSteps(cmd.Steps, cmd.AnchorRatio)
	case server.CmdPan:
		a.env.PanPixels(cmd.Pixels)
	case server.CmdSeek:
		a.env.SeekRatio(cmd.Ratio)
	case server.CmdAutoScroll:
		a.env.SetAutoScroll(cmd.Enabled)
	case server.CmdResize:
		a.env.Resize(cmd.Width, cmd.Height)
		if a.mir != nil {
			a.mir.Resize(cmd.Width, cmd.Height)
		}
	}
}

// stopTake stops the engine and records how long stop-and-encode took.
func (a *App) stopTake(ctx context.Context) (*capture.Recording, error) {
	start := time.Now()
	rec, err := a.engine.StopRecording(ctx)
	if err != nil {
		return nil, err
	}
	d := time.Since(start)
	a.pipeline.RecordEncode(d)
	a.metrics.EncodeDuration.Record(ctx, d.Seconds())
	return rec, nil
}

// ─── Snapshot queries ────────────────────────────────────────────────────────

// SessionSnapshot answers /v1/session and stream hello frames. The read
// executes on the coordinator so it never races an append.
func (a *App) SessionSnapshot(ctx context.Context) (server.SessionSnapshot, error) {
	var snap server.SessionSnapshot
	if err := a.query(ctx, func() { snap = a.sessionSnapshot() }); err != nil {
		return server.SessionSnapshot{}, err
	}
	return snap, nil
}

// EnvelopeSnapshot answers /v1/envelope with a full copy of the decimated
// waveform.
func (a *App) EnvelopeSnapshot(ctx context.Context) (server.EnvelopeSnapshot, error) {
	var snap server.EnvelopeSnapshot
	if err := a.query(ctx, func() { snap = a.envelopeSnapshot() }); err != nil {
		return server.EnvelopeSnapshot{}, err
	}
	return snap, nil
}

func (a *App) sessionSnapshot() server.SessionSnapshot {
	return server.SessionSnapshot{
		State:            a.engine.State().String(),
		Mode:             a.engine.Mode().String(),
		SampleRate:       a.engine.SampleRate(),
		DecimationFactor: a.env.Factor(),
		MicGain:          a.engine.MicGain(),
		BlockCount:       a.env.BlockCount(),
		View:             server.ViewFrom(a.env.View()),
	}
}

func (a *App) envelopeSnapshot() server.EnvelopeSnapshot {
	n := a.env.BlockCount()
	mins, maxs := a.env.CopyBlocks(0, n)
	return server.EnvelopeSnapshot{
		BlockCount: n,
		Mins:       mins,
		Maxs:       maxs,
		View:       server.ViewFrom(a.env.View()),
	}
}

// query runs fn on the coordinator goroutine and waits for it.
func (a *App) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case a.queries <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.coordDone:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.coordDone:
		return ErrStopped
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown flushes an in-flight take and tears down all subsystems. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Flush an in-flight take so an interrupt never loses audio.
		if a.engine != nil && a.engine.State() == capture.StateRecording {
			if rec, err := a.stopTake(ctx); err != nil {
				slog.Warn("stop recording during shutdown", "err", err)
			} else if rec != nil {
				a.saveRecording(ctx, rec)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// slogLevel converts a config log level to its slog value.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
