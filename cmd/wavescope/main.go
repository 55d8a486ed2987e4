// Command wavescope is the main entry point for the wavescope capture server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/wavescope/internal/app"
	"github.com/MrWong99/wavescope/internal/config"
	"github.com/MrWong99/wavescope/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	configExplicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configExplicit = true
		}
	})

	// ── Load configuration ────────────────────────────────────────────────────
	// A missing file at the default path falls back to the documented
	// defaults; a missing file named on the command line is an error.
	cfg, err := config.Load(*configPath)
	usingDefaults := false
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !configExplicit:
		cfg = config.Default()
		usingDefaults = true
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "wavescope: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		return 1
	default:
		fmt.Fprintf(os.Stderr, "wavescope: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, level := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("wavescope starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)
	if usingDefaults {
		slog.Info("no config file found, using defaults", "path", *configPath)
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetryShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "wavescope",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, *configPath, usingDefaults)

	// ── Application ───────────────────────────────────────────────────────────
	opts := []app.Option{app.WithLogLevelVar(level)}
	if !usingDefaults {
		opts = append(opts, app.WithConfigFile(*configPath))
	}

	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, configPath string, usingDefaults bool) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║       wavescope — startup summary      ║")
	fmt.Println("╠════════════════════════════════════════╣")
	if usingDefaults {
		printRow("Config", "(defaults)")
	} else {
		printRow("Config", configPath)
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	if cfg.Capture.DeviceID != "" {
		printRow("Input device", cfg.Capture.DeviceID)
	} else {
		printRow("Input device", "(default input)")
	}
	if cfg.Capture.SampleRate > 0 {
		printRow("Sample rate", fmt.Sprintf("%d Hz hint", cfg.Capture.SampleRate))
	} else {
		printRow("Sample rate", "(device native)")
	}
	if cfg.Capture.PreferRealtime {
		printRow("Capture", "realtime preferred")
	} else {
		printRow("Capture", "polling only")
	}
	printRow("Mic gain", fmt.Sprintf("%.1f", cfg.Capture.MicGain))
	printRow("Envelope", fmt.Sprintf("%d Hz blocks", cfg.Envelope.TargetRate))
	printRow("Canvas", fmt.Sprintf("%dx%d px", cfg.Envelope.CanvasWidth, cfg.Envelope.CanvasHeight))
	if cfg.Render.Mirror {
		printRow("Render mirror", "on")
	} else {
		printRow("Render mirror", "off")
	}
	printRow("Sink", cfg.Output.Sink+" "+cfg.Output.Dir)
	fmt.Println("╚════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger around a LevelVar so config reloads
// can retune verbosity without swapping the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	switch level {
	case config.LogDebug:
		lvl.Set(slog.LevelDebug)
	case config.LogWarn:
		lvl.Set(slog.LevelWarn)
	case config.LogError:
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}
