package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/wavescope/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":9000"
  log_level: debug

capture:
  sample_rate: 44100
  device_id: "usb"
  prefer_realtime: false
  mic_gain: 2.5
  polling_interval: 250ms
  batch_size: 1024

envelope:
  target_rate: 4000
  zoom_step: 2.0
  canvas_width: 1024
  canvas_height: 200

render:
  mirror: false

output:
  sink: discard
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Capture.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", cfg.Capture.SampleRate)
	}
	if cfg.Capture.DeviceID != "usb" {
		t.Errorf("DeviceID = %q, want usb", cfg.Capture.DeviceID)
	}
	if cfg.Capture.PreferRealtime {
		t.Error("PreferRealtime = true, want false")
	}
	if cfg.Capture.MicGain != 2.5 {
		t.Errorf("MicGain = %v, want 2.5", cfg.Capture.MicGain)
	}
	if got := time.Duration(cfg.Capture.PollingInterval); got != 250*time.Millisecond {
		t.Errorf("PollingInterval = %v, want 250ms", got)
	}
	if cfg.Capture.BatchSize != 1024 {
		t.Errorf("BatchSize = %d, want 1024", cfg.Capture.BatchSize)
	}
	if cfg.Envelope.ZoomStep != 2.0 {
		t.Errorf("ZoomStep = %v, want 2.0", cfg.Envelope.ZoomStep)
	}
	if cfg.Render.Mirror {
		t.Error("Mirror = true, want false")
	}
	if cfg.Output.Sink != "discard" {
		t.Errorf("Sink = %q, want discard", cfg.Output.Sink)
	}
}

func TestLoadFromReader_AbsentFieldsKeepDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: warn\n"))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}

	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("LogLevel = %q, want warn", cfg.Server.LogLevel)
	}
	def := config.Default()
	if cfg.Server.ListenAddr != def.Server.ListenAddr {
		t.Errorf("ListenAddr = %q, want default %q", cfg.Server.ListenAddr, def.Server.ListenAddr)
	}
	if cfg.Capture.SampleRate != def.Capture.SampleRate {
		t.Errorf("SampleRate = %d, want default %d", cfg.Capture.SampleRate, def.Capture.SampleRate)
	}
	if !cfg.Render.Mirror {
		t.Error("Mirror = false, want default true")
	}
}

func TestLoadFromReader_EmptyDocumentIsDefault(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != config.Default().Server.ListenAddr {
		t.Errorf("ListenAddr = %q, want the default", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("capture:\n  sample_rte: 48000\n"))
	if err == nil {
		t.Fatal("LoadFromReader() = nil error for unknown field, want error")
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("capture:\n  polling_interval: fast\n"))
	if err == nil {
		t.Fatal("LoadFromReader() = nil error for bad duration, want error")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Fatalf("error = %q, want mention of duration", err)
	}
}

func TestLoadFromReader_InvalidValuesRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("capture:\n  mic_gain: 0.2\n"))
	if err == nil {
		t.Fatal("LoadFromReader() = nil error for out-of-range gain, want error")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() = nil error for missing file, want error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want a not-exist error", err)
	}
}
