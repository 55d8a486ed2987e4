// Package config provides the configuration schema, loader, file watcher and
// sink registry for the wavescope capture server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the wavescope server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML configs can use Go duration strings
// such as "100ms" or "2s". Bare integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the root configuration structure for wavescope. It is typically
// loaded from a YAML file using [Load] or [LoadFromReader]; absent fields
// keep the values from [Default].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Envelope EnvelopeConfig `yaml:"envelope"`
	Render   RenderConfig   `yaml:"render"`
	Output   OutputConfig   `yaml:"output"`
}

// ServerConfig holds network and logging settings for the monitor server.
type ServerConfig struct {
	// ListenAddr is the TCP address the monitor server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Applied live on reload.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig holds microphone acquisition settings.
type CaptureConfig struct {
	// SampleRate is a rate hint in Hz. Zero lets the input device's native
	// rate win.
	SampleRate int `yaml:"sample_rate"`

	// DeviceID selects an input device by case-insensitive substring match
	// of its name. Empty selects the default input device.
	DeviceID string `yaml:"device_id"`

	// PreferRealtime asks for the callback capture path when the host
	// supports it; polling remains the fallback either way.
	PreferRealtime bool `yaml:"prefer_realtime"`

	EchoCancellation bool `yaml:"echo_cancellation"`
	NoiseSuppression bool `yaml:"noise_suppression"`
	AutoGainControl  bool `yaml:"auto_gain_control"`

	// MicGain is the software gain multiplier in [1, 6]. Applied live on
	// reload.
	MicGain float64 `yaml:"mic_gain"`

	// PollingInterval paces blocking reads in polling mode. Applied to the
	// next recording on reload.
	PollingInterval Duration `yaml:"polling_interval"`

	// BatchSize is the realtime staging threshold in samples.
	BatchSize int `yaml:"batch_size"`
}

// EnvelopeConfig holds waveform decimation and canvas geometry settings.
type EnvelopeConfig struct {
	// TargetRate is the envelope resolution in Hz blocks are decimated to.
	TargetRate int `yaml:"target_rate"`

	// ZoomStep is the per-step zoom ratio. Must be greater than 1.
	ZoomStep float64 `yaml:"zoom_step"`

	CanvasWidth  int `yaml:"canvas_width"`
	CanvasHeight int `yaml:"canvas_height"`
}

// RenderConfig controls the off-thread render mirror.
type RenderConfig struct {
	// Mirror runs the render mirror worker when true.
	Mirror bool `yaml:"mirror"`
}

// OutputConfig selects where finished recordings go.
type OutputConfig struct {
	// Sink names a registered recording sink.
	Sink string `yaml:"sink"`

	// Dir is the target directory for the file sink.
	Dir string `yaml:"dir"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8590",
			LogLevel:   LogInfo,
		},
		Capture: CaptureConfig{
			SampleRate:      48000,
			PreferRealtime:  true,
			MicGain:         1.0,
			PollingInterval: Duration(100 * time.Millisecond),
			BatchSize:       2048,
		},
		Envelope: EnvelopeConfig{
			TargetRate:   5000,
			ZoomStep:     1.5,
			CanvasWidth:  800,
			CanvasHeight: 160,
		},
		Render: RenderConfig{
			Mirror: true,
		},
		Output: OutputConfig{
			Sink: "file",
			Dir:  "recordings",
		},
	}
}
