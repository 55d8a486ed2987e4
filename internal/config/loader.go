package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSinkNames lists the sink names the built-in registry knows. Used by
// [Validate] to reject unrecognised sinks before a recording is lost to one.
var ValidSinkNames = []string{"discard", "file"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result, so absent fields keep their default values. Unknown fields
// are rejected. Useful in tests where configs are built from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty document is the default config.
			return cfg, nil
		}
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Capture.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is negative; use 0 for the device native rate", cfg.Capture.SampleRate))
	}
	if g := cfg.Capture.MicGain; g != 0 && (g < 1 || g > 6) {
		errs = append(errs, fmt.Errorf("capture.mic_gain %.2f is out of range [1, 6]", g))
	}
	if cfg.Capture.PollingInterval < 0 {
		errs = append(errs, fmt.Errorf("capture.polling_interval must not be negative"))
	}
	if cfg.Capture.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("capture.batch_size must not be negative"))
	}

	if cfg.Envelope.TargetRate < 0 {
		errs = append(errs, fmt.Errorf("envelope.target_rate must not be negative"))
	}
	if s := cfg.Envelope.ZoomStep; s != 0 && s <= 1 {
		errs = append(errs, fmt.Errorf("envelope.zoom_step %.2f must be greater than 1", s))
	}
	if cfg.Envelope.CanvasWidth < 0 || cfg.Envelope.CanvasHeight < 0 {
		errs = append(errs, fmt.Errorf("envelope.canvas_width and canvas_height must not be negative"))
	}

	if s := cfg.Output.Sink; s != "" && !slices.Contains(ValidSinkNames, s) {
		errs = append(errs, fmt.Errorf("output.sink %q is unknown; valid values: discard, file", s))
	}
	if cfg.Output.Sink == "file" && cfg.Output.Dir == "" {
		errs = append(errs, fmt.Errorf("output.dir is required when output.sink is file"))
	}

	return errors.Join(errs...)
}
