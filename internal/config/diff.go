package config

import "time"

// ConfigDiff describes what changed between two configs. Hot-applicable
// fields carry their new values; everything else lands in RestartOnly so
// the caller can log what a reload ignored.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MicGainChanged bool
	NewMicGain     float64

	PollingIntervalChanged bool
	NewPollingInterval     time.Duration

	// RestartOnly lists the YAML paths of changed fields that only take
	// effect on restart.
	RestartOnly []string
}

// Hot reports whether any hot-applicable field changed.
func (d ConfigDiff) Hot() bool {
	return d.LogLevelChanged || d.MicGainChanged || d.PollingIntervalChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Capture.MicGain != new.Capture.MicGain {
		d.MicGainChanged = true
		d.NewMicGain = new.Capture.MicGain
	}
	if old.Capture.PollingInterval != new.Capture.PollingInterval {
		d.PollingIntervalChanged = true
		d.NewPollingInterval = time.Duration(new.Capture.PollingInterval)
	}

	cold := func(changed bool, path string) {
		if changed {
			d.RestartOnly = append(d.RestartOnly, path)
		}
	}
	cold(old.Server.ListenAddr != new.Server.ListenAddr, "server.listen_addr")
	cold(old.Capture.SampleRate != new.Capture.SampleRate, "capture.sample_rate")
	cold(old.Capture.DeviceID != new.Capture.DeviceID, "capture.device_id")
	cold(old.Capture.PreferRealtime != new.Capture.PreferRealtime, "capture.prefer_realtime")
	cold(old.Capture.EchoCancellation != new.Capture.EchoCancellation, "capture.echo_cancellation")
	cold(old.Capture.NoiseSuppression != new.Capture.NoiseSuppression, "capture.noise_suppression")
	cold(old.Capture.AutoGainControl != new.Capture.AutoGainControl, "capture.auto_gain_control")
	cold(old.Capture.BatchSize != new.Capture.BatchSize, "capture.batch_size")
	cold(old.Envelope != new.Envelope, "envelope")
	cold(old.Render != new.Render, "render.mirror")
	cold(old.Output != new.Output, "output")

	return d
}
