package capture_test

import (
	"testing"

	"github.com/MrWong99/wavescope/pkg/capture"
)

func TestMatchDevice(t *testing.T) {
	t.Parallel()

	devices := []capture.Device{
		{ID: "hw:0", Name: "Built-in Audio Analog Stereo"},
		{ID: "usb-blue-yeti", Name: "Blue Yeti USB Microphone"},
	}

	tests := []struct {
		want   string
		wantID string
	}{
		{"yeti", "usb-blue-yeti"},
		{"YETI", "usb-blue-yeti"},
		{"built-in", "hw:0"},
		{"hw:0", "hw:0"},
	}
	for _, tt := range tests {
		dev := capture.MatchDevice(devices, tt.want)
		if dev == nil {
			t.Errorf("MatchDevice(%q) = nil, want %q", tt.want, tt.wantID)
			continue
		}
		if dev.ID != tt.wantID {
			t.Errorf("MatchDevice(%q).ID = %q, want %q", tt.want, dev.ID, tt.wantID)
		}
	}

	if dev := capture.MatchDevice(devices, "condenser"); dev != nil {
		t.Errorf("MatchDevice(%q) = %+v, want nil", "condenser", dev)
	}
	if dev := capture.MatchDevice(devices, ""); dev != nil {
		t.Errorf("MatchDevice with empty constraint = %+v, want nil", dev)
	}
	if dev := capture.MatchDevice(nil, "yeti"); dev != nil {
		t.Errorf("MatchDevice on empty list = %+v, want nil", dev)
	}
}
