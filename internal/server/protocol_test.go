package server

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"start", Command{Type: CmdStart}, false},
		{"stop", Command{Type: CmdStop}, false},
		{"autoscroll off", Command{Type: CmdAutoScroll}, false},
		{"gain", Command{Type: CmdGain, Value: 1.5}, false},
		{"gain zero", Command{Type: CmdGain}, true},
		{"gain negative", Command{Type: CmdGain, Value: -1}, true},
		{"gain NaN", Command{Type: CmdGain, Value: math.NaN()}, true},
		{"zoom in", Command{Type: CmdZoom, Steps: 3, AnchorRatio: 0.5}, false},
		{"zoom out", Command{Type: CmdZoom, Steps: -2, AnchorRatio: 1}, false},
		{"zoom zero steps", Command{Type: CmdZoom}, true},
		{"pan", Command{Type: CmdPan, Pixels: -12.5}, false},
		{"pan infinite", Command{Type: CmdPan, Pixels: math.Inf(1)}, true},
		{"seek", Command{Type: CmdSeek, Ratio: 0.75}, false},
		{"seek NaN", Command{Type: CmdSeek, Ratio: math.NaN()}, true},
		{"resize", Command{Type: CmdResize, Width: 800, Height: 200}, false},
		{"resize zero width", Command{Type: CmdResize, Height: 200}, true},
		{"unknown type", Command{Type: "rewind"}, true},
		{"empty", Command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// The hello frame must carry the snapshot fields at the top level so
// clients can treat it like any other typed message.
func TestHelloMessage_FlattensSnapshot(t *testing.T) {
	data, err := json.Marshal(helloMessage{Type: "hello", SessionSnapshot: testSnapshot()})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if m["type"] != "hello" {
		t.Fatalf("type = %v, want hello", m["type"])
	}
	if m["state"] != "recording" {
		t.Fatalf("state = %v, want recording", m["state"])
	}
	if m["sample_rate"] != float64(48000) {
		t.Fatalf("sample_rate = %v, want 48000", m["sample_rate"])
	}
	if _, nested := m["SessionSnapshot"]; nested {
		t.Fatal("snapshot marshalled as nested object, want flattened fields")
	}
	view, ok := m["view"].(map[string]any)
	if !ok {
		t.Fatalf("view = %v, want object", m["view"])
	}
	if view["auto_scroll"] != true {
		t.Fatalf("view.auto_scroll = %v, want true", view["auto_scroll"])
	}
}
