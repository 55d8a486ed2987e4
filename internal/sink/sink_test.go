package sink_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/wavescope/internal/sink"
	"github.com/MrWong99/wavescope/pkg/capture"
)

func TestFileSink_Save(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "recordings")
	s := sink.NewFileSink(dir)

	rec := &capture.Recording{
		Data:        []byte("RIFF-not-really"),
		SampleCount: 4,
		SampleRate:  48000,
		Duration:    time.Millisecond,
	}
	path, err := s.Save(context.Background(), rec)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if filepath.Dir(path) != dir {
		t.Fatalf("Save() path = %q, want under %q", path, dir)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "take-") || !strings.HasSuffix(base, ".wav") {
		t.Fatalf("Save() file name = %q, want take-*.wav", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "RIFF-not-really" {
		t.Fatalf("saved bytes = %q, want the recording data", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Fatalf("file mode = %v, want 0644", got)
	}
}

func TestFileSink_CancelledContext(t *testing.T) {
	t.Parallel()
	s := sink.NewFileSink(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Save(ctx, &capture.Recording{}); err == nil {
		t.Fatal("Save() with cancelled context returned nil error")
	}
}

func TestDiscardSink(t *testing.T) {
	t.Parallel()
	var s sink.DiscardSink

	path, err := s.Save(context.Background(), &capture.Recording{Data: []byte("x")})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != "" {
		t.Fatalf("Save() path = %q, want empty", path)
	}
}
