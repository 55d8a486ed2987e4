// Package sink persists finished recordings. The [Sink] interface is the
// boundary between the capture session and whatever storage the deployment
// wants; everything beyond the local filesystem stays behind it.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/wavescope/pkg/capture"
)

// Compile-time interface assertions.
var (
	_ Sink = (*FileSink)(nil)
	_ Sink = DiscardSink{}
)

// Sink persists one finished recording and reports where it landed. An
// empty path means the sink kept nothing.
type Sink interface {
	Save(ctx context.Context, rec *capture.Recording) (path string, err error)
}

// FileSink writes each take as a timestamped WAV file under a directory.
// The directory is created on first use.
type FileSink struct {
	dir string
	now func() time.Time
}

// NewFileSink creates a sink writing under dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir, now: time.Now}
}

// Save writes rec.Data as take-<timestamp>.wav and returns the full path.
func (s *FileSink) Save(ctx context.Context, rec *capture.Recording) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("sink: save: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("sink: create %q: %w", s.dir, err)
	}

	name := fmt.Sprintf("take-%s.wav", s.now().Format("20060102-150405.000"))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, rec.Data, 0o644); err != nil {
		return "", fmt.Errorf("sink: write %q: %w", path, err)
	}
	return path, nil
}

// DiscardSink drops every recording. Useful for monitoring-only deployments
// and as the fallback when the configured sink keeps failing.
type DiscardSink struct{}

// Save does nothing and reports no path.
func (DiscardSink) Save(context.Context, *capture.Recording) (string, error) {
	return "", nil
}
