package resilience

import (
	"context"

	"github.com/MrWong99/wavescope/internal/sink"
	"github.com/MrWong99/wavescope/pkg/capture"
)

// SinkFallback implements [sink.Sink] with automatic failover across multiple
// sinks. Each sink has its own circuit breaker; when the primary fails or its
// breaker is open, the next healthy fallback is tried. Registering
// [sink.DiscardSink] as the last fallback guarantees a take is never lost to a
// blocked Save, only its persistence.
type SinkFallback struct {
	group *FallbackGroup[sink.Sink]
}

// Compile-time interface assertion.
var _ sink.Sink = (*SinkFallback)(nil)

// NewSinkFallback creates a [SinkFallback] with primary as the preferred sink.
func NewSinkFallback(primary sink.Sink, primaryName string, cfg FallbackConfig) *SinkFallback {
	return &SinkFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional sink as a fallback.
func (f *SinkFallback) AddFallback(name string, s sink.Sink) {
	f.group.AddFallback(name, s)
}

// Save hands the recording to the first healthy sink and returns its path.
// If the primary fails, subsequent fallbacks are tried.
func (f *SinkFallback) Save(ctx context.Context, rec *capture.Recording) (string, error) {
	return ExecuteWithResult(f.group, func(s sink.Sink) (string, error) {
		return s.Save(ctx, rec)
	})
}
