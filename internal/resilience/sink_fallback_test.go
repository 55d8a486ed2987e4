package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/wavescope/internal/sink"
	"github.com/MrWong99/wavescope/pkg/capture"
)

// stubSink is a call-recording sink with configurable result fields.
type stubSink struct {
	Path string
	Err  error

	SaveCalls int
}

var _ sink.Sink = (*stubSink)(nil)

func (s *stubSink) Save(ctx context.Context, rec *capture.Recording) (string, error) {
	s.SaveCalls++
	if s.Err != nil {
		return "", s.Err
	}
	return s.Path, nil
}

func testRecording() *capture.Recording {
	return &capture.Recording{
		Data:        []byte("RIFF"),
		SampleCount: 4800,
		SampleRate:  48000,
	}
}

func TestSinkFallback_PrimarySuccess(t *testing.T) {
	primary := &stubSink{Path: "/takes/take-1.wav"}
	secondary := &stubSink{Path: "/dev/null"}

	fb := NewSinkFallback(primary, "file", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("discard", secondary)

	path, err := fb.Save(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/takes/take-1.wav" {
		t.Fatalf("path = %q, want /takes/take-1.wav", path)
	}
	if primary.SaveCalls != 1 {
		t.Fatalf("primary called %d times, want 1", primary.SaveCalls)
	}
	if secondary.SaveCalls != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.SaveCalls)
	}
}

func TestSinkFallback_Failover(t *testing.T) {
	primary := &stubSink{Err: errors.New("disk full")}
	secondary := &stubSink{Path: ""}

	fb := NewSinkFallback(primary, "file", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("discard", secondary)

	path, err := fb.Save(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Fatalf("path = %q, want empty from discard fallback", path)
	}
	if secondary.SaveCalls != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.SaveCalls)
	}
}

func TestSinkFallback_AllFail(t *testing.T) {
	primary := &stubSink{Err: errors.New("disk full")}
	secondary := &stubSink{Err: errors.New("also broken")}

	fb := NewSinkFallback(primary, "file", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("backup", secondary)

	_, err := fb.Save(context.Background(), testRecording())
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSinkFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &stubSink{Err: errors.New("disk full")}
	secondary := &stubSink{Path: "/dev/null"}

	fb := NewSinkFallback(primary, "file", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fb.AddFallback("discard", secondary)

	// Two failed saves open the primary's breaker.
	_, _ = fb.Save(context.Background(), testRecording())
	_, _ = fb.Save(context.Background(), testRecording())
	if primary.SaveCalls != 2 {
		t.Fatalf("primary called %d times, want 2", primary.SaveCalls)
	}

	// The third save should not touch the primary at all.
	path, err := fb.Save(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/dev/null" {
		t.Fatalf("path = %q, want /dev/null", path)
	}
	if primary.SaveCalls != 2 {
		t.Fatalf("primary called %d times after breaker opened, want 2", primary.SaveCalls)
	}
}
