package capture

import (
	"bytes"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/wavescope/pkg/pcm"
)

func TestRealtimeCallback_BatchesAtThreshold(t *testing.T) {
	t.Parallel()

	var dropped atomic.Uint64
	r := newRealtimeStrategy(nil, StreamConfig{}, 8, nil, nil, &dropped)

	r.callback(make([]float32, 5))
	select {
	case b := <-r.batches:
		t.Fatalf("got a %d-sample batch below the threshold", len(b))
	default:
	}

	r.callback(make([]float32, 3))
	select {
	case b := <-r.batches:
		if len(b) != 8 {
			t.Fatalf("batch length = %d, want 8", len(b))
		}
	default:
		t.Fatal("no batch after reaching the threshold")
	}

	// The staging buffer resets after each transfer.
	r.callback(make([]float32, 8))
	select {
	case b := <-r.batches:
		if len(b) != 8 {
			t.Fatalf("second batch length = %d, want 8", len(b))
		}
	default:
		t.Fatal("no second batch")
	}
}

func TestRealtimeCallback_OversizedQuantumTransfersWhole(t *testing.T) {
	t.Parallel()

	var dropped atomic.Uint64
	r := newRealtimeStrategy(nil, StreamConfig{}, 8, nil, nil, &dropped)

	r.callback(make([]float32, 20))
	select {
	case b := <-r.batches:
		if len(b) != 20 {
			t.Fatalf("batch length = %d, want the whole 20-sample staging buffer", len(b))
		}
	default:
		t.Fatal("no batch for an oversized quantum")
	}
}

func TestRealtimeCallback_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	var dropped atomic.Uint64
	r := newRealtimeStrategy(nil, StreamConfig{}, 4, nil, nil, &dropped)

	for i := 0; i < batchQueueCap+3; i++ {
		r.callback(make([]float32, 4))
	}
	if got := dropped.Load(); got != 3 {
		t.Fatalf("dropped = %d, want 3", got)
	}
	if got := len(r.batches); got != batchQueueCap {
		t.Fatalf("queued batches = %d, want %d", got, batchQueueCap)
	}
}

func TestNewPollingStrategy_FrameSizing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate     int
		interval time.Duration
		want     int
	}{
		{48000, 100 * time.Millisecond, 4800},
		{16000, 50 * time.Millisecond, 800},
		{44100, 100 * time.Millisecond, 4410},
		{48000, 0, 4800}, // zero interval falls back to the default
		{1, time.Millisecond, 1},
	}
	for _, tt := range tests {
		p := newPollingStrategy(nil, StreamConfig{SampleRate: tt.rate}, tt.interval, nil, nil)
		if p.frames != tt.want {
			t.Errorf("frames for %d Hz at %v = %d, want %d", tt.rate, tt.interval, p.frames, tt.want)
		}
	}
}

func TestContainer_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := newContainer(8000)
	if err != nil {
		t.Fatalf("newContainer: %v", err)
	}
	name := c.file.Name()

	if err := c.write([]float32{0, 0.5, -1, 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := c.finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	want := []int{0, int(pcm.SampleToInt16(0.5)), -32768, 32767}
	if len(buf.Data) != len(want) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(want))
	}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], v)
		}
	}
	if buf.Format.SampleRate != 8000 {
		t.Errorf("sample rate = %d, want 8000", buf.Format.SampleRate)
	}

	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("temp container %s still exists after finalize", name)
	}
}

func TestClampGain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{0, 1},
		{-2, 1},
		{1, 1},
		{2.5, 2.5},
		{6, 6},
		{100, 6},
	}
	for _, tt := range tests {
		if got := clampGain(tt.in); got != tt.want {
			t.Errorf("clampGain(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
