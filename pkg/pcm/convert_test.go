package pcm_test

import (
	"math"
	"testing"

	"github.com/MrWong99/wavescope/pkg/pcm"
)

func TestFloat32ToInt16_KnownValues(t *testing.T) {
	t.Parallel()

	in := []float32{-1, -0.5, 0, 0.5, 1}
	want := []int16{-32768, -16384, 0, 16383, 32767}

	got := pcm.Float32ToInt16(in)
	if len(got) != len(want) {
		t.Fatalf("length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d (%v): got %d, want %d", i, in[i], got[i], want[i])
		}
	}
}

func TestFloat32ToInt16_ClampsOutOfRange(t *testing.T) {
	t.Parallel()

	got := pcm.Float32ToInt16([]float32{2.5, -3.1})
	if got[0] != 32767 {
		t.Errorf("over-range sample: got %d, want 32767", got[0])
	}
	if got[1] != -32768 {
		t.Errorf("under-range sample: got %d, want -32768", got[1])
	}
}

func TestInt16ToFloat32_RoundTripTolerance(t *testing.T) {
	t.Parallel()

	in := []float32{-1, -0.75, -0.001, 0, 0.001, 0.33, 0.9999, 1}
	back := pcm.Int16ToFloat32(pcm.Float32ToInt16(in))

	const tol = 1.0 / 32768
	for i, orig := range in {
		if diff := math.Abs(float64(back[i] - orig)); diff > tol {
			t.Errorf("sample %d: round trip %v -> %v, off by %v (tol %v)", i, orig, back[i], diff, tol)
		}
	}
}

func TestInt16Bytes_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768, 256, -257}
	b := pcm.Int16ToBytes(in)
	if len(b) != len(in)*2 {
		t.Fatalf("byte length: got %d, want %d", len(b), len(in)*2)
	}

	// Spot-check little-endian layout of the second sample (value 1).
	if b[2] != 0x01 || b[3] != 0x00 {
		t.Errorf("sample 1 bytes: got [%#x %#x], want [0x1 0x0]", b[2], b[3])
	}

	back := pcm.BytesToInt16(b)
	for i := range in {
		if back[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, back[i], in[i])
		}
	}
}

func TestBytesToInt16_IgnoresTrailingOddByte(t *testing.T) {
	t.Parallel()

	got := pcm.BytesToInt16([]byte{0x01, 0x00, 0xff})
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want float32
	}{
		{-2, -1},
		{-1, -1},
		{-0.5, -0.5},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{7, 1},
	}
	for _, tc := range cases {
		if got := pcm.Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
