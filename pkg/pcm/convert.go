// Package pcm provides sample-format conversions and the WAV container codec
// for the mono float32 pipeline.
//
// All capture and envelope code deals in 32-bit float samples in [-1, 1]; this
// package owns the boundary to signed 16-bit little-endian PCM, which is the
// on-disk representation. The float→int16 mapping is asymmetric:
// negative samples scale by 32768 and non-negative samples by 32767, so that
// -1.0 maps to -32768 and +1.0 maps to +32767 without overflow.
package pcm

import "encoding/binary"

// SampleToInt16 converts a single float sample in [-1, 1] to a signed 16-bit
// value. Out-of-range input is clamped first. Negative samples scale by 32768,
// non-negative by 32767.
func SampleToInt16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// Float32ToInt16 converts float samples in [-1, 1] to signed 16-bit values,
// applying [SampleToInt16] per sample.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = SampleToInt16(s)
	}
	return out
}

// Int16ToFloat32 converts signed 16-bit samples back to floats in [-1, 1).
// The inverse of [Float32ToInt16] up to quantisation: a round trip stays
// within 1/32768 of the original value.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// Int16ToBytes serialises int16 samples as little-endian bytes, two per sample.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToInt16 parses little-endian bytes into int16 samples. A trailing odd
// byte is ignored.
func BytesToInt16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// Clamp limits a single sample to [-1, 1]. Used by the gain stage, which can
// push amplified samples outside the legal range.
func Clamp(s float32) float32 {
	if s < -1 {
		return -1
	}
	if s > 1 {
		return 1
	}
	return s
}
