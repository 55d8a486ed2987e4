package pcm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed size of the RIFF/WAVE header this package writes:
// 12 bytes RIFF chunk preamble, 24 bytes fmt sub-chunk, 8 bytes data preamble.
const HeaderSize = 44

// ErrNotWAV is returned by [DecodeWAV] when the input does not start with a
// RIFF/WAVE preamble.
var ErrNotWAV = errors.New("pcm: not a RIFF/WAVE stream")

// wavHeader is the 44-byte mono 16-bit PCM header laid out exactly as it
// appears on disk. Field order and sizes matter; binary.Write serialises it
// verbatim in little-endian.
type wavHeader struct {
	RiffID      [4]byte // "RIFF"
	RiffSize    uint32  // 36 + dataBytes
	WaveID      [4]byte // "WAVE"
	FmtID       [4]byte // "fmt "
	FmtSize     uint32  // 16
	AudioFormat uint16  // 1 = PCM
	NumChannels uint16  // 1
	SampleRate  uint32
	ByteRate    uint32 // sampleRate * 2
	BlockAlign  uint16 // 2
	BitsPerSamp uint16 // 16
	DataID      [4]byte // "data"
	DataSize    uint32  // sampleCount * 2
}

// newWAVHeader builds the header for a mono 16-bit stream of sampleCount
// samples at sampleRate Hz.
func newWAVHeader(sampleRate int, sampleCount int) wavHeader {
	dataBytes := uint32(sampleCount * 2)
	return wavHeader{
		RiffID:      [4]byte{'R', 'I', 'F', 'F'},
		RiffSize:    36 + dataBytes,
		WaveID:      [4]byte{'W', 'A', 'V', 'E'},
		FmtID:       [4]byte{'f', 'm', 't', ' '},
		FmtSize:     16,
		AudioFormat: 1,
		NumChannels: 1,
		SampleRate:  uint32(sampleRate),
		ByteRate:    uint32(sampleRate) * 2,
		BlockAlign:  2,
		BitsPerSamp: 16,
		DataID:      [4]byte{'d', 'a', 't', 'a'},
		DataSize:    dataBytes,
	}
}

// EncodeWAV writes samples as a complete mono 16-bit PCM WAV stream to w:
// a 44-byte header followed by the converted samples. The output is
// deterministic; encoding the same samples at the same rate always yields
// identical bytes.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("pcm: sample rate %d is not positive", sampleRate)
	}
	h := newWAVHeader(sampleRate, len(samples))
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("pcm: write wav header: %w", err)
	}
	if _, err := w.Write(Int16ToBytes(Float32ToInt16(samples))); err != nil {
		return fmt.Errorf("pcm: write wav data: %w", err)
	}
	return nil
}

// EncodeWAVBytes is a convenience wrapper around [EncodeWAV] that returns the
// encoded container as a byte slice of exactly 44 + 2*len(samples) bytes.
func EncodeWAVBytes(samples []float32, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(samples)*2)
	if err := EncodeWAV(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a mono 16-bit PCM WAV stream produced by [EncodeWAV] and
// returns the float samples and sample rate. It rejects streams that are not
// RIFF/WAVE, not PCM, not mono, or not 16-bit. The data sub-chunk must
// directly follow the fmt sub-chunk, which holds for this package's output
// and for plain encoder output generally.
func DecodeWAV(r io.Reader) (samples []float32, sampleRate int, err error) {
	var h wavHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, 0, fmt.Errorf("pcm: read wav header: %w", err)
	}
	if h.RiffID != [4]byte{'R', 'I', 'F', 'F'} || h.WaveID != [4]byte{'W', 'A', 'V', 'E'} {
		return nil, 0, ErrNotWAV
	}
	if h.FmtID != [4]byte{'f', 'm', 't', ' '} || h.DataID != [4]byte{'d', 'a', 't', 'a'} {
		return nil, 0, fmt.Errorf("pcm: unexpected chunk layout")
	}
	if h.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("pcm: audio format %d is not PCM", h.AudioFormat)
	}
	if h.NumChannels != 1 {
		return nil, 0, fmt.Errorf("pcm: %d channels, want mono", h.NumChannels)
	}
	if h.BitsPerSamp != 16 {
		return nil, 0, fmt.Errorf("pcm: %d bits per sample, want 16", h.BitsPerSamp)
	}

	data := make([]byte, h.DataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, 0, fmt.Errorf("pcm: read wav data: %w", err)
	}
	return Int16ToFloat32(BytesToInt16(data)), int(h.SampleRate), nil
}
