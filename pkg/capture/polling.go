package capture

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/wavescope/pkg/pcm"
)

// defaultPollInterval paces the blocking drain loop.
const defaultPollInterval = 100 * time.Millisecond

// pollingStrategy drains a blocking stream in fixed time slices.
//
// Each Read covers one poll interval's worth of samples, so the read itself
// paces the loop and iterations never overlap. Stop is synchronous: once it
// returns, no further batch is delivered.
type pollingStrategy struct {
	host    Host
	cfg     StreamConfig
	frames  int
	onBatch func([]float32)
	onFail  func(error)

	stream   BlockingStream
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

func newPollingStrategy(host Host, cfg StreamConfig, interval time.Duration, onBatch func([]float32), onFail func(error)) *pollingStrategy {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	frames := int(time.Duration(cfg.SampleRate) * interval / time.Second)
	if frames < 1 {
		frames = 1
	}
	return &pollingStrategy{
		host:    host,
		cfg:     cfg,
		frames:  frames,
		onBatch: onBatch,
		onFail:  onFail,
		done:    make(chan struct{}),
	}
}

func (p *pollingStrategy) mode() Mode { return ModePolling }

func (p *pollingStrategy) start() error {
	stream, err := p.host.OpenBlocking(p.cfg, p.frames)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("capture: start blocking stream: %w", err)
	}
	p.stream = stream
	p.wg.Add(1)
	go p.drain()
	return nil
}

// drain reads one interval's worth of samples per iteration until stopped.
func (p *pollingStrategy) drain() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		default:
		}
		samples, err := p.stream.Read()
		if err != nil {
			// Abort during stop surfaces as a read error; anything else is
			// a live stream failure worth reporting.
			select {
			case <-p.done:
			default:
				if p.onFail != nil {
					p.onFail(err)
				}
			}
			return
		}
		select {
		case <-p.done:
			return
		default:
		}
		p.onBatch(samples)
	}
}

// stop halts the drain loop synchronously. After stop returns no further
// batch is delivered.
func (p *pollingStrategy) stop() error {
	p.stopOnce.Do(func() {
		close(p.done)
		var err error
		if p.stream != nil {
			err = p.stream.Abort()
			if cerr := p.stream.Close(); err == nil {
				err = cerr
			}
		}
		p.wg.Wait()
		p.stopErr = err
	})
	return p.stopErr
}

// container incrementally encodes polling batches into a WAV file as they
// arrive, mirroring a recorder that owns its own container format. The file
// lives in the OS temp directory until finalize reads it back.
type container struct {
	file *os.File
	enc  *wav.Encoder
	buf  audio.IntBuffer
}

func newContainer(sampleRate int) (*container, error) {
	f, err := os.CreateTemp("", "wavescope-*.wav")
	if err != nil {
		return nil, fmt.Errorf("capture: create temp container: %w", err)
	}
	return &container{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// write appends gain-staged samples to the container.
func (c *container) write(samples []float32) error {
	if cap(c.buf.Data) < len(samples) {
		c.buf.Data = make([]int, len(samples))
	}
	c.buf.Data = c.buf.Data[:len(samples)]
	for i, s := range samples {
		c.buf.Data[i] = int(pcm.SampleToInt16(s))
	}
	if err := c.enc.Write(&c.buf); err != nil {
		return fmt.Errorf("capture: encode batch: %w", err)
	}
	return nil
}

// finalize closes the encoder, reads the finished container back and removes
// the temp file.
func (c *container) finalize() ([]byte, error) {
	if err := c.enc.Close(); err != nil {
		c.discard()
		return nil, fmt.Errorf("capture: finalize container: %w", err)
	}
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		c.discard()
		return nil, fmt.Errorf("capture: rewind container: %w", err)
	}
	data, err := io.ReadAll(c.file)
	name := c.file.Name()
	c.file.Close()
	os.Remove(name)
	if err != nil {
		return nil, fmt.Errorf("capture: read container: %w", err)
	}
	return data, nil
}

// discard drops the container without finalizing.
func (c *container) discard() {
	name := c.file.Name()
	c.file.Close()
	os.Remove(name)
}
