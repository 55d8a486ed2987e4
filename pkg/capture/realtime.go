package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// defaultBatchSize is the realtime staging threshold in samples. At
	// 48 kHz a batch covers about 43 ms.
	defaultBatchSize = 2048

	// batchQueueCap bounds the hand-off channel between the audio callback
	// and the forwarding goroutine. When the queue is full the batch is
	// dropped and counted rather than blocking the audio thread.
	batchQueueCap = 32
)

// realtimeStrategy acquires samples through the host's audio callback.
//
// The callback appends each quantum to a staging buffer and, once the batch
// threshold is reached, transfers the whole buffer through a buffered channel
// to a forwarding goroutine that invokes onBatch. The callback itself never
// locks and never blocks; back-pressure is handled by batch-size tuning, not
// flow control.
type realtimeStrategy struct {
	host      Host
	cfg       StreamConfig
	batchSize int
	onBatch   func([]float32)
	onFail    func(error)
	dropped   *atomic.Uint64

	stream   Stream
	staging  []float32
	batches  chan []float32
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

func newRealtimeStrategy(host Host, cfg StreamConfig, batchSize int, onBatch func([]float32), onFail func(error), dropped *atomic.Uint64) *realtimeStrategy {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &realtimeStrategy{
		host:      host,
		cfg:       cfg,
		batchSize: batchSize,
		onBatch:   onBatch,
		onFail:    onFail,
		dropped:   dropped,
		staging:   make([]float32, 0, batchSize),
		batches:   make(chan []float32, batchQueueCap),
		done:      make(chan struct{}),
	}
}

func (r *realtimeStrategy) mode() Mode { return ModeRealtime }

func (r *realtimeStrategy) start() error {
	stream, err := r.host.OpenCallback(r.cfg, r.callback)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("capture: start callback stream: %w", err)
	}
	r.stream = stream

	r.wg.Add(1)
	go r.forward()
	if fs, ok := stream.(FallibleStream); ok && r.onFail != nil {
		// Not wg-tracked: onFail may call back into stop, which waits on wg.
		go r.watch(fs)
	}
	return nil
}

// callback runs on the host audio thread once per quantum. Only this thread
// touches the staging buffer.
func (r *realtimeStrategy) callback(in []float32) {
	r.staging = append(r.staging, in...)
	if len(r.staging) < r.batchSize {
		return
	}
	batch := make([]float32, len(r.staging))
	copy(batch, r.staging)
	r.staging = r.staging[:0]
	select {
	case r.batches <- batch:
	default:
		r.dropped.Add(1)
	}
}

// forward delivers batches to the engine off the audio thread.
func (r *realtimeStrategy) forward() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case batch := <-r.batches:
			r.onBatch(batch)
		}
	}
}

// watch reports asynchronous stream death so the engine can degrade the take.
func (r *realtimeStrategy) watch(fs FallibleStream) {
	select {
	case <-r.done:
	case err, ok := <-fs.Failed():
		if ok {
			r.onFail(err)
		}
	}
}

// stop halts the callback and the forwarding goroutine. Batches still queued
// at stop time are discarded, matching the abort semantics of the stream. A
// sub-threshold staging remainder is discarded with them.
func (r *realtimeStrategy) stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
		var err error
		if r.stream != nil {
			err = r.stream.Abort()
			if cerr := r.stream.Close(); err == nil {
				err = cerr
			}
		}
		r.wg.Wait()
		r.stopErr = err
	})
	return r.stopErr
}
