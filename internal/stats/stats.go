// Package stats collects capture pipeline timings and counters for the
// monitor surface. Bounded ring buffers hold recent latency observations
// from which percentiles are computed on demand, so a long session never
// grows the stats footprint.
package stats

import (
	"math"
	"slices"
	"sync"
	"time"
)

// defaultWindow is the per-stage sample retention when none is configured.
const defaultWindow = 256

// Pipeline accumulates observations from one capture session: the gap
// between consecutive batch arrivals, envelope append cost, WAV encode cost
// and blocking poll-read cost, plus running counters.
//
// Safe for concurrent use.
type Pipeline struct {
	mu sync.Mutex

	batchGap  ring
	envAppend ring
	encode    ring
	pollRead  ring

	batches int64
	samples int64
	dropped int64
	errors  int64
}

// New creates a Pipeline retaining up to window samples per stage.
func New(window int) *Pipeline {
	if window <= 0 {
		window = defaultWindow
	}
	return &Pipeline{
		batchGap:  newRing(window),
		envAppend: newRing(window),
		encode:    newRing(window),
		pollRead:  newRing(window),
	}
}

// RecordBatchGap records the interval between two batch arrivals.
func (p *Pipeline) RecordBatchGap(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchGap.add(d)
}

// RecordAppend records one envelope append duration.
func (p *Pipeline) RecordAppend(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envAppend.add(d)
}

// RecordEncode records one WAV encode duration.
func (p *Pipeline) RecordEncode(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.encode.add(d)
}

// RecordPollRead records one blocking stream read duration.
func (p *Pipeline) RecordPollRead(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollRead.add(d)
}

// AddBatch counts one delivered batch of the given sample count.
func (p *Pipeline) AddBatch(sampleCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches++
	p.samples += int64(sampleCount)
}

// SetDropped records the running dropped-batch total reported by the engine.
func (p *Pipeline) SetDropped(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropped = n
}

// IncrErrors increments the error counter.
func (p *Pipeline) IncrErrors() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
}

// Reset clears all samples and counters for a new take.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchGap.reset()
	p.envAppend.reset()
	p.encode.reset()
	p.pollRead.reset()
	p.batches = 0
	p.samples = 0
	p.dropped = 0
	p.errors = 0
}

// Percentiles holds nearest-rank p50 and p95 values for one stage.
type Percentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
}

// Snapshot is a point-in-time view of all pipeline statistics.
type Snapshot struct {
	BatchGap Percentiles `json:"batch_gap"`
	Append   Percentiles `json:"append"`
	Encode   Percentiles `json:"encode"`
	PollRead Percentiles `json:"poll_read"`
	Batches  int64       `json:"batches"`
	Samples  int64       `json:"samples"`
	Dropped  int64       `json:"dropped"`
	Errors   int64       `json:"errors"`
}

// Snapshot returns a point-in-time view of all pipeline statistics.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Snapshot{
		BatchGap: p.batchGap.percentiles(),
		Append:   p.envAppend.percentiles(),
		Encode:   p.encode.percentiles(),
		PollRead: p.pollRead.percentiles(),
		Batches:  p.batches,
		Samples:  p.samples,
		Dropped:  p.dropped,
		Errors:   p.errors,
	}
}

// ring is a bounded buffer of duration samples, oldest overwritten first.
type ring struct {
	data  []time.Duration
	head  int
	count int
}

func newRing(size int) ring {
	return ring{data: make([]time.Duration, size)}
}

func (r *ring) add(d time.Duration) {
	r.data[r.head] = d
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

func (r *ring) reset() {
	r.head = 0
	r.count = 0
}

func (r *ring) percentiles() Percentiles {
	if r.count == 0 {
		return Percentiles{}
	}
	sorted := make([]time.Duration, r.count)
	copy(sorted, r.data[:r.count])
	slices.Sort(sorted)
	return Percentiles{
		P50: nearestRank(sorted, 0.50),
		P95: nearestRank(sorted, 0.95),
	}
}

// nearestRank returns the value at percentile p (0..1) of a sorted slice.
func nearestRank(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
