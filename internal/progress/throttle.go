// Package progress rate-limits scan progress reports.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumipallolabs/dirsize/internal/model"
)

const (
	// DefaultInterval is the time gate between two snapshots.
	DefaultInterval = 2 * time.Second
	// DefaultByteTrigger is the byte delta that allows an early snapshot.
	DefaultByteTrigger int64 = 1_000_000
	// MinInterval is the lower bound applied to any configured interval.
	MinInterval = 100 * time.Millisecond
	// MinByteTrigger is the lower bound applied to any configured byte trigger.
	MinByteTrigger int64 = 64 << 10

	// window is the number of past snapshots the throughput average spans.
	window = 5
)

// Notifier receives every emitted snapshot, in order. It is called while the
// throttle holds its emit lock and should return quickly.
type Notifier func(model.ProgressSnapshot)

type sample struct {
	elapsed time.Duration
	bytes   int64
}

// Throttle counts processed entries and bytes from any number of goroutines
// and turns them into a strictly ordered series of snapshots. Recording never
// blocks: only one caller at a time decides whether to emit, and callers that
// find the decision already taken simply move on.
type Throttle struct {
	interval    time.Duration
	byteGate    time.Duration
	byteTrigger int64
	notify      Notifier
	now         func() time.Time
	start       time.Time

	entries   atomic.Int64
	bytes     atomic.Int64
	lastAt    atomic.Int64 // elapsed nanoseconds at the last snapshot
	lastBytes atomic.Int64

	mu      sync.Mutex
	history []model.ProgressSnapshot
	samples []sample
}

// New returns a Throttle started now. Zero values select the defaults;
// values below the minimums are raised to them.
func New(interval time.Duration, byteTrigger int64, notify Notifier) *Throttle {
	return newThrottle(interval, byteTrigger, notify, time.Now)
}

func newThrottle(interval time.Duration, byteTrigger int64, notify Notifier, now func() time.Time) *Throttle {
	if interval == 0 {
		interval = DefaultInterval
	}
	if byteTrigger == 0 {
		byteTrigger = DefaultByteTrigger
	}
	interval = max(interval, MinInterval)
	byteTrigger = max(byteTrigger, MinByteTrigger)
	return &Throttle{
		interval:    interval,
		byteGate:    max(interval/2, MinInterval),
		byteTrigger: byteTrigger,
		notify:      notify,
		now:         now,
		start:       now(),
		samples:     []sample{{}},
	}
}

// Record adds processed entries and bytes and emits a snapshot if a gate
// has opened.
func (t *Throttle) Record(entries, bytes int64) {
	t.entries.Add(entries)
	b := t.bytes.Add(bytes)
	if !t.due(t.now().Sub(t.start), b) {
		return
	}
	if !t.mu.TryLock() {
		return
	}
	defer t.mu.Unlock()

	elapsed := t.now().Sub(t.start)
	if t.due(elapsed, t.bytes.Load()) {
		t.emit(elapsed, false)
	}
}

func (t *Throttle) due(elapsed time.Duration, bytes int64) bool {
	since := elapsed - time.Duration(t.lastAt.Load())
	if since >= t.interval {
		return true
	}
	return since >= t.byteGate && bytes-t.lastBytes.Load() >= t.byteTrigger
}

// emit appends a snapshot; t.mu must be held.
func (t *Throttle) emit(elapsed time.Duration, final bool) (model.ProgressSnapshot, bool) {
	entries, bytes := t.entries.Load(), t.bytes.Load()
	if n := len(t.history); n > 0 {
		last := t.history[n-1]
		if entries <= last.ProcessedEntries {
			return last, false
		}
		if elapsed <= last.Elapsed {
			elapsed = last.Elapsed + time.Nanosecond
		}
	}

	oldest := t.samples[0]
	snap := model.ProgressSnapshot{
		Time:             t.start.Add(elapsed),
		Elapsed:          elapsed,
		ProcessedEntries: entries,
		ProcessedBytes:   bytes,
		Throughput:       rate(bytes-oldest.bytes, elapsed-oldest.elapsed),
	}
	if final {
		snap.Completion = 1
	}

	t.samples = append(t.samples, sample{elapsed: elapsed, bytes: bytes})
	if len(t.samples) > window {
		t.samples = t.samples[len(t.samples)-window:]
	}
	t.history = append(t.history, snap)
	t.lastAt.Store(int64(elapsed))
	t.lastBytes.Store(bytes)
	if t.notify != nil {
		t.notify(snap)
	}
	return snap, true
}

// Finish emits the final snapshot regardless of the gates. When nothing was
// processed since the last snapshot, that one is marked final instead. It
// returns the last snapshot of the series and whether one exists.
func (t *Throttle) Finish() (model.ProgressSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries.Load() == 0 && len(t.history) == 0 {
		return model.ProgressSnapshot{}, false
	}
	snap, ok := t.emit(t.now().Sub(t.start), true)
	if !ok {
		// The last snapshot already covers everything; mark it final.
		t.history[len(t.history)-1].Completion = 1
		snap.Completion = 1
	}
	return snap, true
}

// Snapshots returns a copy of every snapshot emitted so far.
func (t *Throttle) Snapshots() []model.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.ProgressSnapshot, len(t.history))
	copy(out, t.history)
	return out
}

// Counts returns the running totals.
func (t *Throttle) Counts() (entries, bytes int64) {
	return t.entries.Load(), t.bytes.Load()
}

func rate(bytes int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(bytes) / d.Seconds()
}
