package engine

import (
	"sync"

	"github.com/pmplabs/examsim/internal/model"
)

// DefaultFlushEveryTicks batches progress persistence: ticks arrive every
// second and writing each one would be wasteful I/O, so the snapshot flushes
// on a fixed tick cadence. Navigation flushes immediately regardless of tick
// phase, since it is a meaningful checkpoint.
const DefaultFlushEveryTicks = 5

// TickResult tells the engine what a clock tick implies.
type TickResult struct {
	// FlushDue is set every N ticks.
	FlushDue bool
	// Expired is set when a countdown reached zero, forcing submission.
	Expired bool
}

// ProgressTracker owns the navigation pointer and the attempt clock.
// Quiz mode counts up; full mode counts down, clamped at zero.
type ProgressTracker struct {
	mu            sync.Mutex
	mode          model.ExamMode
	questionCount int
	currentIndex  int
	elapsed       int
	remaining     int
	tickCount     int
	flushEvery    int
}

// NewProgressTracker creates a tracker. remainingSeconds is only meaningful
// in full mode; flushEvery <= 0 falls back to the default cadence.
func NewProgressTracker(mode model.ExamMode, questionCount, remainingSeconds, flushEvery int) *ProgressTracker {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEveryTicks
	}
	return &ProgressTracker{
		mode:          mode,
		questionCount: questionCount,
		remaining:     remainingSeconds,
		flushEvery:    flushEvery,
	}
}

// Tick advances the clock by one second.
func (p *ProgressTracker) Tick() TickResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res TickResult

	if p.mode == model.ModeFull {
		// Expiry fires once, on the 1 -> 0 transition; later ticks stay
		// clamped without re-reporting.
		if p.remaining > 0 {
			p.remaining--
			if p.remaining == 0 {
				res.Expired = true
			}
		}
	} else {
		p.elapsed++
	}

	p.tickCount++
	if p.tickCount%p.flushEvery == 0 {
		res.FlushDue = true
	}
	return res
}

// Advance moves the navigation pointer. Out-of-range targets and forward
// jumps past the next question are refused; revisiting earlier questions is
// always allowed. Returns whether the pointer moved.
func (p *ProgressTracker) Advance(to int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if to < 0 || to >= p.questionCount {
		return false
	}
	if to > p.currentIndex+1 {
		return false
	}
	p.currentIndex = to
	return true
}

// CurrentIndex returns the 0-based pointer into the question order.
func (p *ProgressTracker) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentIndex
}

// Snapshot returns the durable slice of tracker state.
func (p *ProgressTracker) Snapshot() model.ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return model.ProgressSnapshot{
		CurrentIndex:     p.currentIndex,
		ElapsedSeconds:   p.elapsed,
		RemainingSeconds: p.remaining,
	}
}

// Restore rehydrates tracker state from a persisted snapshot, clamping the
// pointer into range and the countdown at zero.
func (p *ProgressTracker) Restore(snap model.ProgressSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := snap.CurrentIndex
	if idx < 0 {
		idx = 0
	}
	if p.questionCount > 0 && idx >= p.questionCount {
		idx = p.questionCount - 1
	}
	p.currentIndex = idx
	p.elapsed = snap.ElapsedSeconds
	p.remaining = snap.RemainingSeconds
	if p.remaining < 0 {
		p.remaining = 0
	}
}

// Expired reports whether a full-mode countdown has already reached zero.
// Tick reports expiry only on the transition, so a snapshot persisted at zero
// (forced submission failed, attempt reloaded) must be checked here.
func (p *ProgressTracker) Expired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode == model.ModeFull && p.remaining <= 0
}
