package engine

import (
	"sync"
	"time"

	"github.com/pmplabs/examsim/internal/model"
)

// DefaultFlushDebounce is how long the ledger waits after a mutation before
// triggering a durable flush, so a burst of quick selections costs one write.
const DefaultFlushDebounce = 300 * time.Millisecond

// AnswerLedger is the in-memory map from question identity to the user's
// current selection. Every mutation schedules — but never blocks on — a
// debounced flush through the callback supplied at construction.
type AnswerLedger struct {
	mu       sync.Mutex
	answers  map[int64]model.Answer
	flush    func()
	debounce time.Duration
	timer    *time.Timer
	locked   bool
}

// NewAnswerLedger creates an empty ledger. flush is invoked asynchronously
// after the debounce window closes; it may be nil for detached use.
func NewAnswerLedger(flush func(), debounce time.Duration) *AnswerLedger {
	if debounce <= 0 {
		debounce = DefaultFlushDebounce
	}
	return &AnswerLedger{
		answers:  make(map[int64]model.Answer),
		flush:    flush,
		debounce: debounce,
	}
}

// Set records the selection for a question, overwriting any previous answer.
// Selections are option identities; the first id is the primary selection.
func (l *AnswerLedger) Set(questionID int64, multiSelect bool, optionIDs ...int64) {
	l.mu.Lock()

	ids := make([]int64, len(optionIDs))
	copy(ids, optionIDs)
	l.answers[questionID] = model.Answer{
		QuestionID:  questionID,
		MultiSelect: multiSelect,
		OptionIDs:   ids,
	}

	l.scheduleFlushLocked()
	l.mu.Unlock()
}

// Toggle flips one option in a multi-select answer, creating the answer when
// absent.
func (l *AnswerLedger) Toggle(questionID, optionID int64) {
	l.mu.Lock()

	a := l.answers[questionID]
	a.QuestionID = questionID
	a.MultiSelect = true

	kept := a.OptionIDs[:0]
	removed := false
	for _, id := range a.OptionIDs {
		if id == optionID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	if !removed {
		kept = append(kept, optionID)
	}
	a.OptionIDs = kept
	l.answers[questionID] = a

	l.scheduleFlushLocked()
	l.mu.Unlock()
}

// Get returns the stored answer for a question.
func (l *AnswerLedger) Get(questionID int64) (model.Answer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.answers[questionID]
	return a, ok
}

// AnsweredCount returns the number of distinct answered questions.
func (l *AnswerLedger) AnsweredCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, a := range l.answers {
		if len(a.OptionIDs) > 0 {
			n++
		}
	}
	return n
}

// Snapshot returns a full copy of the ledger for persistence. Flushes are
// whole overwrites, never deltas, so the last write always wins cleanly.
func (l *AnswerLedger) Snapshot() map[int64]model.Answer {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int64]model.Answer, len(l.answers))
	for k, v := range l.answers {
		ids := make([]int64, len(v.OptionIDs))
		copy(ids, v.OptionIDs)
		v.OptionIDs = ids
		out[k] = v
	}
	return out
}

// Restore replaces the ledger contents from a persisted snapshot without
// scheduling a flush.
func (l *AnswerLedger) Restore(answers map[int64]model.Answer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.answers = make(map[int64]model.Answer, len(answers))
	for k, v := range answers {
		l.answers[k] = v
	}
}

// scheduleFlushLocked (re)arms the debounce timer. Caller holds l.mu.
func (l *AnswerLedger) scheduleFlushLocked() {
	if l.flush == nil || l.locked {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, l.flush)
}

// StopFlushes cancels any pending flush; used just before terminal state so
// a late timer never writes into a cleared namespace.
func (l *AnswerLedger) StopFlushes() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.locked = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// ResolveDisplayIndex returns the index within the question's frozen order
// whose option id matches the answer's primary selection. Resolution is by
// identity, never by cached position: the frozen order makes the position
// stable in practice, but identity lookup stays correct even if legacy
// index-based data were ever loaded.
func ResolveDisplayIndex(q model.Question, a model.Answer) (int, bool) {
	primary, ok := a.Primary()
	if !ok {
		return 0, false
	}
	for i, opt := range q.Shuffled {
		if opt.ID == primary {
			return i, true
		}
	}
	return 0, false
}
