package engine

import (
	"errors"
	"sync"

	"github.com/pmplabs/examsim/internal/api"
	"github.com/pmplabs/examsim/internal/model"
)

var (
	// ErrUnansweredCurrent refuses the terminal transition while the current
	// question has no recorded answer. This is a UX guard for a visible
	// validation cue, not a failure to propagate.
	ErrUnansweredCurrent = errors.New("current question is unanswered")
	// ErrSubmitInFlight refuses a second submission while one is running.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrAlreadySubmitted refuses any mutation after the terminal state.
	ErrAlreadySubmitted = errors.New("session already submitted")
)

// SubmissionController drives the Active → Submitting → Submitted state
// machine. A failed submission reverts to Active with all local state
// intact, so retry is lossless. The data layer is deliberately not
// hard-locked while Submitting; callers disable their controls instead,
// because a network failure must leave the user able to retry.
type SubmissionController struct {
	mu     sync.Mutex
	status model.SessionStatus
}

// NewSubmissionController starts in Active.
func NewSubmissionController() *SubmissionController {
	return &SubmissionController{status: model.StatusActive}
}

// Status returns the current session status.
func (c *SubmissionController) Status() model.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Begin enters Submitting. currentAnswered gates the implicit "next on last
// question" path; explicit submits and forced submits (countdown expiry)
// bypass the guard.
func (c *SubmissionController) Begin(currentAnswered, forced bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case model.StatusSubmitted:
		return ErrAlreadySubmitted
	case model.StatusSubmitting:
		return ErrSubmitInFlight
	}

	if !currentAnswered && !forced {
		return ErrUnansweredCurrent
	}

	c.status = model.StatusSubmitting
	return nil
}

// Complete marks the terminal Submitted state.
func (c *SubmissionController) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = model.StatusSubmitted
}

// Fail reverts to Active. There is no terminal failed state; a failed
// submission must leave the session retryable.
func (c *SubmissionController) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == model.StatusSubmitting {
		c.status = model.StatusActive
	}
}

// BuildPayload collects the ledger into the wire payload in question order.
// Multi-select answers send only the first selection: the endpoint's wire
// format is single-answer. Unanswered questions send a null option id, and
// synthetic (negative, ingestion-assigned) ids go out as null because the
// server has no identity to score them against.
func BuildPayload(questions []model.Question, ledger *AnswerLedger) []api.AnswerPayload {
	payload := make([]api.AnswerPayload, 0, len(questions))

	for _, q := range questions {
		entry := api.AnswerPayload{}
		if q.ID > 0 {
			id := q.ID
			entry.QuestionID = &id
		}
		if a, ok := ledger.Get(q.ID); ok {
			if primary, has := a.Primary(); has && primary > 0 {
				opt := primary
				entry.OptionID = &opt
			}
		}
		payload = append(payload, entry)
	}

	return payload
}
