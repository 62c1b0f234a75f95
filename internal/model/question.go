package model

// Option is a single answer choice. ID is always present internally: when the
// upstream source omits one, ingestion synthesizes a stable negative
// positional id so answer resolution is identity-based everywhere.
type Option struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Question is a canonical exam question. Shuffled holds the frozen
// presentation order: the same options in a randomized order, computed once
// per session and never recomputed, so a stored answer keeps resolving to the
// same visual position across re-renders and reloads.
type Question struct {
	ID       int64    `json:"id"`
	Text     string   `json:"text"`
	Options  []Option `json:"options"`
	Shuffled []Option `json:"shuffled,omitempty"`
}

// SyntheticOptionID returns the stable id assigned at ingestion to the option
// at position pos of a question whose source carried no option ids.
func SyntheticOptionID(pos int) int64 {
	return -int64(pos + 1)
}

// Placeholder returns the single synthetic question the engine falls back to
// when question acquisition fails, keeping the attempt interactive.
func Placeholder() Question {
	opts := []Option{
		{ID: SyntheticOptionID(0), Text: "Plan the work"},
		{ID: SyntheticOptionID(1), Text: "Work the plan"},
		{ID: SyntheticOptionID(2), Text: "Escalate to the sponsor"},
		{ID: SyntheticOptionID(3), Text: "Update the risk register"},
	}
	return Question{
		ID:      -1,
		Text:    "Question bank is unavailable right now. Which option keeps the session going?",
		Options: opts,
	}
}
