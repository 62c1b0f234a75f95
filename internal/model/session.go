package model

import "time"

// ExamMode distinguishes short practice quizzes from the long-form exam.
type ExamMode string

const (
	ModeQuiz ExamMode = "quiz"
	ModeFull ExamMode = "full"
)

// SessionStatus enumerates exam session states. The only terminal state is
// SUBMITTED; a failed submission reverts to ACTIVE so retry is lossless.
type SessionStatus string

const (
	StatusActive     SessionStatus = "ACTIVE"
	StatusSubmitting SessionStatus = "SUBMITTING"
	StatusSubmitted  SessionStatus = "SUBMITTED"
)

// ExamSession represents one exam attempt. The session ID is the sole
// namespacing key for all durable attempt state; it is provisional
// (client-minted) until the question-selection call returns a server id.
type ExamSession struct {
	ID        string        `json:"session_id"`
	Mode      ExamMode      `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Status    SessionStatus `json:"status"`
}

// Route selects the terminal view after a successful submission.
type Route string

const (
	// RouteHome is the generic "clear and return" path.
	RouteHome Route = "home"
	// RouteResults is the dedicated results view for a completed full exam.
	RouteResults Route = "results"
)

// Summary is the server's scoring response to a submission.
type Summary struct {
	TotalCorrect   int `json:"totalCorrect"`
	TotalQuestions int `json:"totalQuestions"`
}

// Checkpoint describes a scheduled pause point in a full exam. Index is the
// 0-based display index the pause fires at; Number is 1-based ordinal.
type Checkpoint struct {
	Index  int           `json:"index"`
	Number int           `json:"number"`
	Pause  time.Duration `json:"pause"`
}
