package model

// ProgressSnapshot is the durable slice of timing and navigation state.
// Quiz mode counts elapsed seconds up; full mode counts remaining seconds
// down (clamped at zero, which forces submission).
type ProgressSnapshot struct {
	CurrentIndex     int `json:"current_index"`
	ElapsedSeconds   int `json:"elapsed_seconds"`
	RemainingSeconds int `json:"remaining_seconds"`
}

// AttemptSnapshot is the coarse one-blob restore point persisted alongside
// the fine-grained per-kind keys. One read is enough to resume an attempt.
type AttemptSnapshot struct {
	SessionID string           `json:"sessionId"`
	Mode      ExamMode         `json:"mode"`
	StartedAt int64            `json:"startedAt"`
	Order     []int64          `json:"order"`
	Answers   map[int64]Answer `json:"answers"`
	Progress  ProgressSnapshot `json:"progress"`
}
