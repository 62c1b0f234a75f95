package engine

import (
	"time"

	"github.com/pmplabs/examsim/internal/model"
)

// DefaultCheckpoints are the scheduled pause points used when the exam
// blueprint does not supply its own.
var DefaultCheckpoints = []int{60, 120}

// DefaultCheckpointPause is the fixed pause duration granted at a checkpoint.
const DefaultCheckpointPause = 10 * time.Minute

// CheckpointAt reports whether currentIndex is a scheduled pause point.
// A configured checkpoint value c matches at display index c-1: the pause
// fires before entering the c-th question, after completing questions
// 1..c-1. Only full exams have checkpoints. Pure function, no side effects;
// the caller decides whether and how to pause the timer.
func CheckpointAt(mode model.ExamMode, configured []int, currentIndex int) (model.Checkpoint, bool) {
	if mode != model.ModeFull {
		return model.Checkpoint{}, false
	}

	if len(configured) == 0 {
		configured = DefaultCheckpoints
	}

	for n, c := range configured {
		if currentIndex == c-1 {
			return model.Checkpoint{
				Index:  currentIndex,
				Number: n + 1,
				Pause:  DefaultCheckpointPause,
			}, true
		}
	}

	return model.Checkpoint{}, false
}
