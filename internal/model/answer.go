package model

// Answer records the user's current selection for one question. OptionIDs
// always holds option identities, never display indices: a stored answer must
// resolve to the same chosen option even if the presentation order were ever
// recomputed. For multi-select questions the slice keeps selection order and
// the first element is the primary selection used by the submission payload.
type Answer struct {
	QuestionID  int64   `json:"question_id"`
	MultiSelect bool    `json:"multi_select"`
	OptionIDs   []int64 `json:"option_ids"`
}

// Has reports whether optionID is among the recorded selections.
func (a Answer) Has(optionID int64) bool {
	for _, id := range a.OptionIDs {
		if id == optionID {
			return true
		}
	}
	return false
}

// Primary returns the first selected option id, or false when the answer is
// empty.
func (a Answer) Primary() (int64, bool) {
	if len(a.OptionIDs) == 0 {
		return 0, false
	}
	return a.OptionIDs[0], true
}
