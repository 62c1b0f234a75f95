package api

import (
	"github.com/pmplabs/examsim/internal/model"
)

// SelectRequest is the question-selection payload. Field names follow the
// upstream wire contract.
type SelectRequest struct {
	Count          int   `json:"count,omitempty"`
	Dominios       []int `json:"dominios,omitempty"`
	KnowledgeAreas []int `json:"codareaconhecimento,omitempty"`
	ProcessGroups  []int `json:"codgrupoprocesso,omitempty"`
}

// wireOption is an answer option as the server sends it. The id may be
// absent for synthetic/offline question data.
type wireOption struct {
	ID        *int64 `json:"id"`
	Descricao string `json:"descricao"`
	Text      string `json:"text"`
}

// wireQuestion is a question as the server sends it. Historic producers
// disagree on the text field name; normalization resolves that here, once,
// so the engine never branches on field-name variants again.
type wireQuestion struct {
	ID        *int64       `json:"id"`
	Descricao string       `json:"descricao"`
	Text      string       `json:"text"`
	Options   []wireOption `json:"options"`
}

type selectResponse struct {
	SessionID string         `json:"sessionId"`
	Questions []wireQuestion `json:"questions"`
	Total     int            `json:"total"`
}

// selectError is the non-200 select body. Available is a pointer so the
// insufficient-questions case is recognized by the field's presence; a filter
// matching nothing legitimately reports available 0.
type selectError struct {
	Error     string `json:"error"`
	Available *int   `json:"available"`
}

// AnswerPayload is one entry of the submission wire payload. Both ids are
// null when the question went unanswered.
type AnswerPayload struct {
	QuestionID *int64 `json:"questionId"`
	OptionID   *int64 `json:"optionId"`
}

// SubmitRequest is the submission payload.
type SubmitRequest struct {
	SessionID string          `json:"sessionId"`
	Answers   []AnswerPayload `json:"answers"`
}

// SelectResult is the normalized outcome of a question-selection call.
type SelectResult struct {
	SessionID string
	Questions []model.Question
	Total     int
}

// normalize converts a wire question into the canonical shape. Missing ids
// are synthesized from position so identity-based answer resolution is the
// only path: question ids get negative positional values, option ids get
// per-question negative positional values.
func normalize(pos int, wq wireQuestion) model.Question {
	q := model.Question{
		Text: firstNonEmpty(wq.Text, wq.Descricao),
	}

	if wq.ID != nil {
		q.ID = *wq.ID
	} else {
		q.ID = -int64(pos + 1)
	}

	q.Options = make([]model.Option, len(wq.Options))
	for i, wo := range wq.Options {
		opt := model.Option{Text: firstNonEmpty(wo.Text, wo.Descricao)}
		if wo.ID != nil {
			opt.ID = *wo.ID
		} else {
			opt.ID = model.SyntheticOptionID(i)
		}
		q.Options[i] = opt
	}

	return q
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
