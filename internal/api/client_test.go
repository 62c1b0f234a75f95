package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/model"
)

func TestSelectNormalizesWireVariants(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One question per historic wire variant: descricao fields with ids,
		// text fields without ids.
		w.Write([]byte(`{
			"sessionId": "srv-1",
			"questions": [
				{"id": 10, "descricao": "q-ten", "options": [
					{"id": 5, "descricao": "opt-five"},
					{"id": 6, "descricao": "opt-six"}
				]},
				{"text": "q-offline", "options": [
					{"text": "opt-a"},
					{"text": "opt-b"},
					{"text": "opt-c"}
				]}
			],
			"total": 2
		}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", zerolog.Nop())
	res, err := c.Select(context.Background(), SelectRequest{Count: 2})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if res.SessionID != "srv-1" || res.Total != 2 || len(res.Questions) != 2 {
		t.Fatalf("envelope mismatch: %+v", res)
	}

	q0 := res.Questions[0]
	if q0.ID != 10 || q0.Text != "q-ten" || q0.Options[0].ID != 5 || q0.Options[0].Text != "opt-five" {
		t.Fatalf("descricao variant mismatch: %+v", q0)
	}

	// The id-less variant gets stable negative positional ids.
	q1 := res.Questions[1]
	if q1.ID != -2 {
		t.Fatalf("synthetic question id = %d, want -2", q1.ID)
	}
	for i, opt := range q1.Options {
		if opt.ID != model.SyntheticOptionID(i) {
			t.Fatalf("option %d id = %d, want %d", i, opt.ID, model.SyntheticOptionID(i))
		}
	}
	if q1.Options[2].Text != "opt-c" {
		t.Fatalf("option text lost: %+v", q1.Options)
	}
}

func TestSelectPrefersTextOverDescricao(t *testing.T) {
	wq := wireQuestion{Text: "canonical", Descricao: "legacy"}
	if got := normalize(0, wq).Text; got != "canonical" {
		t.Fatalf("text = %q, want canonical", got)
	}

	wq = wireQuestion{Descricao: "legacy-only"}
	if got := normalize(0, wq).Text; got != "legacy-only" {
		t.Fatalf("text = %q, want legacy-only", got)
	}
}

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"sessionId":"s","questions":[],"total":0}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "tok-123", zerolog.Nop())
	if _, err := c.Select(context.Background(), SelectRequest{}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestInsufficientQuestionsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "not enough questions", "available": 12})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", zerolog.Nop())
	_, err := c.Select(context.Background(), SelectRequest{Count: 100})

	var insufficient *InsufficientQuestionsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientQuestionsError", err)
	}
	if insufficient.Available != 12 || insufficient.Message != "not enough questions" {
		t.Fatalf("error fields: %+v", insufficient)
	}
}

func TestInsufficientQuestionsWithZeroAvailable(t *testing.T) {
	// A filter matching nothing reports available 0; the presence of the
	// field, not its value, marks the user-correctable case.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "not enough questions matched the filter", "available": 0})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", zerolog.Nop())
	_, err := c.Select(context.Background(), SelectRequest{Count: 5, Dominios: []int{99}})

	var insufficient *InsufficientQuestionsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientQuestionsError", err)
	}
	if insufficient.Available != 0 {
		t.Fatalf("available = %d, want 0", insufficient.Available)
	}
}

func TestPlainServerErrorIsNotInsufficient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": "database down"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", zerolog.Nop())
	_, err := c.Select(context.Background(), SelectRequest{})
	if err == nil {
		t.Fatal("expected error")
	}

	var insufficient *InsufficientQuestionsError
	if errors.As(err, &insufficient) {
		t.Fatalf("plain failure misclassified: %v", err)
	}
}

func TestSubmitSendsPayloadAndDecodesSummary(t *testing.T) {
	var got SubmitRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"totalCorrect": 3, "totalQuestions": 5})
	}))
	defer ts.Close()

	qid, oid := int64(10), int64(7)
	c := NewClient(ts.URL, "", zerolog.Nop())
	summary, err := c.Submit(context.Background(), SubmitRequest{
		SessionID: "srv-1",
		Answers: []AnswerPayload{
			{QuestionID: &qid, OptionID: &oid},
			{QuestionID: nil, OptionID: nil},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if summary.TotalCorrect != 3 || summary.TotalQuestions != 5 {
		t.Fatalf("summary %+v", summary)
	}
	if got.SessionID != "srv-1" || len(got.Answers) != 2 {
		t.Fatalf("payload %+v", got)
	}
	if *got.Answers[0].OptionID != 7 || got.Answers[1].OptionID != nil {
		t.Fatalf("answers %+v", got.Answers)
	}
}
