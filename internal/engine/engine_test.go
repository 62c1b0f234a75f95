package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/api"
	"github.com/pmplabs/examsim/internal/model"
	"github.com/pmplabs/examsim/internal/store"
)

// examServer is a minimal in-test implementation of the two upstream
// endpoints.
type examServer struct {
	sessionID string
	questions []map[string]any
	submits   chan api.SubmitRequest
	failNext  bool
}

func newExamServer(sessionID string, questions ...map[string]any) *examServer {
	return &examServer{
		sessionID: sessionID,
		questions: questions,
		submits:   make(chan api.SubmitRequest, 4),
	}
}

func wireQuestion(id int64, optionIDs ...int64) map[string]any {
	opts := make([]map[string]any, len(optionIDs))
	for i, oid := range optionIDs {
		opts[i] = map[string]any{"id": oid, "descricao": fmt.Sprintf("option %d", oid)}
	}
	return map[string]any{"id": id, "descricao": fmt.Sprintf("question %d", id), "options": opts}
}

func (s *examServer) handler(correct map[int64]int64) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/exams/select", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sessionId": s.sessionID,
			"questions": s.questions,
			"total":     len(s.questions),
		})
	})

	mux.HandleFunc("/api/exams/submit", func(w http.ResponseWriter, r *http.Request) {
		if s.failNext {
			s.failNext = false
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}

		var req api.SubmitRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.submits <- req

		score := 0
		for _, a := range req.Answers {
			if a.QuestionID != nil && a.OptionID != nil && correct[*a.QuestionID] == *a.OptionID {
				score++
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"totalCorrect":   score,
			"totalQuestions": len(req.Answers),
		})
	})

	return mux
}

type testRig struct {
	engine  *Engine
	store   *store.SessionStore
	backend *store.Memory
	server  *examServer
}

func newRig(t *testing.T, cfg Config, srv *examServer, correct map[int64]int64) *testRig {
	t.Helper()

	ts := httptest.NewServer(srv.handler(correct))
	t.Cleanup(ts.Close)

	backend := store.NewMemory()
	sessionStore := store.NewSessionStore(backend, zerolog.Nop())

	cfg.Store = sessionStore
	cfg.Client = api.NewClient(ts.URL, "", zerolog.Nop())
	cfg.Log = zerolog.Nop()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Hour // keep the clock out of deterministic tests
	}

	eng := New(cfg)
	t.Cleanup(eng.Close)

	return &testRig{engine: eng, store: sessionStore, backend: backend, server: srv}
}

func TestFreshSessionSingleQuestionFlow(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-42", wireQuestion(10, 5, 6, 7, 8))
	rig := newRig(t, Config{Mode: model.ModeQuiz, Count: 1}, srv, map[int64]int64{10: 7})

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := rig.engine.SessionID(); got != "srv-42" {
		t.Fatalf("session id %q, want srv-42", got)
	}

	if err := rig.engine.Select(7); err != nil {
		t.Fatalf("Select: %v", err)
	}

	summary, route, err := rig.engine.Submit(ctx, true)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if summary.TotalCorrect != 1 || summary.TotalQuestions != 1 {
		t.Fatalf("summary %+v, want 1/1", summary)
	}
	if route != model.RouteHome {
		t.Fatalf("route %q, want home", route)
	}

	sent := <-srv.submits
	if sent.SessionID != "srv-42" || len(sent.Answers) != 1 ||
		*sent.Answers[0].QuestionID != 10 || *sent.Answers[0].OptionID != 7 {
		t.Fatalf("submit payload %+v", sent)
	}

	// Terminal submission clears every session-scoped key.
	var sink any
	for _, kind := range store.Kinds {
		if rig.store.Load(ctx, "srv-42", kind, &sink) {
			t.Fatalf("%s still stored after submission", kind)
		}
	}
	if rig.store.CurrentSessionID(ctx) != "" {
		t.Fatal("current session pointer survived submission")
	}
	if rig.engine.Status() != model.StatusSubmitted {
		t.Fatalf("status %s", rig.engine.Status())
	}
}

func TestReloadRehydratesLedgerAndProgress(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-1", wireQuestion(1, 11, 12), wireQuestion(2, 21, 22))
	rig := newRig(t, Config{Mode: model.ModeQuiz, Count: 2}, srv, nil)

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := rig.engine.Select(12); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := rig.engine.Advance(ctx, 1); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	rig.engine.FlushNow(ctx)
	firstOrder := rig.engine.Questions()[0].Shuffled
	rig.engine.Close()

	// "Reload": a fresh engine over the same store must come back exactly,
	// without a network round trip (the select endpoint would hand out a
	// fresh session, which this rig would notice as a changed id).
	reloaded := New(Config{
		Mode:         model.ModeQuiz,
		Count:        2,
		Store:        rig.store,
		Client:       api.NewClient("http://127.0.0.1:1", "", zerolog.Nop()),
		Log:          zerolog.Nop(),
		TickInterval: time.Hour,
	})
	t.Cleanup(reloaded.Close)

	if err := reloaded.Start(ctx); err != nil {
		t.Fatalf("reload Start: %v", err)
	}

	if got := reloaded.SessionID(); got != "srv-1" {
		t.Fatalf("reloaded session id %q, want srv-1", got)
	}
	a, ok := reloaded.Answer(1)
	if !ok || a.OptionIDs[0] != 12 {
		t.Fatalf("answer not rehydrated: %+v (ok=%v)", a, ok)
	}
	if got := reloaded.CurrentIndex(); got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}

	// The frozen order survives the reload byte for byte.
	if !reflect.DeepEqual(firstOrder, reloaded.Questions()[0].Shuffled) {
		t.Fatal("frozen option order changed across reload")
	}
}

func TestProvisionalStateMigratesToServerID(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-42", wireQuestion(1, 11, 12))
	rig := newRig(t, Config{Mode: model.ModeQuiz, Count: 1}, srv, nil)

	// State accumulated under a provisional id before any server contact.
	rig.store.SetTempSessionID(ctx, "tmp-abc")
	rig.store.SetCurrentSessionID(ctx, "tmp-abc")
	rig.store.Save(ctx, "tmp-abc", store.KindAnswers, map[int64]model.Answer{
		1: {QuestionID: 1, OptionIDs: []int64{12}},
	})

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := rig.engine.SessionID(); got != "srv-42" {
		t.Fatalf("session id %q, want srv-42", got)
	}

	var answers map[int64]model.Answer
	if !rig.store.Load(ctx, "srv-42", store.KindAnswers, &answers) {
		t.Fatal("answers missing under server id")
	}
	if answers[1].OptionIDs[0] != 12 {
		t.Fatalf("migrated answer corrupted: %+v", answers[1])
	}
	if rig.store.Load(ctx, "tmp-abc", store.KindAnswers, &answers) {
		t.Fatal("answers still stored under provisional id")
	}

	// The engine rehydrated the migrated ledger too.
	a, ok := rig.engine.Answer(1)
	if !ok || a.OptionIDs[0] != 12 {
		t.Fatalf("ledger not rehydrated after migration: %+v", a)
	}
}

func TestCountdownExpiryForcesSubmission(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-9", wireQuestion(1, 11, 12))
	rig := newRig(t, Config{
		Mode:                model.ModeFull,
		Count:               1,
		TickInterval:        5 * time.Millisecond,
		FullDurationSeconds: 2,
	}, srv, nil)

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// No answer recorded: expiry must bypass the final-question guard.
	deadline := time.After(2 * time.Second)
	for rig.engine.Status() != model.StatusSubmitted {
		select {
		case <-deadline:
			t.Fatal("forced submission never happened")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	sent := <-srv.submits
	if len(sent.Answers) != 1 || sent.Answers[0].OptionID != nil {
		t.Fatalf("forced payload %+v", sent.Answers)
	}
}

func TestSubmitFailureIsRecoverable(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-5", wireQuestion(1, 11, 12))
	srv.failNext = true
	rig := newRig(t, Config{Mode: model.ModeQuiz, Count: 1}, srv, map[int64]int64{1: 11})

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.engine.Select(11)

	if _, _, err := rig.engine.Submit(ctx, true); err == nil {
		t.Fatal("first submit unexpectedly succeeded")
	}

	// Local state survives the failure: status reverted and answers intact.
	if got := rig.engine.Status(); got != model.StatusActive {
		t.Fatalf("status %s, want ACTIVE", got)
	}
	if _, ok := rig.engine.Answer(1); !ok {
		t.Fatal("answer lost on failed submit")
	}

	summary, _, err := rig.engine.Submit(ctx, true)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if summary.TotalCorrect != 1 {
		t.Fatalf("retry summary %+v", summary)
	}
}

func TestSelectFailureFallsBackToPlaceholder(t *testing.T) {
	ctx := context.Background()

	backend := store.NewMemory()
	eng := New(Config{
		Mode:         model.ModeQuiz,
		Count:        1,
		Store:        store.NewSessionStore(backend, zerolog.Nop()),
		Client:       api.NewClient("http://127.0.0.1:1", "", zerolog.Nop()),
		Log:          zerolog.Nop(),
		TickInterval: time.Hour,
	})
	t.Cleanup(eng.Close)

	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	qs := eng.Questions()
	if len(qs) != 1 || qs[0].ID != -1 {
		t.Fatalf("expected placeholder question, got %+v", qs)
	}
	if len(qs[0].Shuffled) != len(qs[0].Options) {
		t.Fatal("placeholder order not frozen")
	}
}

func TestInsufficientQuestionsSurfacesToCaller(t *testing.T) {
	// available 0 is the strictest case: a filter matching nothing must still
	// surface as the user-correctable error, never the placeholder fallback.
	for _, available := range []int{3, 0} {
		ctx := context.Background()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error":     "not enough questions matched the filter",
				"available": available,
			})
		}))

		eng := New(Config{
			Mode:         model.ModeQuiz,
			Count:        50,
			Store:        store.NewSessionStore(store.NewMemory(), zerolog.Nop()),
			Client:       api.NewClient(ts.URL, "", zerolog.Nop()),
			Log:          zerolog.Nop(),
			TickInterval: time.Hour,
		})

		err := eng.Start(ctx)
		var insufficient *api.InsufficientQuestionsError
		if !errors.As(err, &insufficient) {
			t.Fatalf("available=%d: got %v, want InsufficientQuestionsError", available, err)
		}
		if insufficient.Available != available {
			t.Fatalf("available = %d, want %d", insufficient.Available, available)
		}
		if len(eng.Questions()) != 0 {
			t.Fatalf("available=%d: placeholder served despite correctable error", available)
		}

		eng.Close()
		ts.Close()
	}
}

func TestExpiredSnapshotResumesForcedSubmission(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-8", wireQuestion(1, 11, 12))
	rig := newRig(t, Config{Mode: model.ModeFull, Count: 1, FullDurationSeconds: 60}, srv, nil)

	// A previous run whose countdown hit zero but whose forced submission
	// never landed: the snapshot persists at zero remaining.
	rig.store.SetCurrentSessionID(ctx, "srv-8")
	rig.store.Save(ctx, "srv-8", store.KindQuestions, []model.Question{
		{ID: 1, Text: "q", Options: []model.Option{{ID: 11}, {ID: 12}}},
	})
	rig.store.Save(ctx, "srv-8", store.KindProgress, model.ProgressSnapshot{RemainingSeconds: 0})

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for rig.engine.Status() != model.StatusSubmitted {
		select {
		case <-deadline:
			t.Fatal("expired snapshot never forced a submission")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	sent := <-srv.submits
	if sent.SessionID != "srv-8" {
		t.Fatalf("submitted session %q, want srv-8", sent.SessionID)
	}
}

func TestAccessorsBeforeStart(t *testing.T) {
	eng := New(Config{
		Mode:         model.ModeFull,
		Count:        1,
		Store:        store.NewSessionStore(store.NewMemory(), zerolog.Nop()),
		Client:       api.NewClient("http://127.0.0.1:1", "", zerolog.Nop()),
		Log:          zerolog.Nop(),
		TickInterval: time.Hour,
	})
	t.Cleanup(eng.Close)

	// Every accessor must answer with zero values before Start, not panic.
	if got := eng.CurrentIndex(); got != 0 {
		t.Fatalf("index = %d", got)
	}
	if q := eng.CurrentQuestion(); q.ID != 0 {
		t.Fatalf("question = %+v", q)
	}
	if snap := eng.Progress(); snap.RemainingSeconds != DefaultFullDurationSeconds {
		t.Fatalf("progress = %+v", snap)
	}
	if eng.AnsweredCount() != 0 || eng.SessionID() != "" || eng.Status() != model.StatusActive {
		t.Fatal("pre-start state not zero")
	}
}

func TestLateFlushAfterSubmissionWritesNothing(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-6", wireQuestion(1, 11, 12))
	rig := newRig(t, Config{Mode: model.ModeQuiz, Count: 1}, srv, nil)

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rig.engine.Select(11)
	if _, _, err := rig.engine.Submit(ctx, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// A flush that was in flight when the terminal transition landed must not
	// repopulate the cleared namespace.
	rig.engine.flushAnswers()
	rig.engine.flushProgress(ctx)

	var sink any
	for _, kind := range store.Kinds {
		if rig.store.Load(ctx, "srv-6", kind, &sink) {
			t.Fatalf("%s rewritten after terminal submission", kind)
		}
	}
}

func TestFlushMonotonicity(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-7",
		wireQuestion(1, 11, 12), wireQuestion(2, 21, 22), wireQuestion(3, 31, 32))
	rig := newRig(t, Config{Mode: model.ModeQuiz, Count: 3}, srv, nil)

	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Interleave interaction-triggered and explicit flushes; the stored
	// ledger must equal the in-memory ledger at the last flush exactly.
	rig.engine.Select(11)
	rig.engine.FlushNow(ctx)
	rig.engine.Advance(ctx, 1)
	rig.engine.Select(22)
	rig.engine.FlushNow(ctx)
	rig.engine.Select(21) // overwrite
	rig.engine.FlushNow(ctx)

	var stored map[int64]model.Answer
	if !rig.store.Load(ctx, "srv-7", store.KindAnswers, &stored) {
		t.Fatal("ledger not stored")
	}

	if len(stored) != 2 {
		t.Fatalf("stored %d answers, want 2", len(stored))
	}
	if stored[1].OptionIDs[0] != 11 || stored[2].OptionIDs[0] != 21 {
		t.Fatalf("stored ledger diverged: %+v", stored)
	}
}

func TestReadinessGate(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-3", wireQuestion(1, 11, 12))
	rig := newRig(t, Config{
		Mode:         model.ModeQuiz,
		Count:        1,
		GateStart:    true,
		ReadyTimeout: 50 * time.Millisecond,
	}, srv, nil)

	// Nobody signals, no probe: the bounded gate must time out, not hang.
	if err := rig.engine.Start(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("got %v, want ErrNotReady", err)
	}
}

func TestReadinessGateSignal(t *testing.T) {
	ctx := context.Background()
	srv := newExamServer("srv-3", wireQuestion(1, 11, 12))
	rig := newRig(t, Config{
		Mode:      model.ModeQuiz,
		Count:     1,
		GateStart: true,
	}, srv, nil)

	rig.engine.SignalReady()
	if err := rig.engine.Start(ctx); err != nil {
		t.Fatalf("Start after signal: %v", err)
	}
}
