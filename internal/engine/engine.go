package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/api"
	"github.com/pmplabs/examsim/internal/model"
	"github.com/pmplabs/examsim/internal/store"
)

const (
	// DefaultFullDurationSeconds is the countdown budget for a full exam.
	DefaultFullDurationSeconds = 230 * 60
	// DefaultFullQuestionCount is the question count of a complete full exam.
	DefaultFullQuestionCount = 180

	defaultReadyTimeout = 10 * time.Second
	readyPollInterval   = 250 * time.Millisecond
)

// ErrNotReady means the readiness gate never opened within its bound.
var ErrNotReady = errors.New("readiness gate timed out")

// ErrOutOfRange refuses navigation to an index outside the permitted window.
var ErrOutOfRange = errors.New("navigation target out of range")

// EventKind tags engine events.
type EventKind int

const (
	EventTick EventKind = iota
	EventCheckpoint
	EventExpired
	EventSubmitted
)

// Event is an asynchronous engine notification for the embedding UI.
type Event struct {
	Kind       EventKind
	Progress   model.ProgressSnapshot
	Checkpoint model.Checkpoint
	Summary    *model.Summary
	Route      model.Route
}

// Config parameterizes one Engine instance.
type Config struct {
	Mode           model.ExamMode
	Count          int
	Dominios       []int
	KnowledgeAreas []int
	ProcessGroups  []int

	Store  *store.SessionStore
	Client *api.Client
	Log    zerolog.Logger

	TickInterval        time.Duration
	FlushEveryTicks     int
	FlushDebounce       time.Duration
	CheckpointIndices   []int
	CheckpointPause     time.Duration
	FullQuestionCount   int
	FullDurationSeconds int

	// GateStart makes Start wait for SignalReady (or ReadyProbe as a
	// bounded polling fallback) before touching identity or the network.
	GateStart    bool
	ReadyProbe   func(context.Context) bool
	ReadyTimeout time.Duration
}

// Engine is one exam attempt: question set, frozen presentation order,
// answer ledger, clock, identity lifecycle and the terminal submission
// transition, composed behind a single object. All state lives on the
// instance; two engines never share anything but the session store.
type Engine struct {
	cfg Config
	log zerolog.Logger

	store    *store.SessionStore
	client   *api.Client
	identity *IdentityManager
	ledger   *AnswerLedger
	progress *ProgressTracker
	ctrl     *SubmissionController

	mu        sync.Mutex
	questions []model.Question
	startedAt time.Time
	summary   *model.Summary
	route     model.Route

	// flushMu serializes durable flushes against the terminal teardown, so a
	// flush already past its status check cannot write into a cleared
	// namespace.
	flushMu sync.Mutex

	ticker   *time.Ticker
	stopTick chan struct{}
	stopOnce sync.Once

	ready     chan struct{}
	readyOnce sync.Once

	events chan Event
}

// New creates an engine for one attempt. Call Start before anything else.
func New(cfg Config) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.FullQuestionCount <= 0 {
		cfg.FullQuestionCount = DefaultFullQuestionCount
	}
	if cfg.FullDurationSeconds <= 0 {
		cfg.FullDurationSeconds = DefaultFullDurationSeconds
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}

	log := cfg.Log.With().Str("component", "engine").Logger()

	e := &Engine{
		cfg:      cfg,
		log:      log,
		store:    cfg.Store,
		client:   cfg.Client,
		identity: NewIdentityManager(cfg.Store, cfg.Log),
		ctrl:     NewSubmissionController(),
		stopTick: make(chan struct{}),
		ready:    make(chan struct{}),
		events:   make(chan Event, 16),
	}
	e.ledger = NewAnswerLedger(e.flushAnswers, cfg.FlushDebounce)

	// Accessors must not panic before Start; Start swaps in the real tracker
	// once the question set is known.
	remaining := 0
	if cfg.Mode == model.ModeFull {
		remaining = cfg.FullDurationSeconds
	}
	e.progress = NewProgressTracker(cfg.Mode, 0, remaining, cfg.FlushEveryTicks)

	return e
}

// Events delivers asynchronous notifications (ticks, checkpoint hits,
// countdown expiry, terminal submission). Slow consumers lose events rather
// than blocking the engine.
func (e *Engine) Events() <-chan Event { return e.events }

// SignalReady opens the readiness gate. Idempotent.
func (e *Engine) SignalReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

// Start resolves the working session identity, acquires the question set
// (local cache first, then the select endpoint), freezes presentation
// orders, rehydrates ledger and progress from the store, and starts the
// attempt clock.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.waitReady(ctx); err != nil {
		return err
	}

	sessionID := e.identity.Resolve(ctx)

	var questions []model.Question
	cached := e.store.Load(ctx, sessionID, store.KindQuestions, &questions) && len(questions) > 0

	if !cached {
		result, err := e.client.Select(ctx, api.SelectRequest{
			Count:          e.cfg.Count,
			Dominios:       e.cfg.Dominios,
			KnowledgeAreas: e.cfg.KnowledgeAreas,
			ProcessGroups:  e.cfg.ProcessGroups,
		})
		switch {
		case err == nil:
			// Stale-response guard: the attempt may have been abandoned and
			// re-created while the request was in flight. Only the session
			// that issued the request may apply its result.
			if e.identity.Current() != sessionID {
				e.log.Warn().Str("session_id", sessionID).Msg("Select response for stale session ignored")
				return errors.New("session changed during question acquisition")
			}
			e.identity.MigrateToServer(ctx, result.SessionID)
			questions = result.Questions
		default:
			var insufficient *api.InsufficientQuestionsError
			if errors.As(err, &insufficient) {
				// User-correctable filter problem, not a degradation case.
				return err
			}
			e.log.Warn().Err(err).Msg("Question acquisition failed, falling back to placeholder")
			questions = []model.Question{model.Placeholder()}
		}
	}

	// Freezing is idempotent, so this both shuffles fresh sets and
	// self-heals cached sets persisted before an order existed.
	FreezeAll(questions)

	sessionID = e.identity.Current()
	e.store.Save(ctx, sessionID, store.KindQuestions, questions)

	e.mu.Lock()
	e.questions = questions
	e.startedAt = time.Now()
	e.mu.Unlock()

	var answers map[int64]model.Answer
	if e.store.Load(ctx, sessionID, store.KindAnswers, &answers) {
		e.ledger.Restore(answers)
	}

	remaining := 0
	if e.cfg.Mode == model.ModeFull {
		remaining = e.cfg.FullDurationSeconds
	}
	e.progress = NewProgressTracker(e.cfg.Mode, len(questions), remaining, e.cfg.FlushEveryTicks)

	var snap model.ProgressSnapshot
	if e.store.Load(ctx, sessionID, store.KindProgress, &snap) {
		e.progress.Restore(snap)
	}

	e.ticker = time.NewTicker(e.cfg.TickInterval)
	go e.run()

	e.log.Info().
		Str("session_id", sessionID).
		Str("mode", string(e.cfg.Mode)).
		Int("questions", len(questions)).
		Bool("resumed", cached).
		Msg("Attempt started")

	// A snapshot persisted at zero means the countdown ran out in a previous
	// run and the forced submission never landed; finish it now.
	if e.progress.Expired() {
		e.emit(Event{Kind: EventExpired, Progress: e.progress.Snapshot()})
		go e.forceSubmit()
	}

	return nil
}

func (e *Engine) waitReady(ctx context.Context) error {
	if !e.cfg.GateStart {
		return nil
	}

	// The one-shot signal is the primary mechanism; polling the probe is a
	// bounded safety net for callers that cannot signal.
	poll := time.NewTicker(readyPollInterval)
	defer poll.Stop()
	deadline := time.NewTimer(e.cfg.ReadyTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-e.ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrNotReady
		case <-poll.C:
			if e.cfg.ReadyProbe != nil && e.cfg.ReadyProbe(ctx) {
				return nil
			}
		}
	}
}

func (e *Engine) run() {
	for {
		select {
		case <-e.stopTick:
			return
		case <-e.ticker.C:
			e.onTick()
		}
	}
}

func (e *Engine) onTick() {
	if e.ctrl.Status() != model.StatusActive {
		return
	}

	res := e.progress.Tick()
	snap := e.progress.Snapshot()
	e.emit(Event{Kind: EventTick, Progress: snap})

	if res.FlushDue {
		e.flushProgress(context.Background())
	}

	if res.Expired {
		e.emit(Event{Kind: EventExpired, Progress: snap})
		go e.forceSubmit()
	}
}

// forceSubmit is the countdown-expiry path: it bypasses the final-question
// answer guard.
func (e *Engine) forceSubmit() {
	if _, _, err := e.submit(context.Background(), false, true); err != nil {
		e.log.Error().Err(err).Msg("Forced submission failed")
	}
}

// stopTicker halts the clock. Runs before the terminal transition so a late
// tick never flushes into a cleared namespace.
func (e *Engine) stopTicker() {
	e.stopOnce.Do(func() {
		if e.ticker != nil {
			e.ticker.Stop()
		}
		close(e.stopTick)
	})
}

// Questions returns the question set in attempt order.
func (e *Engine) Questions() []model.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.questions
}

// CurrentIndex returns the navigation pointer.
func (e *Engine) CurrentIndex() int { return e.progress.CurrentIndex() }

// CurrentQuestion returns the question under the navigation pointer.
func (e *Engine) CurrentQuestion() model.Question {
	idx := e.progress.CurrentIndex()
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx >= len(e.questions) {
		return model.Question{}
	}
	return e.questions[idx]
}

// SessionID returns the working session id.
func (e *Engine) SessionID() string { return e.identity.Current() }

// Status returns the session status.
func (e *Engine) Status() model.SessionStatus { return e.ctrl.Status() }

// Progress returns the current progress snapshot.
func (e *Engine) Progress() model.ProgressSnapshot { return e.progress.Snapshot() }

// Answer returns the recorded answer for a question.
func (e *Engine) Answer(questionID int64) (model.Answer, bool) { return e.ledger.Get(questionID) }

// AnsweredCount returns the number of answered questions.
func (e *Engine) AnsweredCount() int { return e.ledger.AnsweredCount() }

// Summary returns the score summary and terminal route once submitted.
func (e *Engine) Summary() (*model.Summary, model.Route) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary, e.route
}

// Select records a single-select answer on the current question.
func (e *Engine) Select(optionID int64) error {
	if e.ctrl.Status() == model.StatusSubmitted {
		return ErrAlreadySubmitted
	}
	e.ledger.Set(e.CurrentQuestion().ID, false, optionID)
	return nil
}

// Toggle flips one option of a multi-select answer on the current question.
func (e *Engine) Toggle(optionID int64) error {
	if e.ctrl.Status() == model.StatusSubmitted {
		return ErrAlreadySubmitted
	}
	e.ledger.Toggle(e.CurrentQuestion().ID, optionID)
	return nil
}

// Advance moves the navigation pointer. Moving forward requires an answer on
// the current question; revisiting earlier questions is always allowed.
// Navigation is a meaningful checkpoint, so progress flushes immediately
// regardless of tick phase. When the new index is a scheduled pause point
// the matching checkpoint is returned.
func (e *Engine) Advance(ctx context.Context, to int) (*model.Checkpoint, error) {
	if e.ctrl.Status() == model.StatusSubmitted {
		return nil, ErrAlreadySubmitted
	}

	current := e.progress.CurrentIndex()
	if to > current {
		if _, ok := e.ledger.Get(e.CurrentQuestion().ID); !ok {
			return nil, ErrUnansweredCurrent
		}
	}

	if !e.progress.Advance(to) {
		return nil, ErrOutOfRange
	}

	e.flushProgress(ctx)

	if cp, ok := CheckpointAt(e.cfg.Mode, e.cfg.CheckpointIndices, to); ok {
		if e.cfg.CheckpointPause > 0 {
			cp.Pause = e.cfg.CheckpointPause
		}
		e.emit(Event{Kind: EventCheckpoint, Checkpoint: cp, Progress: e.progress.Snapshot()})
		return &cp, nil
	}
	return nil, nil
}

// Submit drives the terminal transition. explicit marks a deliberate submit
// action, which on the final question bypasses the unanswered-current guard.
func (e *Engine) Submit(ctx context.Context, explicit bool) (*model.Summary, model.Route, error) {
	e.mu.Lock()
	final := e.progress.CurrentIndex() == len(e.questions)-1
	e.mu.Unlock()

	_, answered := e.ledger.Get(e.CurrentQuestion().ID)
	allowed := answered || (explicit && final)

	return e.submit(ctx, allowed, false)
}

func (e *Engine) submit(ctx context.Context, currentAnswered, forced bool) (*model.Summary, model.Route, error) {
	if err := e.ctrl.Begin(currentAnswered, forced); err != nil {
		return nil, "", err
	}

	e.mu.Lock()
	questions := e.questions
	e.mu.Unlock()

	sessionID := e.identity.Current()
	req := api.SubmitRequest{
		SessionID: sessionID,
		Answers:   BuildPayload(questions, e.ledger),
	}

	summary, err := e.client.Submit(ctx, req)
	if err != nil {
		// Recoverable: local state is untouched so retry is lossless.
		e.ctrl.Fail()
		e.log.Warn().Err(err).Msg("Submission failed, session stays active")
		return nil, "", err
	}

	route := model.RouteHome
	if e.cfg.Mode == model.ModeFull &&
		len(questions) == e.cfg.FullQuestionCount &&
		e.ledger.AnsweredCount() == len(questions) {
		route = model.RouteResults
	}

	// Order matters: the clock stops and the terminal status lands before the
	// namespace is cleared, so an in-flight flush either writes before Clear
	// (and is wiped) or observes Submitted and skips.
	e.stopTicker()
	e.ledger.StopFlushes()
	e.flushMu.Lock()
	e.ctrl.Complete()
	e.flushMu.Unlock()
	e.store.Clear(ctx, sessionID)
	e.identity.Clear(ctx)

	e.mu.Lock()
	e.summary = summary
	e.route = route
	e.mu.Unlock()

	e.emit(Event{Kind: EventSubmitted, Summary: summary, Route: route})
	e.log.Info().
		Str("session_id", sessionID).
		Int("correct", summary.TotalCorrect).
		Int("total", summary.TotalQuestions).
		Str("route", string(route)).
		Msg("Attempt submitted")

	return summary, route, nil
}

// Close stops the clock and pending flushes without submitting. The durable
// state stays in place so the attempt can resume later.
func (e *Engine) Close() {
	e.stopTicker()
	e.ledger.StopFlushes()
}

// FlushNow forces both ledger and progress to disk immediately.
func (e *Engine) FlushNow(ctx context.Context) {
	e.flushAnswers()
	e.flushProgress(ctx)
}

// flushAnswers is the ledger's debounced flush target. Each flush is a full
// overwrite of the answers slice, so interleaved tick and interaction
// flushes cannot produce partial merges.
func (e *Engine) flushAnswers() {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	if e.ctrl.Status() == model.StatusSubmitted {
		return
	}
	sessionID := e.identity.Current()
	if sessionID == "" {
		return
	}
	e.store.Save(context.Background(), sessionID, store.KindAnswers, e.ledger.Snapshot())
}

func (e *Engine) flushProgress(ctx context.Context) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	if e.ctrl.Status() == model.StatusSubmitted {
		return
	}
	sessionID := e.identity.Current()
	if sessionID == "" {
		return
	}

	snap := e.progress.Snapshot()
	e.store.Save(ctx, sessionID, store.KindProgress, snap)

	e.mu.Lock()
	order := make([]int64, len(e.questions))
	for i, q := range e.questions {
		order[i] = q.ID
	}
	startedAt := e.startedAt
	e.mu.Unlock()

	e.store.SaveSnapshot(ctx, model.AttemptSnapshot{
		SessionID: sessionID,
		Mode:      e.cfg.Mode,
		StartedAt: startedAt.Unix(),
		Order:     order,
		Answers:   e.ledger.Snapshot(),
		Progress:  snap,
	})
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}
