package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/pmplabs/examsim/internal/api"
	"github.com/pmplabs/examsim/internal/config"
	"github.com/pmplabs/examsim/internal/engine"
	"github.com/pmplabs/examsim/internal/logger"
	"github.com/pmplabs/examsim/internal/model"
	"github.com/pmplabs/examsim/internal/store"
)

func main() {
	mode := flag.String("mode", "quiz", "exam mode: quiz or full")
	count := flag.Int("count", 0, "question count (quiz mode; 0 = server default)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Access Token ──────────────────────────────────────────────────
	token := cfg.AccessToken
	if token == "" {
		fmt.Print("Access token (empty for none): ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			token = strings.TrimSpace(string(raw))
		}
	}

	// ─── Open Session Store ────────────────────────────────────────────
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer backend.Close()

	sessionStore := store.NewSessionStore(backend, log)

	// ─── Build Engine ──────────────────────────────────────────────────
	examMode := model.ModeQuiz
	if *mode == "full" {
		examMode = model.ModeFull
	}
	questionCount := *count
	if questionCount == 0 && examMode == model.ModeQuiz {
		questionCount = cfg.QuizDefaultCount
	}
	if examMode == model.ModeFull {
		questionCount = cfg.FullQuestionCount
	}

	eng := engine.New(engine.Config{
		Mode:              examMode,
		Count:             questionCount,
		Store:             sessionStore,
		Client:            api.NewClient(cfg.APIBaseURL, token, log),
		Log:               log,
		TickInterval:      cfg.TickInterval,
		FlushEveryTicks:   cfg.FlushEveryTicks,
		CheckpointIndices: cfg.CheckpointIndices,
		CheckpointPause:   cfg.CheckpointPause,
		FullQuestionCount: cfg.FullQuestionCount,
		GateStart:         true,
	})
	defer eng.Close()

	if resumeID := sessionStore.CurrentSessionID(ctx); resumeID != "" {
		if snap, ok := sessionStore.LoadSnapshot(ctx, resumeID); ok {
			fmt.Printf("Resuming attempt %s (question %d, %d answered)\n",
				snap.SessionID, snap.Progress.CurrentIndex+1, len(snap.Answers))
		}
	}

	// Token entry is the registration step; the gate opens once it is done.
	eng.SignalReady()

	if err := eng.Start(ctx); err != nil {
		var insufficient *api.InsufficientQuestionsError
		if errors.As(err, &insufficient) {
			fmt.Printf("Not enough questions for this filter; %d available. Relax the filter and retry.\n",
				insufficient.Available)
			return
		}
		log.Fatal().Err(err).Msg("Failed to start attempt")
	}

	go watchEvents(eng)

	runLoop(ctx, eng)
}

// openBackend picks the durable store per configuration.
func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Backend, error) {
	switch cfg.StoreBackend {
	case "redis":
		return store.NewRedis(ctx, cfg.RedisURL, log)
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.NewSQLite(cfg.SQLitePath, log)
	}
}

// watchEvents surfaces asynchronous engine notifications.
func watchEvents(eng *engine.Engine) {
	for ev := range eng.Events() {
		switch ev.Kind {
		case engine.EventExpired:
			fmt.Println("\nTime is up — submitting your answers.")
		case engine.EventSubmitted:
			if ev.Summary != nil {
				fmt.Printf("\nFinal score: %d/%d\n", ev.Summary.TotalCorrect, ev.Summary.TotalQuestions)
			}
		}
	}
}

func runLoop(ctx context.Context, eng *engine.Engine) {
	reader := bufio.NewReader(os.Stdin)

	for {
		if eng.Status() == model.StatusSubmitted {
			summary, route := eng.Summary()
			if summary != nil && route == model.RouteResults {
				fmt.Println("Full exam complete — see the results view for the domain breakdown.")
			}
			return
		}

		render(eng)

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			eng.FlushNow(ctx)
			return
		}

		if done := handle(ctx, eng, strings.TrimSpace(line)); done {
			return
		}
	}
}

func render(eng *engine.Engine) {
	q := eng.CurrentQuestion()
	snap := eng.Progress()
	total := len(eng.Questions())

	fmt.Printf("\n[%d/%d] %s\n", snap.CurrentIndex+1, total, q.Text)

	answer, hasAnswer := eng.Answer(q.ID)
	for i, opt := range q.Shuffled {
		marker := " "
		if hasAnswer && answer.Has(opt.ID) {
			marker = "*"
		}
		fmt.Printf("  %s %d) %s\n", marker, i+1, opt.Text)
	}

	if snap.RemainingSeconds > 0 {
		fmt.Printf("  time remaining: %s\n", (time.Duration(snap.RemainingSeconds) * time.Second).String())
	} else if snap.ElapsedSeconds > 0 {
		fmt.Printf("  elapsed: %s\n", (time.Duration(snap.ElapsedSeconds) * time.Second).String())
	}
	fmt.Println("  commands: <n> pick option, next, prev, goto N, submit, quit")
}

// handle executes one command; returns true when the loop should exit.
func handle(ctx context.Context, eng *engine.Engine, input string) bool {
	q := eng.CurrentQuestion()

	switch {
	case input == "quit" || input == "q":
		eng.FlushNow(ctx)
		fmt.Println("Progress saved. Run again to resume.")
		return true

	case input == "next" || input == "n":
		last := eng.CurrentIndex() == len(eng.Questions())-1
		if last {
			return doSubmit(ctx, eng, false)
		}
		advance(ctx, eng, eng.CurrentIndex()+1)

	case input == "prev" || input == "p":
		advance(ctx, eng, eng.CurrentIndex()-1)

	case strings.HasPrefix(input, "goto "):
		n, err := strconv.Atoi(strings.TrimPrefix(input, "goto "))
		if err != nil {
			fmt.Println("Usage: goto N")
			return false
		}
		advance(ctx, eng, n-1)

	case input == "submit" || input == "s":
		return doSubmit(ctx, eng, true)

	default:
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(q.Shuffled) {
			fmt.Println("Pick an option number shown above.")
			return false
		}
		if err := eng.Select(q.Shuffled[n-1].ID); err != nil {
			fmt.Println(err)
		}
	}
	return false
}

func advance(ctx context.Context, eng *engine.Engine, to int) {
	cp, err := eng.Advance(ctx, to)
	switch {
	case errors.Is(err, engine.ErrUnansweredCurrent):
		fmt.Println("!! Answer this question before moving on.")
	case errors.Is(err, engine.ErrOutOfRange):
		fmt.Println("That question is out of reach.")
	case err != nil:
		fmt.Println(err)
	case cp != nil:
		fmt.Printf("— Checkpoint %d: you may take a %s break. Press Enter to continue. —\n",
			cp.Number, cp.Pause)
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}
}

func doSubmit(ctx context.Context, eng *engine.Engine, explicit bool) bool {
	summary, route, err := eng.Submit(ctx, explicit)
	switch {
	case errors.Is(err, engine.ErrUnansweredCurrent):
		fmt.Println("!! Answer the final question (or type 'submit') to finish.")
		return false
	case err != nil:
		fmt.Printf("Submission failed (%v). Your answers are safe — try again.\n", err)
		return false
	}

	fmt.Printf("\nSubmitted. Score: %d/%d\n", summary.TotalCorrect, summary.TotalQuestions)
	if route == model.RouteResults {
		fmt.Println("Full exam complete — opening the results view.")
	}
	return true
}
