package stubserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/google/uuid"
)

// BankOption is one answer choice in the development question bank.
type BankOption struct {
	ID   int64  `json:"id"`
	Text string `json:"descricao"`
}

// BankQuestion is a scored question in the development bank. The correct
// option never leaves the server.
type BankQuestion struct {
	ID            int64        `json:"id"`
	Text          string       `json:"descricao"`
	Options       []BankOption `json:"options"`
	CorrectOption int64        `json:"correctOption"`
	Dominio       int          `json:"dominio"`
	KnowledgeArea int          `json:"codareaconhecimento"`
	ProcessGroup  int          `json:"codgrupoprocesso"`
}

// ErrInsufficient reports that a filter matched fewer questions than asked.
type ErrInsufficient struct {
	Requested int
	Available int
}

func (e *ErrInsufficient) Error() string {
	return fmt.Sprintf("not enough questions: requested %d, available %d", e.Requested, e.Available)
}

// Bank holds the questions and the per-session answer keys used for scoring.
type Bank struct {
	mu        sync.Mutex
	questions []BankQuestion
	// sessions maps a served session to question id → correct option id.
	sessions map[string]map[int64]int64
}

// NewBank creates a bank over the given questions.
func NewBank(questions []BankQuestion) *Bank {
	return &Bank{
		questions: questions,
		sessions:  make(map[string]map[int64]int64),
	}
}

// LoadBank reads a question bank JSON file, or seeds the built-in sample
// bank when path is empty.
func LoadBank(path string) (*Bank, error) {
	if path == "" {
		return NewBank(seedQuestions()), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var questions []BankQuestion
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	return NewBank(questions), nil
}

// Size returns the number of questions in the bank.
func (b *Bank) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.questions)
}

// Select filters the bank, draws count questions in random order, registers
// a fresh session with their answer key, and returns the draw.
func (b *Bank) Select(count int, dominios, areas, groups []int) (string, []BankQuestion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []BankQuestion
	for _, q := range b.questions {
		if !matchesFilter(q.Dominio, dominios) ||
			!matchesFilter(q.KnowledgeArea, areas) ||
			!matchesFilter(q.ProcessGroup, groups) {
			continue
		}
		matched = append(matched, q)
	}

	if count <= 0 {
		count = len(matched)
	}
	if len(matched) < count {
		return "", nil, &ErrInsufficient{Requested: count, Available: len(matched)}
	}

	drawn := make([]BankQuestion, 0, count)
	for _, idx := range rand.Perm(len(matched))[:count] {
		drawn = append(drawn, matched[idx])
	}

	sessionID := "srv-" + uuid.NewString()
	key := make(map[int64]int64, len(drawn))
	for _, q := range drawn {
		key[q.ID] = q.CorrectOption
	}
	b.sessions[sessionID] = key

	return sessionID, drawn, nil
}

// Score grades a submission against the session's answer key. Unknown
// sessions return false.
func (b *Bank) Score(sessionID string, answers map[int64]int64) (correct, total int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, found := b.sessions[sessionID]
	if !found {
		return 0, 0, false
	}

	for qid, want := range key {
		if got, answered := answers[qid]; answered && got == want {
			correct++
		}
	}
	// Sessions are single-shot: a graded session cannot be replayed.
	delete(b.sessions, sessionID)

	return correct, len(key), true
}

func matchesFilter(value int, allowed []int) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// seedQuestions builds the built-in sample bank: enough coverage across
// domains and process groups to exercise the select filters in development.
func seedQuestions() []BankQuestion {
	prompts := []string{
		"A key stakeholder repeatedly misses sprint reviews. What should the project manager do first?",
		"During executing, actual costs exceed the baseline by 15%. What is the best next step?",
		"A team member reports a previously unidentified risk. What should the project manager do first?",
		"The sponsor requests a scope change late in the project. What should the project manager do?",
		"Two senior engineers disagree on a technical approach, delaying a deliverable. What is the best response?",
		"A vendor deliverable fails quality inspection for the second time. What should the project manager do first?",
	}
	options := [][]string{
		{"Escalate to the sponsor", "Review the stakeholder engagement plan", "Replace the stakeholder", "Ignore and proceed"},
		{"Request additional budget", "Perform earned value analysis", "Reduce scope immediately", "Stop all work"},
		{"Add it to the risk register and analyze it", "Implement a workaround now", "Escalate to management", "Accept the risk"},
		{"Submit it through change control", "Reject the request", "Implement it to satisfy the sponsor", "Defer to the next project"},
		{"Facilitate a collaborative resolution", "Pick the senior-most opinion", "Escalate to the PMO", "Postpone the deliverable"},
		{"Review the quality management plan with the vendor", "Terminate the contract", "Accept the deliverable as-is", "Re-inspect with a new team"},
	}

	var out []BankQuestion
	id := int64(1)
	for set := 0; set < 4; set++ {
		for i, prompt := range prompts {
			opts := make([]BankOption, len(options[i]))
			for j, text := range options[i] {
				opts[j] = BankOption{ID: id*10 + int64(j), Text: text}
			}
			out = append(out, BankQuestion{
				ID:            id,
				Text:          prompt,
				Options:       opts,
				CorrectOption: opts[correctIdx(i)].ID,
				Dominio:       set%3 + 1,
				KnowledgeArea: i%3 + 1,
				ProcessGroup:  i%5 + 1,
			})
			id++
		}
	}
	return out
}

// correctIdx maps each seed prompt to its intended answer position.
func correctIdx(prompt int) int {
	switch prompt {
	case 0, 1:
		return 1
	default:
		return 0
	}
}
