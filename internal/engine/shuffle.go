package engine

import (
	"math/rand"

	"github.com/pmplabs/examsim/internal/model"
)

// FreezeOrder computes the frozen presentation order for a question.
// Idempotent: an existing shuffle with matching cardinality is left
// untouched. The cardinality check (rather than a bare existence check)
// lets cached question sets produced before shuffling existed self-heal
// without discarding a valid frozen order.
func FreezeOrder(q *model.Question) {
	if len(q.Shuffled) == len(q.Options) && len(q.Shuffled) > 0 {
		return
	}

	shuffled := make([]model.Option, len(q.Options))
	copy(shuffled, q.Options)

	// Fisher-Yates over the copy; the original order is kept intact.
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	q.Shuffled = shuffled
}

// FreezeAll freezes the presentation order of every question in the set.
func FreezeAll(questions []model.Question) {
	for i := range questions {
		FreezeOrder(&questions[i])
	}
}
