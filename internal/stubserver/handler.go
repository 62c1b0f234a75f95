package stubserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/validator"
)

// Handler implements the two upstream exam endpoints plus guest token mint.
// Response shapes follow the engine's wire contract exactly, so the stub is
// interchangeable with the production server from the client's perspective.
type Handler struct {
	bank   *Bank
	issuer *TokenIssuer
	log    zerolog.Logger
}

// NewHandler creates the stub handler set.
func NewHandler(bank *Bank, issuer *TokenIssuer, log zerolog.Logger) *Handler {
	return &Handler{
		bank:   bank,
		issuer: issuer,
		log:    log.With().Str("component", "stub_handler").Logger(),
	}
}

// selectRequest mirrors the select wire contract.
type selectRequest struct {
	Count          int   `json:"count" binding:"omitempty,min=1,max=180"`
	Dominios       []int `json:"dominios" binding:"omitempty,dive,min=1"`
	KnowledgeAreas []int `json:"codareaconhecimento" binding:"omitempty,dive,min=1"`
	ProcessGroups  []int `json:"codgrupoprocesso" binding:"omitempty,dive,min=1"`
}

type submitAnswer struct {
	QuestionID *int64 `json:"questionId"`
	OptionID   *int64 `json:"optionId"`
}

type submitRequest struct {
	SessionID string         `json:"sessionId" binding:"required"`
	Answers   []submitAnswer `json:"answers" binding:"required"`
}

// GuestToken godoc
// POST /api/auth/guest
// Mints a guest identity token for the exam routes.
func (h *Handler) GuestToken(c *gin.Context) {
	token, err := h.issuer.MintGuest()
	if err != nil {
		h.log.Error().Err(err).Msg("Token mint failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// SelectExam godoc
// POST /api/exams/select
// Draws a filtered question set and opens a scoring session.
func (h *Handler) SelectExam(c *gin.Context) {
	var req selectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}

	sessionID, drawn, err := h.bank.Select(req.Count, req.Dominios, req.KnowledgeAreas, req.ProcessGroups)
	if err != nil {
		var insufficient *ErrInsufficient
		if errors.As(err, &insufficient) {
			// User-correctable: the caller relaxes the filter and retries.
			c.JSON(http.StatusBadRequest, gin.H{
				"error":     "not enough questions matched the filter",
				"available": insufficient.Available,
			})
			return
		}
		h.log.Error().Err(err).Msg("Select failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// Strip the answer key before serving.
	questions := make([]gin.H, len(drawn))
	for i, q := range drawn {
		opts := make([]gin.H, len(q.Options))
		for j, o := range q.Options {
			opts[j] = gin.H{"id": o.ID, "descricao": o.Text}
		}
		questions[i] = gin.H{"id": q.ID, "descricao": q.Text, "options": opts}
	}

	h.log.Info().
		Str("session_id", sessionID).
		Int("count", len(drawn)).
		Msg("Question set served")

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"questions": questions,
		"total":     len(drawn),
	})
}

// SubmitExam godoc
// POST /api/exams/submit
// Grades a submission against the session's answer key.
func (h *Handler) SubmitExam(c *gin.Context) {
	var req submitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}

	answers := make(map[int64]int64, len(req.Answers))
	for _, a := range req.Answers {
		if a.QuestionID != nil && a.OptionID != nil {
			answers[*a.QuestionID] = *a.OptionID
		}
	}

	correct, total, ok := h.bank.Score(req.SessionID, answers)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	h.log.Info().
		Str("session_id", req.SessionID).
		Int("correct", correct).
		Int("total", total).
		Msg("Submission graded")

	c.JSON(http.StatusOK, gin.H{
		"totalCorrect":   correct,
		"totalQuestions": total,
	})
}

// Health godoc
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "questions": h.bank.Size()})
}
