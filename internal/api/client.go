package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pmplabs/examsim/internal/model"
)

// InsufficientQuestionsError is the user-correctable "not enough questions
// matched the filter" response; Available tells the user how many the filter
// can actually produce.
type InsufficientQuestionsError struct {
	Message   string
	Available int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("%s (available: %d)", e.Message, e.Available)
}

// Client consumes the two upstream exam endpoints. Everything past this
// boundary works on canonical model types only.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates an API client. token may be empty; when set it is sent
// as a bearer identity header on every call.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// Select acquires a question set. A non-200 carrying {error, available} is
// surfaced as *InsufficientQuestionsError for the caller to present as a
// validation message rather than a fatal failure.
func (c *Client) Select(ctx context.Context, req SelectRequest) (*SelectResult, error) {
	var wire selectResponse
	if err := c.post(ctx, "/api/exams/select", req, &wire); err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(wire.Questions))
	for i, wq := range wire.Questions {
		questions[i] = normalize(i, wq)
	}

	c.log.Debug().
		Str("session_id", wire.SessionID).
		Int("count", len(questions)).
		Msg("Question set acquired")

	return &SelectResult{
		SessionID: wire.SessionID,
		Questions: questions,
		Total:     wire.Total,
	}, nil
}

// Submit sends the collected answers and returns the score summary.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*model.Summary, error) {
	var summary model.Summary
	if err := c.post(ctx, "/api/exams/submit", req, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) post(ctx context.Context, path string, body, dst any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr selectError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Available != nil {
				return &InsufficientQuestionsError{Message: apiErr.Error, Available: *apiErr.Available}
			}
			return fmt.Errorf("%s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
