// Package attemptflow implements the client side of a quiz attempt: the
// countdown timer, the question cursor, the answer-and-advance flow, and the
// finalize state machine. The server is the source of truth; the session
// refetches after every mutation instead of trusting local state.
package attemptflow

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound  = errors.New("attempt not found")
	ErrConflict  = errors.New("attempt already finalized")
	ErrRejected  = errors.New("answer rejected")
	ErrBusy      = errors.New("submission in flight")
	ErrCompleted = errors.New("attempt is completed")
	ErrClosed    = errors.New("session closed")

	// ErrResultPending gates the results view: manually-graded questions have
	// not been reviewed, so no score may be shown.
	ErrResultPending = errors.New("result pending verification")
)

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type QuestionAttempt struct {
	ID         string   `json:"id"`
	QuestionID string   `json:"question_id"`
	Position   int      `json:"position"`
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	Difficulty string   `json:"difficulty,omitempty"`
	Options    []Option `json:"options,omitempty"`

	SelectedOptionID      *string `json:"selected_option_id"`
	SelectedBooleanAnswer *bool   `json:"selected_boolean_answer"`
	SelectedTextAnswer    *string `json:"selected_text_answer"`
	IsCorrect             *bool   `json:"is_correct,omitempty"`
}

// Answered reports whether the applicable selection field is populated.
func (qa QuestionAttempt) Answered() bool {
	if qa.SelectedOptionID != nil && *qa.SelectedOptionID != "" {
		return true
	}
	if qa.SelectedBooleanAnswer != nil {
		return true
	}
	if qa.SelectedTextAnswer != nil && strings.TrimSpace(*qa.SelectedTextAnswer) != "" {
		return true
	}
	return false
}

type Attempt struct {
	ID            string            `json:"id"`
	QuestionSetID string            `json:"question_set_id"`
	UserID        string            `json:"user_id"`
	AttemptNumber int               `json:"attempt_number"`
	StartedAt     int64             `json:"started_at"`
	CompletedAt   *int64            `json:"completed_at"`
	IsCompleted   bool              `json:"is_completed"`
	IsChecked     bool              `json:"is_checked"`
	Score         int               `json:"score"`
	Percentage    float64           `json:"percentage"`
	TimeLimitSec  int               `json:"time_limit_sec"`
	Items         []QuestionAttempt `json:"items"`
}

func (a Attempt) AnsweredCount() int {
	n := 0
	for _, it := range a.Items {
		if it.Answered() {
			n++
		}
	}
	return n
}

func (a Attempt) UnansweredCount() int { return len(a.Items) - a.AnsweredCount() }

// Answer is the submit payload. Unset fields marshal as explicit nulls so
// the server clears any stale value of a different shape.
type Answer struct {
	QuestionAttemptID     string  `json:"question_attempt_id"`
	SelectedOptionID      *string `json:"selected_option_id"`
	SelectedBooleanAnswer *bool   `json:"selected_boolean_answer"`
	SelectedTextAnswer    *string `json:"selected_text_answer"`
}

type ComparisonStats struct {
	UserHighest   float64 `json:"user_highest"`
	UserAverage   float64 `json:"user_average"`
	UserLowest    float64 `json:"user_lowest"`
	CohortHighest float64 `json:"cohort_highest"`
	CohortAverage float64 `json:"cohort_average"`
	CohortLowest  float64 `json:"cohort_lowest"`
}

// Result is the response of the result endpoint. Before the reviewer check it
// carries only the pending status; score fields are absent from the payload.
type Result struct {
	AttemptID      string            `json:"attempt_id,omitempty"`
	ID             string            `json:"id,omitempty"`
	IsCompleted    bool              `json:"is_completed"`
	IsChecked      bool              `json:"is_checked"`
	Status         string            `json:"status,omitempty"`
	Score          int               `json:"score"`
	Percentage     float64           `json:"percentage"`
	ElapsedSec     int64             `json:"elapsed_sec"`
	ElapsedDisplay string            `json:"elapsed_display,omitempty"`
	Items          []QuestionAttempt `json:"items,omitempty"`
	Stats          ComparisonStats   `json:"stats"`
}

// Client is the transport the session drives. HTTPClient is the standard
// implementation; tests substitute fakes.
type Client interface {
	StartAttempt(ctx context.Context, questionSetID string) (Attempt, error)
	GetAttempt(ctx context.Context, attemptID string) (Attempt, error)
	SubmitAnswer(ctx context.Context, attemptID string, ans Answer) (QuestionAttempt, error)
	FinishAttempt(ctx context.Context, attemptID string) (Attempt, error)
	GetResult(ctx context.Context, attemptID string) (Result, error)
}
