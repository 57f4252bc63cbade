package quiz

import (
	"context"
	"time"
)

type SetListOpts struct {
	Q      string
	Limit  int
	Offset int
}

type SetSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	TimeLimitSec  int    `json:"time_limit_sec"`
	QuestionCount int    `json:"question_count"`
	CreatedAt     int64  `json:"created_at"`
}

type AttemptListOpts struct {
	QuestionSetID string
	UserID        string
	Completed     *bool
	Checked       *bool
	Limit         int
	Offset        int
}

// AttemptSummary is an attempt row without its items, for dashboards.
type AttemptSummary struct {
	ID            string  `json:"id"`
	QuestionSetID string  `json:"question_set_id"`
	UserID        string  `json:"user_id"`
	AttemptNumber int     `json:"attempt_number"`
	StartedAt     int64   `json:"started_at"`
	CompletedAt   *int64  `json:"completed_at"`
	IsCompleted   bool    `json:"is_completed"`
	IsChecked     bool    `json:"is_checked"`
	Score         int     `json:"score"`
	Percentage    float64 `json:"percentage"`
}

type Store interface {
	PutQuestionSet(ctx context.Context, s QuestionSet) error
	// GetQuestionSet is student-safe: answer-key fields are stripped.
	GetQuestionSet(ctx context.Context, id string) (QuestionSet, error)
	GetQuestionSetAdmin(ctx context.Context, id string) (QuestionSet, error)
	ListQuestionSets(ctx context.Context, opts SetListOpts) ([]SetSummary, error)

	// StartAttempt creates the attempt plus one unanswered question attempt
	// per question, and assigns the 1-based per-user attempt number.
	StartAttempt(ctx context.Context, setID, userID string) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	SubmitAnswer(ctx context.Context, attemptID string, ans Answer) (QuestionAttempt, error)
	// FinishAttempt is idempotent: finishing a completed attempt returns it
	// unchanged. Auto-graded types are scored here; is_checked is set in the
	// same call when the set has no manually-graded types.
	FinishAttempt(ctx context.Context, id string) (Attempt, error)
	// GetResult returns ErrNotChecked until a reviewer has committed the
	// check, so no caller can surface scores early.
	GetResult(ctx context.Context, id string) (Result, error)

	// Reviewer flow: marks are staged per question attempt and become
	// authoritative only when CheckAttempt commits in one action.
	MarkQuestionAttempt(ctx context.Context, questionAttemptID string, correct bool, reviewer string) (QuestionAttempt, error)
	CheckAttempt(ctx context.Context, attemptID string) (Attempt, error)

	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptSummary, error)

	// FinishOverdue finalizes in-progress attempts whose deadline has passed.
	// Server-side safety net behind the client auto-finalize.
	FinishOverdue(ctx context.Context, now time.Time) (int, error)
}
