package grading

import (
	"context"
	"errors"
	"fmt"
)

// Q is the minimal view of a question needed for grading: its type plus the
// answer key field that type uses.
type Q struct {
	Type            string
	CorrectOptionID string
	CorrectBoolean  *bool
	CorrectText     string
}

// Response mirrors the three selection fields of a question attempt.
type Response struct {
	OptionID *string
	Boolean  *bool
	Text     *string
}

func (r Response) Empty() bool {
	return r.OptionID == nil && r.Boolean == nil && r.Text == nil
}

// Outcome is the grading result for a single response.
type Outcome struct {
	Correct     bool
	NeedsManual bool     // true when a reviewer has to decide
	Feedback    []string // reviewer hints, never shown to students
}

// Strategy grades responses of one question type.
type Strategy interface {
	Grade(ctx context.Context, q Q, resp Response) (Outcome, error)
}

// Grader routes by question type to the matching Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, resp Response) (Outcome, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, resp Response) (Outcome, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Outcome{NeedsManual: true, Feedback: []string{"no strategy for type " + q.Type}}, nil
	}
	return s.Grade(ctx, q, resp)
}

type Option func(*config)

type config struct {
	MaxEditDistance int // fuzzy threshold for short-text reviewer hints
}

func WithMaxEditDistance(n int) Option { return func(c *config) { c.MaxEditDistance = n } }

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{MaxEditDistance: 1}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			"mcq":        mcqStrategy{},
			"true_false": trueFalseStrategy{},
			"short_text": shortTextStrategy{maxEdit: cfg.MaxEditDistance},
			"essay":      essayStrategy{},
		},
	}
}

// --- Strategies ---

type mcqStrategy struct{}

func (mcqStrategy) Grade(_ context.Context, q Q, resp Response) (Outcome, error) {
	if resp.OptionID == nil {
		return Outcome{}, errors.New("mcq response must carry an option id")
	}
	return Outcome{Correct: q.CorrectOptionID != "" && *resp.OptionID == q.CorrectOptionID}, nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Grade(_ context.Context, q Q, resp Response) (Outcome, error) {
	if resp.Boolean == nil {
		return Outcome{}, errors.New("true_false response must carry a boolean")
	}
	return Outcome{Correct: q.CorrectBoolean != nil && *resp.Boolean == *q.CorrectBoolean}, nil
}

// shortTextStrategy never scores on its own; it attaches a fuzzy-match hint
// so the reviewer can mark obvious answers quickly.
type shortTextStrategy struct{ maxEdit int }

func (s shortTextStrategy) Grade(_ context.Context, q Q, resp Response) (Outcome, error) {
	if resp.Text == nil {
		return Outcome{}, errors.New("short_text response must carry text")
	}
	out := Outcome{NeedsManual: true}
	if q.CorrectText == "" {
		return out, nil
	}
	got := normalize(*resp.Text)
	want := normalize(q.CorrectText)
	switch {
	case got == want:
		out.Feedback = append(out.Feedback, "exact match with expected answer")
	case s.maxEdit > 0 && levenshtein(got, want) <= s.maxEdit:
		out.Feedback = append(out.Feedback, fmt.Sprintf("within edit distance %d of expected answer", s.maxEdit))
	}
	return out, nil
}

type essayStrategy struct{}

func (essayStrategy) Grade(_ context.Context, _ Q, resp Response) (Outcome, error) {
	if resp.Text == nil {
		return Outcome{}, errors.New("essay response must carry text")
	}
	return Outcome{NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}
