package quiz

import (
	"fmt"
	"math"
	"strings"
)

// Derived state is always recomputed from the item collection; the server
// rows are the source of truth and nothing here is cached.

// Answered reports whether the applicable answer field is populated.
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

func AnsweredCount(items []QuestionAttempt) int {
	n := 0
	for _, it := range items {
		if it.Answered() {
			n++
		}
	}
	return n
}

func UnansweredCount(items []QuestionAttempt) int {
	return len(items) - AnsweredCount(items)
}

// FirstUnanswered returns the id of the first unanswered item, or the first
// item when everything is answered. ok is false for an empty list.
func FirstUnanswered(items []QuestionAttempt) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	for _, it := range items {
		if !it.Answered() {
			return it.ID, true
		}
	}
	return items[0].ID, true
}

// ValidateAnswer enforces the at-most-one-field rule and that the populated
// field matches the question type. A mismatch is rejected, never coerced.
func ValidateAnswer(questionType string, ans Answer) error {
	populated := 0
	if ans.SelectedOptionID != nil {
		populated++
	}
	if ans.SelectedBooleanAnswer != nil {
		populated++
	}
	if ans.SelectedTextAnswer != nil {
		populated++
	}
	if populated == 0 {
		return validationErrf("no answer field populated")
	}
	if populated > 1 {
		return validationErrf("more than one answer field populated")
	}
	switch questionType {
	case TypeMCQ:
		if ans.SelectedOptionID == nil {
			return validationErrf("mcq answer must use selected_option_id")
		}
	case TypeTrueFalse:
		if ans.SelectedBooleanAnswer == nil {
			return validationErrf("true_false answer must use selected_boolean_answer")
		}
	case TypeShortText, TypeEssay:
		if ans.SelectedTextAnswer == nil {
			return validationErrf(questionType + " answer must use selected_text_answer")
		}
	default:
		return validationErrf("unknown question type " + questionType)
	}
	return nil
}

// Percentage rounds score/total to two decimals for display and storage.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*100*100) / 100
}

// FormatElapsed renders a duration in seconds using the largest applicable
// unit pair: days/hours, hours/minutes, minutes/seconds, or bare seconds.
func FormatElapsed(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	switch {
	case sec >= 86400:
		return fmt.Sprintf("%dd %dh", sec/86400, sec%86400/3600)
	case sec >= 3600:
		return fmt.Sprintf("%dh %dm", sec/3600, sec%3600/60)
	case sec >= 60:
		return fmt.Sprintf("%dm %ds", sec/60, sec%60)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
