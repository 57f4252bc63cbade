package quiz

// Question types. mcq and true_false are auto-graded on finish; the
// text-style types require reviewer grading before an attempt is checked.
const (
	TypeMCQ       = "mcq"
	TypeTrueFalse = "true_false"
	TypeShortText = "short_text"
	TypeEssay     = "essay"
)

func ValidType(t string) bool {
	switch t {
	case TypeMCQ, TypeTrueFalse, TypeShortText, TypeEssay:
		return true
	}
	return false
}

// ManualType reports whether answers of this type need reviewer grading.
func ManualType(t string) bool {
	return t == TypeShortText || t == TypeEssay
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	Difficulty string   `json:"difficulty,omitempty"`
	Options    []Option `json:"options,omitempty"` // mcq only

	// Answer key. Stripped when serving to students.
	CorrectOptionID string `json:"correct_option_id,omitempty"`
	CorrectBoolean  *bool  `json:"correct_boolean,omitempty"`
	CorrectText     string `json:"correct_text,omitempty"`
}

type QuestionSet struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	TimeLimitSec int        `json:"time_limit_sec"` // 0 = untimed
	Questions    []Question `json:"questions"`
	CreatedBy    string     `json:"created_by,omitempty"`
	CreatedAt    int64      `json:"created_at,omitempty"`
}

// Timed reports whether attempts against this set have a deadline.
func (s QuestionSet) Timed() bool { return s.TimeLimitSec > 0 }

// HasManualTypes reports whether any question needs reviewer grading,
// which decides whether finish can set is_checked in the same transaction.
func (s QuestionSet) HasManualTypes() bool {
	for _, q := range s.Questions {
		if ManualType(q.Type) {
			return true
		}
	}
	return false
}

// QuestionAttempt is one student's answer slot for one question. Exactly one
// of the three selected fields may be populated, per the question's type.
type QuestionAttempt struct {
	ID         string `json:"id"`
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"question_id"`
	Position   int    `json:"position"`

	// Denormalized from the question for rendering (key fields stripped).
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	Difficulty string   `json:"difficulty,omitempty"`
	Options    []Option `json:"options,omitempty"`

	SelectedOptionID      *string `json:"selected_option_id"`
	SelectedBooleanAnswer *bool   `json:"selected_boolean_answer"`
	SelectedTextAnswer    *string `json:"selected_text_answer"`

	// Authoritative only once the parent attempt is checked.
	IsCorrect *bool  `json:"is_correct,omitempty"`
	MarkedBy  string `json:"-"`
}

type Attempt struct {
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

	TimeLimitSec int               `json:"time_limit_sec"`
	Items        []QuestionAttempt `json:"items"`
}

// Answer is one submitted value for one question attempt. The unset fields
// are sent as explicit nulls so a stale value of a different shape is cleared.
type Answer struct {
	QuestionAttemptID     string  `json:"question_attempt_id"`
	SelectedOptionID      *string `json:"selected_option_id"`
	SelectedBooleanAnswer *bool   `json:"selected_boolean_answer"`
	SelectedTextAnswer    *string `json:"selected_text_answer"`
}

// ComparisonStats are cohort statistics over checked attempts of one set.
type ComparisonStats struct {
	UserHighest   float64 `json:"user_highest"`
	UserAverage   float64 `json:"user_average"`
	UserLowest    float64 `json:"user_lowest"`
	CohortHighest float64 `json:"cohort_highest"`
	CohortAverage float64 `json:"cohort_average"`
	CohortLowest  float64 `json:"cohort_lowest"`
}

// Result is the reviewer-finalized view of an attempt. It is only available
// once the attempt is checked; until then the store returns ErrNotChecked.
type Result struct {
	Attempt
	ElapsedSec int64           `json:"elapsed_sec"`
	Stats      ComparisonStats `json:"stats"`
}
