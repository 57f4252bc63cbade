package quiz

import "testing"

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestAnswered(t *testing.T) {
	cases := []struct {
		name string
		qa   QuestionAttempt
		want bool
	}{
		{"empty", QuestionAttempt{}, false},
		{"option", QuestionAttempt{SelectedOptionID: strp("o1")}, true},
		{"empty option id", QuestionAttempt{SelectedOptionID: strp("")}, false},
		{"boolean true", QuestionAttempt{SelectedBooleanAnswer: boolp(true)}, true},
		{"boolean false", QuestionAttempt{SelectedBooleanAnswer: boolp(false)}, true},
		{"text", QuestionAttempt{SelectedTextAnswer: strp("because")}, true},
		{"whitespace text", QuestionAttempt{SelectedTextAnswer: strp("   ")}, false},
	}
	for _, tc := range cases {
		if got := tc.qa.Answered(); got != tc.want {
			t.Errorf("%s: Answered() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAnsweredCounts(t *testing.T) {
	items := []QuestionAttempt{
		{ID: "a", SelectedOptionID: strp("o1")},
		{ID: "b"},
		{ID: "c", SelectedBooleanAnswer: boolp(false)},
		{ID: "d"},
		{ID: "e"},
	}
	if got := AnsweredCount(items); got != 2 {
		t.Fatalf("AnsweredCount = %d, want 2", got)
	}
	if got := UnansweredCount(items); got != 3 {
		t.Fatalf("UnansweredCount = %d, want 3", got)
	}

	id, ok := FirstUnanswered(items)
	if !ok || id != "b" {
		t.Fatalf("FirstUnanswered = %q, %v; want b, true", id, ok)
	}

	all := []QuestionAttempt{{ID: "a", SelectedOptionID: strp("o1")}}
	if id, ok = FirstUnanswered(all); !ok || id != "a" {
		t.Fatalf("FirstUnanswered on fully answered = %q, %v; want a, true", id, ok)
	}
	if _, ok = FirstUnanswered(nil); ok {
		t.Fatal("FirstUnanswered on empty list must report false")
	}
}

func TestValidateAnswer(t *testing.T) {
	cases := []struct {
		name  string
		qtype string
		ans   Answer
		ok    bool
	}{
		{"mcq ok", TypeMCQ, Answer{SelectedOptionID: strp("o1")}, true},
		{"true_false ok", TypeTrueFalse, Answer{SelectedBooleanAnswer: boolp(true)}, true},
		{"short_text ok", TypeShortText, Answer{SelectedTextAnswer: strp("x")}, true},
		{"essay ok", TypeEssay, Answer{SelectedTextAnswer: strp("x")}, true},
		{"nothing populated", TypeMCQ, Answer{}, false},
		{"two fields", TypeMCQ, Answer{SelectedOptionID: strp("o1"), SelectedTextAnswer: strp("x")}, false},
		{"mcq with boolean", TypeMCQ, Answer{SelectedBooleanAnswer: boolp(true)}, false},
		{"true_false with text", TypeTrueFalse, Answer{SelectedTextAnswer: strp("true")}, false},
		{"essay with option", TypeEssay, Answer{SelectedOptionID: strp("o1")}, false},
		{"unknown type", "matching", Answer{SelectedTextAnswer: strp("x")}, false},
	}
	for _, tc := range cases {
		err := ValidateAnswer(tc.qtype, tc.ans)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("%s: expected rejection", tc.name)
			} else if !IsValidation(err) {
				t.Errorf("%s: error %v is not a validation error", tc.name, err)
			}
		}
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		score, total int
		want         float64
	}{
		{0, 5, 0},
		{5, 5, 100},
		{3, 5, 60},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 0, 0},
	}
	for _, tc := range cases {
		if got := Percentage(tc.score, tc.total); got != tc.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tc.score, tc.total, got, tc.want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		sec  int64
		want string
	}{
		{-1, "0s"},
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{421, "7m 1s"},
		{3600, "1h 0m"},
		{5430, "1h 30m"},
		{86400, "1d 0h"},
		{90000, "1d 1h"},
	}
	for _, tc := range cases {
		if got := FormatElapsed(tc.sec); got != tc.want {
			t.Errorf("FormatElapsed(%d) = %q, want %q", tc.sec, got, tc.want)
		}
	}
}
