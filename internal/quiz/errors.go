package quiz

import "errors"

var (
	ErrSetNotFound     = errors.New("question set not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrItemNotFound    = errors.New("question attempt not found")

	// ErrAttemptCompleted guards mutation of a finished attempt. Handlers map
	// it to 409 so clients treat it as "refetch and go to results".
	ErrAttemptCompleted = errors.New("attempt already completed")

	ErrNotCompleted = errors.New("attempt not completed")
	ErrNotChecked   = errors.New("attempt not checked yet")

	ErrAutoGradedType = errors.New("question type is auto-graded")
)

// ValidationError is a field-level rejection of a submitted answer.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func validationErrf(msg string) error { return &ValidationError{msg: msg} }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
