package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/quizdesk/quizdesk/internal/quiz"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr translates store sentinels into the client-observable error
// taxonomy: 404 not-found, 409 conflict (already finalized / not finalized
// yet), 422 validation, 500 everything else.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrSetNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound),
		errors.Is(err, quiz.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrAttemptCompleted),
		errors.Is(err, quiz.ErrNotCompleted),
		errors.Is(err, quiz.ErrNotChecked):
		http.Error(w, err.Error(), http.StatusConflict)
	case quiz.IsValidation(err), errors.Is(err, quiz.ErrAutoGradedType):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
