package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/quizdesk/quizdesk/internal/auth/middleware"
	"github.com/quizdesk/quizdesk/internal/quiz"
)

type markQuestionReq struct {
	IsCorrect *bool `json:"is_correct" validate:"required"`
}

// POST /question-attempts/{questionAttemptID}/mark
// Stage one mark. Marks are revisable until the check commit.
func MarkQuestionHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "questionAttemptID"))
		var req markQuestionReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		reviewer := authmw.SubjectFromContext(r.Context())
		it, err := store.MarkQuestionAttempt(r.Context(), id, *req.IsCorrect, reviewer)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, it)
	}
}

// POST /attempts/{attemptID}/check
// The single commit that makes staged marks authoritative, recomputes the
// final score, and flips is_checked.
func CheckAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		a, err := store.CheckAttempt(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}
