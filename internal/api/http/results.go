package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quizdesk/quizdesk/internal/quiz"
)

// pendingResult is everything the results view may show before a reviewer
// has committed the check: no score, no percentage, no correctness.
type pendingResult struct {
	AttemptID   string `json:"attempt_id"`
	IsCompleted bool   `json:"is_completed"`
	IsChecked   bool   `json:"is_checked"`
	Status      string `json:"status"`
}

type checkedResult struct {
	quiz.Result
	ElapsedDisplay string `json:"elapsed_display"`
}

// GET /attempts/{attemptID}/result
func GetResultHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		a, err := store.GetAttempt(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if !canViewAttempt(r, a.UserID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		res, err := store.GetResult(r.Context(), id)
		if errors.Is(err, quiz.ErrNotChecked) {
			// Manually-graded questions not reviewed yet: the payload carries
			// no score fields at all, so a stale client cannot render them.
			writeJSON(w, pendingResult{
				AttemptID:   a.ID,
				IsCompleted: a.IsCompleted,
				IsChecked:   false,
				Status:      "pending_verification",
			})
			return
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, checkedResult{
			Result:         res,
			ElapsedDisplay: quiz.FormatElapsed(res.ElapsedSec),
		})
	}
}
