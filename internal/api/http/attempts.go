package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/quizdesk/quizdesk/internal/auth/middleware"
	"github.com/quizdesk/quizdesk/internal/quiz"
	"github.com/quizdesk/quizdesk/internal/rbac"
)

type startAttemptReq struct {
	QuestionSetID string `json:"question_set_id" validate:"required"`
}

// POST /attempts
func StartAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startAttemptReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		sub := authmw.SubjectFromContext(r.Context())
		a, err := store.StartAttempt(r.Context(), req.QuestionSetID, sub)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// GET /attempts/{attemptID}
// Students may only fetch their own attempts.
func GetAttemptHandler(store quiz.Store) http.HandlerFunc {
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
		writeJSON(w, a)
	}
}

type submitAnswerReq struct {
	QuestionAttemptID     string  `json:"question_attempt_id" validate:"required"`
	SelectedOptionID      *string `json:"selected_option_id"`
	SelectedBooleanAnswer *bool   `json:"selected_boolean_answer"`
	SelectedTextAnswer    *string `json:"selected_text_answer"`
}

// POST /attempts/{attemptID}/answers
func SubmitAnswerHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		var req submitAnswerReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !ownsAttempt(r, store, id) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		it, err := store.SubmitAnswer(r.Context(), id, quiz.Answer{
			QuestionAttemptID:     req.QuestionAttemptID,
			SelectedOptionID:      req.SelectedOptionID,
			SelectedBooleanAnswer: req.SelectedBooleanAnswer,
			SelectedTextAnswer:    req.SelectedTextAnswer,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, it)
	}
}

// POST /attempts/{attemptID}/finish
// Idempotent: finishing twice returns the same terminal state.
func FinishAttemptHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "attemptID"))
		if !ownsAttempt(r, store, id) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		a, err := store.FinishAttempt(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, a)
	}
}

// GET /attempts?question_set_id=...&user_id=...&completed=true&limit=50&offset=0
// Callers without attempt:view-all are scoped to their own attempts.
func ListAttemptsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := authmw.SubjectFromContext(r.Context())

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if !rbac.NewChecker(nil).Has(role, "attempt:view-all") {
			userID = sub
		}
		list, err := store.ListAttempts(r.Context(), quiz.AttemptListOpts{
			QuestionSetID: strings.TrimSpace(r.URL.Query().Get("question_set_id")),
			UserID:        userID,
			Completed:     parseBoolPtr(r.URL.Query().Get("completed")),
			Checked:       parseBoolPtr(r.URL.Query().Get("checked")),
			Limit:         parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:        parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, list)
	}
}

func parseBoolPtr(s string) *bool {
	switch s {
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	}
	return nil
}

func canViewAttempt(r *http.Request, ownerID string) bool {
	role := rbac.RoleFromContext(r.Context())
	if rbac.NewChecker(nil).Has(role, "attempt:view-all") {
		return true
	}
	return authmw.SubjectFromContext(r.Context()) == ownerID
}

func ownsAttempt(r *http.Request, store quiz.Store, attemptID string) bool {
	a, err := store.GetAttempt(r.Context(), attemptID)
	if err != nil {
		// let the handler produce the not-found response
		return true
	}
	return a.UserID == authmw.SubjectFromContext(r.Context())
}
