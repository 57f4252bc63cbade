package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/quizdesk/quizdesk/internal/auth/middleware"
	"github.com/quizdesk/quizdesk/internal/quiz"
	"github.com/quizdesk/quizdesk/internal/rbac"
)

// POST /question-sets
func UploadQuestionSetHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var set quiz.QuestionSet
		if err := decodeValid(r, &set); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if set.ID == "" || set.Title == "" {
			http.Error(w, "id and title required", http.StatusBadRequest)
			return
		}
		set.CreatedBy = authmw.SubjectFromContext(r.Context())
		if err := store.PutQuestionSet(r.Context(), set); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"id": set.ID})
	}
}

// GET /question-sets/{setID}
// Roles with quizset:view-keys receive the answer keys; students never do.
func GetQuestionSetHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "setID"))
		role := rbac.RoleFromContext(r.Context())
		var (
			set quiz.QuestionSet
			err error
		)
		if rbac.NewChecker(nil).Has(role, "quizset:view-keys") {
			set, err = store.GetQuestionSetAdmin(r.Context(), id)
		} else {
			set, err = store.GetQuestionSet(r.Context(), id)
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, set)
	}
}

// GET /question-sets?q=...&limit=50&offset=0
func ListQuestionSetsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListQuestionSets(r.Context(), quiz.SetListOpts{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, list)
	}
}
