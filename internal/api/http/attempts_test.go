package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	authmw "github.com/quizdesk/quizdesk/internal/auth/middleware"
	"github.com/quizdesk/quizdesk/internal/grading"
	"github.com/quizdesk/quizdesk/internal/quiz"
	"github.com/quizdesk/quizdesk/internal/rbac"
)

// testRouter wires the attempt endpoints behind a stub identity middleware
// that reads subject and role from request headers.
func testRouter(store quiz.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := authmw.WithSubject(req.Context(), req.Header.Get("X-Test-Sub"))
			ctx = rbac.WithRole(ctx, req.Header.Get("X-Test-Role"))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Post("/attempts", StartAttemptHandler(store))
	r.Get("/attempts", ListAttemptsHandler(store))
	r.Get("/attempts/{attemptID}", GetAttemptHandler(store))
	r.Post("/attempts/{attemptID}/answers", SubmitAnswerHandler(store))
	r.Post("/attempts/{attemptID}/finish", FinishAttemptHandler(store))
	r.Get("/attempts/{attemptID}/result", GetResultHandler(store))
	r.Post("/attempts/{attemptID}/check", CheckAttemptHandler(store))
	r.Post("/question-attempts/{questionAttemptID}/mark", MarkQuestionHandler(store))
	return r
}

func seedSet(t *testing.T, store quiz.Store, manual bool) {
	t.Helper()
	no := false
	set := quiz.QuestionSet{
		ID:    "set1",
		Title: "Basics",
		Questions: []quiz.Question{
			{ID: "q1", Type: quiz.TypeMCQ, Text: "Pick one",
				Options:         []quiz.Option{{ID: "o1", Text: "A"}, {ID: "o2", Text: "B"}},
				CorrectOptionID: "o1"},
			{ID: "q2", Type: quiz.TypeTrueFalse, Text: "Water is dry.", CorrectBoolean: &no},
		},
	}
	if manual {
		set.Questions = append(set.Questions,
			quiz.Question{ID: "q3", Type: quiz.TypeEssay, Text: "Discuss."})
	}
	if err := store.PutQuestionSet(context.Background(), set); err != nil {
		t.Fatalf("seed set: %v", err)
	}
}

func doReq(t *testing.T, h http.Handler, method, path, sub, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Test-Sub", sub)
	req.Header.Set("X-Test-Role", role)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestAttemptLifecycleOverHTTP(t *testing.T) {
	store := quiz.NewInMemoryStore(grading.NewDefaultGrader())
	seedSet(t, store, false)
	h := testRouter(store)

	rec := doReq(t, h, "POST", "/attempts", "alice", "student", `{"question_set_id":"set1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	var a quiz.Attempt
	decode(t, rec, &a)
	if a.AttemptNumber != 1 || len(a.Items) != 2 {
		t.Fatalf("attempt = %+v", a)
	}

	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/answers", "alice", "student",
		`{"question_attempt_id":"`+a.Items[0].ID+`","selected_option_id":"o1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", rec.Code, rec.Body.String())
	}

	// A type mismatch is a 422.
	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/answers", "alice", "student",
		`{"question_attempt_id":"`+a.Items[1].ID+`","selected_text_answer":"false"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("mismatched answer = %d, want 422", rec.Code)
	}

	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/finish", "alice", "student", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("finish = %d: %s", rec.Code, rec.Body.String())
	}
	var fin quiz.Attempt
	decode(t, rec, &fin)
	if !fin.IsCompleted || !fin.IsChecked || fin.Score != 1 {
		t.Fatalf("finished attempt = %+v", fin)
	}

	// Finish is idempotent over HTTP as well.
	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/finish", "alice", "student", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second finish = %d", rec.Code)
	}

	// Submitting into a finished attempt conflicts.
	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/answers", "alice", "student",
		`{"question_attempt_id":"`+a.Items[1].ID+`","selected_boolean_answer":false}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("submit after finish = %d, want 409", rec.Code)
	}

	rec = doReq(t, h, "GET", "/attempts/"+a.ID+"/result", "alice", "student", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("result = %d: %s", rec.Code, rec.Body.String())
	}
	var res checkedResult
	decode(t, rec, &res)
	if res.Score != 1 || res.ElapsedDisplay == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestResultPendingUntilCheckedOverHTTP(t *testing.T) {
	store := quiz.NewInMemoryStore(grading.NewDefaultGrader())
	seedSet(t, store, true)
	h := testRouter(store)

	rec := doReq(t, h, "POST", "/attempts", "alice", "student", `{"question_set_id":"set1"}`)
	var a quiz.Attempt
	decode(t, rec, &a)

	doReq(t, h, "POST", "/attempts/"+a.ID+"/answers", "alice", "student",
		`{"question_attempt_id":"`+a.Items[0].ID+`","selected_option_id":"o1"}`)
	doReq(t, h, "POST", "/attempts/"+a.ID+"/answers", "alice", "student",
		`{"question_attempt_id":"`+a.Items[2].ID+`","selected_text_answer":"an essay"}`)
	doReq(t, h, "POST", "/attempts/"+a.ID+"/finish", "alice", "student", "")

	// The pending payload carries status only, never a score field.
	rec = doReq(t, h, "GET", "/attempts/"+a.ID+"/result", "alice", "student", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pending result = %d", rec.Code)
	}
	var raw map[string]any
	decode(t, rec, &raw)
	if raw["status"] != "pending_verification" {
		t.Fatalf("status = %v", raw["status"])
	}
	if _, ok := raw["score"]; ok {
		t.Fatal("pending payload must not carry a score")
	}

	// Reviewer stages the essay mark and commits the check.
	rec = doReq(t, h, "POST", "/question-attempts/"+a.Items[2].ID+"/mark", "rev1", "reviewer",
		`{"is_correct":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/check", "rev1", "reviewer", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("check = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doReq(t, h, "GET", "/attempts/"+a.ID+"/result", "alice", "student", "")
	var res checkedResult
	decode(t, rec, &res)
	if !res.IsChecked || res.Score != 2 {
		t.Fatalf("checked result = %+v", res)
	}
}

func TestAttemptOwnershipOverHTTP(t *testing.T) {
	store := quiz.NewInMemoryStore(grading.NewDefaultGrader())
	seedSet(t, store, false)
	h := testRouter(store)

	rec := doReq(t, h, "POST", "/attempts", "alice", "student", `{"question_set_id":"set1"}`)
	var a quiz.Attempt
	decode(t, rec, &a)

	// Another student cannot read or mutate it.
	rec = doReq(t, h, "GET", "/attempts/"+a.ID, "bob", "student", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign get = %d, want 403", rec.Code)
	}
	rec = doReq(t, h, "POST", "/attempts/"+a.ID+"/finish", "bob", "student", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign finish = %d, want 403", rec.Code)
	}

	// A reviewer can read anyone's attempt.
	rec = doReq(t, h, "GET", "/attempts/"+a.ID, "rev1", "reviewer", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reviewer get = %d", rec.Code)
	}

	rec = doReq(t, h, "GET", "/attempts/nope", "alice", "student", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing attempt = %d, want 404", rec.Code)
	}

	rec = doReq(t, h, "POST", "/attempts", "alice", "student", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing set id = %d, want 400", rec.Code)
	}
}

func TestListAttemptsScopedToOwnerOverHTTP(t *testing.T) {
	store := quiz.NewInMemoryStore(grading.NewDefaultGrader())
	seedSet(t, store, false)
	h := testRouter(store)

	doReq(t, h, "POST", "/attempts", "alice", "student", `{"question_set_id":"set1"}`)
	doReq(t, h, "POST", "/attempts", "bob", "student", `{"question_set_id":"set1"}`)

	// A student asking for someone else's attempts still gets their own.
	rec := doReq(t, h, "GET", "/attempts?user_id=bob", "alice", "student", "")
	var list []quiz.AttemptSummary
	decode(t, rec, &list)
	if len(list) != 1 || list[0].UserID != "alice" {
		t.Fatalf("student list = %+v", list)
	}

	// A teacher sees the whole cohort.
	rec = doReq(t, h, "GET", "/attempts", "t1", "teacher", "")
	decode(t, rec, &list)
	if len(list) != 2 {
		t.Fatalf("teacher list = %d entries, want 2", len(list))
	}
}
