package attemptflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClient holds the server-side attempt in memory and applies mutations
// the same way the real server does.
type fakeClient struct {
	mu          sync.Mutex
	attempt     Attempt
	result      Result
	resultErr   error
	submitErr   error
	finishErr   error
	submitGate  chan struct{} // when set, SubmitAnswer blocks until closed
	submitCalls int
	finishCalls int
}

func (f *fakeClient) StartAttempt(ctx context.Context, setID string) (Attempt, error) {
	return f.GetAttempt(ctx, f.attempt.ID)
}

func (f *fakeClient) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.attempt
	a.Items = append([]QuestionAttempt(nil), f.attempt.Items...)
	return a, nil
}

func (f *fakeClient) SubmitAnswer(ctx context.Context, id string, ans Answer) (QuestionAttempt, error) {
	f.mu.Lock()
	gate := f.submitGate
	f.submitCalls++
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return QuestionAttempt{}, f.submitErr
	}
	for i := range f.attempt.Items {
		if f.attempt.Items[i].ID == ans.QuestionAttemptID {
			f.attempt.Items[i].SelectedOptionID = ans.SelectedOptionID
			f.attempt.Items[i].SelectedBooleanAnswer = ans.SelectedBooleanAnswer
			f.attempt.Items[i].SelectedTextAnswer = ans.SelectedTextAnswer
			return f.attempt.Items[i], nil
		}
	}
	return QuestionAttempt{}, ErrNotFound
}

func (f *fakeClient) FinishAttempt(ctx context.Context, id string) (Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	if f.finishErr != nil {
		return Attempt{}, f.finishErr
	}
	f.attempt.IsCompleted = true
	return f.attempt, nil
}

func (f *fakeClient) GetResult(ctx context.Context, id string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultErr != nil {
		return Result{}, f.resultErr
	}
	return f.result, nil
}

func fiveQuestionAttempt() Attempt {
	items := make([]QuestionAttempt, 5)
	for i := range items {
		items[i] = QuestionAttempt{
			ID:       string(rune('a' + i)),
			Position: i + 1,
			Type:     "mcq",
			Options:  []Option{{ID: "o1", Text: "one"}, {ID: "o2", Text: "two"}},
		}
	}
	return Attempt{ID: "att1", StartedAt: 1000, TimeLimitSec: 600, Items: items}
}

func newTestSession(t *testing.T, f *fakeClient, clock *time.Time) *Session {
	t.Helper()
	s, err := Start(context.Background(), f, "set1", WithClock(func() time.Time { return *clock }))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestSessionAnswerAndFinish(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	ctx := context.Background()

	// Answer the first three questions.
	for i := 0; i < 3; i++ {
		s.SetInput("o1")
		if err := s.Next(ctx); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if got := s.AnsweredCount(); got != 3 {
		t.Fatalf("answered = %d, want 3", got)
	}
	if cur, ok := s.Current(); !ok || cur.ID != "d" {
		t.Fatalf("cursor at %q, want d", cur.ID)
	}

	unanswered, err := s.RequestFinish()
	if err != nil {
		t.Fatalf("request finish: %v", err)
	}
	if unanswered != 2 {
		t.Fatalf("unanswered = %d, want 2", unanswered)
	}
	if s.Phase() != PhaseConfirm {
		t.Fatalf("phase = %v, want confirm", s.Phase())
	}

	if err := s.ConfirmFinish(ctx); err != nil {
		t.Fatalf("confirm finish: %v", err)
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want completed", s.Phase())
	}
	if !s.Attempt().IsCompleted {
		t.Fatal("attempt snapshot should be completed")
	}

	// Mutations after completion are rejected.
	s.SetInput("o2")
	if err := s.Next(ctx); !errors.Is(err, ErrCompleted) {
		t.Fatalf("next after finish = %v, want ErrCompleted", err)
	}
}

func TestSessionSkipDoesNotSubmit(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)

	if err := s.Next(context.Background()); err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.submitCalls != 0 {
		t.Fatalf("skip made %d submit calls, want 0", f.submitCalls)
	}
	if cur, _ := s.Current(); cur.ID != "b" {
		t.Fatalf("cursor at %q, want b", cur.ID)
	}
	if got := s.AnsweredCount(); got != 0 {
		t.Fatalf("answered = %d, want 0", got)
	}
}

func TestSessionNextPastLastOpensReview(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Next(ctx); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if s.Phase() != PhaseReview {
		t.Fatalf("phase = %v, want review", s.Phase())
	}
	// Cursor stays on the last question.
	if cur, _ := s.Current(); cur.ID != "e" {
		t.Fatalf("cursor at %q, want e", cur.ID)
	}

	s.CloseReview()
	if s.Phase() != PhaseInProgress {
		t.Fatalf("phase = %v, want in_progress", s.Phase())
	}
}

func TestSessionNavigationClamps(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)

	s.Prev()
	s.Prev()
	if cur, _ := s.Current(); cur.ID != "a" {
		t.Fatalf("cursor at %q, want a after clamped prev", cur.ID)
	}

	s.Select("d")
	if cur, _ := s.Current(); cur.ID != "d" {
		t.Fatalf("cursor at %q, want d", cur.ID)
	}
	s.Select("nope")
	if cur, _ := s.Current(); cur.ID != "d" {
		t.Fatalf("unknown id moved cursor to %q", cur.ID)
	}
}

func TestSessionBusyGuard(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeClient{attempt: fiveQuestionAttempt(), submitGate: gate}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	ctx := context.Background()

	s.SetInput("o1")
	done := make(chan error, 1)
	go func() { done <- s.Next(ctx) }()

	// Wait for the submission to reach the wire.
	for {
		f.mu.Lock()
		n := f.submitCalls
		f.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	s.SetInput("o2")
	if err := s.Next(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent next = %v, want ErrBusy", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first next: %v", err)
	}
	if got := s.AnsweredCount(); got != 1 {
		t.Fatalf("answered = %d, want 1", got)
	}
}

func TestSessionSubmitConflictMeansFinalized(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)

	// The attempt gets finalized out from under the session.
	f.mu.Lock()
	f.submitErr = ErrConflict
	f.attempt.IsCompleted = true
	f.mu.Unlock()

	s.SetInput("o1")
	if err := s.Next(context.Background()); err != nil {
		t.Fatalf("next on finalized attempt = %v, want nil", err)
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want completed", s.Phase())
	}
}

func TestSessionFinishConflictIsSuccess(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt(), finishErr: ErrConflict}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)

	if _, err := s.RequestFinish(); err != nil {
		t.Fatalf("request finish: %v", err)
	}
	if err := s.ConfirmFinish(context.Background()); err != nil {
		t.Fatalf("finish conflict should be treated as success, got %v", err)
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want completed", s.Phase())
	}
}

func TestSessionFinishRetryAfterError(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt(), finishErr: errors.New("boom")}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	ctx := context.Background()

	if _, err := s.RequestFinish(); err != nil {
		t.Fatalf("request finish: %v", err)
	}
	if err := s.ConfirmFinish(ctx); err == nil {
		t.Fatal("expected finish error")
	}
	if s.Phase() == PhaseCompleted {
		t.Fatal("failed finish must not complete the session")
	}

	f.mu.Lock()
	f.finishErr = nil
	f.mu.Unlock()
	if _, err := s.RequestFinish(); err != nil {
		t.Fatalf("second request finish: %v", err)
	}
	if err := s.ConfirmFinish(ctx); err != nil {
		t.Fatalf("retry finish: %v", err)
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want completed", s.Phase())
	}
}

func TestSessionAutoFinalizeOnExpiry(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	ctx := context.Background()

	fired, err := s.CheckExpiry(ctx)
	if err != nil || fired {
		t.Fatalf("expiry before deadline: fired=%v err=%v", fired, err)
	}

	clock = clock.Add(601 * time.Second)
	fired, err = s.CheckExpiry(ctx)
	if err != nil {
		t.Fatalf("expiry finalize: %v", err)
	}
	if !fired {
		t.Fatal("expected expiry to fire")
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want completed", s.Phase())
	}
	if f.finishCalls != 1 {
		t.Fatalf("finish calls = %d, want 1", f.finishCalls)
	}

	// A later check is a no-op.
	if fired, _ = s.CheckExpiry(ctx); fired {
		t.Fatal("expiry must not fire twice")
	}
}

func TestSessionResumeCompleted(t *testing.T) {
	a := fiveQuestionAttempt()
	a.IsCompleted = true
	f := &fakeClient{attempt: a}
	s, err := Resume(context.Background(), f, "att1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %v, want completed", s.Phase())
	}
}

func TestSessionResumeCursorAtFirstUnanswered(t *testing.T) {
	a := fiveQuestionAttempt()
	opt := "o1"
	a.Items[0].SelectedOptionID = &opt
	a.Items[1].SelectedOptionID = &opt
	f := &fakeClient{attempt: a}
	s, err := Resume(context.Background(), f, "att1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if cur, _ := s.Current(); cur.ID != "c" {
		t.Fatalf("cursor at %q, want c", cur.ID)
	}
}

func TestSessionResultGatedUntilChecked(t *testing.T) {
	a := fiveQuestionAttempt()
	a.IsCompleted = true
	f := &fakeClient{
		attempt: a,
		result:  Result{AttemptID: "att1", IsCompleted: true, Status: "pending_verification"},
	}
	s, err := Resume(context.Background(), f, "att1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}

	res, err := s.Result(context.Background())
	if !errors.Is(err, ErrResultPending) {
		t.Fatalf("result before check = %v, want ErrResultPending", err)
	}
	if res.Status != "pending_verification" {
		t.Fatalf("status = %q", res.Status)
	}

	f.mu.Lock()
	f.result = Result{ID: "att1", IsCompleted: true, IsChecked: true, Score: 3, Percentage: 60, ElapsedSec: 420}
	f.mu.Unlock()
	res, err = s.Result(context.Background())
	if err != nil {
		t.Fatalf("result after check: %v", err)
	}
	if res.Score != 3 || res.Percentage != 60 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSessionTrueFalseInput(t *testing.T) {
	a := fiveQuestionAttempt()
	a.Items[0].Type = "true_false"
	a.Items[0].Options = nil
	f := &fakeClient{attempt: a}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	ctx := context.Background()

	s.SetInput("maybe")
	if err := s.Next(ctx); !errors.Is(err, ErrRejected) {
		t.Fatalf("bad boolean input = %v, want ErrRejected", err)
	}

	s.SetInput("true")
	if err := s.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	f.mu.Lock()
	got := f.attempt.Items[0].SelectedBooleanAnswer
	f.mu.Unlock()
	if got == nil || *got != true {
		t.Fatal("boolean answer not recorded")
	}
}

func TestSessionClosedRejectsMutation(t *testing.T) {
	f := &fakeClient{attempt: fiveQuestionAttempt()}
	clock := time.Unix(1000, 0)
	s := newTestSession(t, f, &clock)
	s.Close()

	if err := s.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("next after close = %v, want ErrClosed", err)
	}
	if _, err := s.RequestFinish(); !errors.Is(err, ErrClosed) {
		t.Fatalf("request finish after close = %v, want ErrClosed", err)
	}
	if err := s.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("refresh after close = %v, want ErrClosed", err)
	}
}
