package attemptflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Phase is the client-side finalization state. Review and Confirm are UI
// overlays; only Completed reflects a server state.
type Phase int

const (
	PhaseInProgress Phase = iota
	PhaseReview
	PhaseConfirm
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "in_progress"
	case PhaseReview:
		return "review"
	case PhaseConfirm:
		return "confirm"
	case PhaseCompleted:
		return "completed"
	}
	return "unknown"
}

// Session drives one attempt: cursor, transient input buffer, countdown, and
// the submit/finish flows. All methods are safe for the UI goroutine plus
// the timer goroutine started by Run.
type Session struct {
	mu      sync.Mutex
	client  Client
	attempt Attempt
	cursor  int
	phase   Phase

	input    string // transient buffer for the current question
	hasInput bool

	inFlight  bool // a submit for the current question is on the wire
	finishing bool
	closed    bool

	timer *Countdown
	now   func() time.Time
}

type SessionOption func(*Session)

// WithClock pins the session and countdown clock; tests use it.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// Start creates a fresh attempt and opens a session on it.
func Start(ctx context.Context, client Client, questionSetID string, opts ...SessionOption) (*Session, error) {
	a, err := client.StartAttempt(ctx, questionSetID)
	if err != nil {
		return nil, err
	}
	return newSession(client, a, opts...), nil
}

// Resume opens a session on an existing attempt. A completed attempt resumes
// straight into the Completed phase: the answering UI must never render for
// it, only the results view.
func Resume(ctx context.Context, client Client, attemptID string, opts ...SessionOption) (*Session, error) {
	a, err := client.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return newSession(client, a, opts...), nil
}

func newSession(client Client, a Attempt, opts ...SessionOption) *Session {
	s := &Session{client: client, attempt: a, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.timer = NewCountdown(time.Unix(a.StartedAt, 0), a.TimeLimitSec).WithNow(s.now)
	if a.IsCompleted {
		s.phase = PhaseCompleted
	}
	// Default cursor: first unanswered question, else the first.
	for i, it := range a.Items {
		if !it.Answered() {
			s.cursor = i
			break
		}
	}
	return s
}

func (s *Session) Timer() *Countdown { return s.timer }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Completed() bool { return s.Phase() == PhaseCompleted }

// Attempt returns the latest server snapshot.
func (s *Session) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Current returns the question attempt under the cursor.
func (s *Session) Current() (QuestionAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attempt.Items) == 0 || s.cursor >= len(s.attempt.Items) {
		return QuestionAttempt{}, false
	}
	return s.attempt.Items[s.cursor], true
}

func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.AnsweredCount()
}

func (s *Session) UnansweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.UnansweredCount()
}

// Select moves the cursor to the question attempt with the given id. Unknown
// ids are a no-op. The input buffer is discarded.
func (s *Session) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, it := range s.attempt.Items {
		if it.ID == id {
			s.cursor = i
			s.input, s.hasInput = "", false
			return
		}
	}
}

// Prev moves the cursor back one question, clamped at the first.
func (s *Session) Prev() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor > 0 {
		s.cursor--
		s.input, s.hasInput = "", false
	}
}

// SetInput buffers the user's raw value for the current question. The
// buffer is transient: it is cleared on navigation and after submission.
func (s *Session) SetInput(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input, s.hasInput = v, true
}

// Next is the answer-and-advance action. With a buffered value it submits
// the answer and advances only on success; with an empty buffer it advances
// without calling the server at all (an explicit skip). Advancing past the
// last question enters the Review phase. While a submission for the current
// question is in flight, Next returns ErrBusy: two submissions must never
// race on the same question attempt.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase == PhaseCompleted {
		s.mu.Unlock()
		return ErrCompleted
	}
	if s.inFlight {
		s.mu.Unlock()
		return ErrBusy
	}
	if len(s.attempt.Items) == 0 {
		s.mu.Unlock()
		return nil
	}

	cur := s.attempt.Items[s.cursor]
	raw := strings.TrimSpace(s.input)
	if !s.hasInput || raw == "" {
		// Advance only: a skip never touches the server.
		s.advanceLocked()
		s.mu.Unlock()
		return nil
	}

	ans, err := buildAnswer(cur, raw)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	attemptID := s.attempt.ID
	s.inFlight = true
	s.mu.Unlock()

	_, submitErr := s.client.SubmitAnswer(ctx, attemptID, ans)
	var refreshed Attempt
	var refreshErr error
	if submitErr == nil || errors.Is(submitErr, ErrConflict) {
		refreshed, refreshErr = s.client.GetAttempt(ctx, attemptID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closed {
		// The component is gone; the request completed server-side but no
		// state may change here.
		return ErrClosed
	}
	if submitErr != nil {
		if errors.Is(submitErr, ErrConflict) {
			// Already finalized elsewhere: no-op success, go to results.
			if refreshErr == nil {
				s.attempt = refreshed
			}
			s.phase = PhaseCompleted
			return nil
		}
		// Answer not persisted: keep cursor and buffer so the user retries.
		return submitErr
	}
	if refreshErr == nil {
		s.attempt = refreshed // answered counts derive from server truth
	}
	s.input, s.hasInput = "", false
	if s.attempt.IsCompleted {
		s.phase = PhaseCompleted
		return nil
	}
	s.advanceLocked()
	return nil
}

func (s *Session) advanceLocked() {
	s.input, s.hasInput = "", false
	if s.cursor < len(s.attempt.Items)-1 {
		s.cursor++
		return
	}
	// Past the last question: the cursor stays put and review opens.
	s.phase = PhaseReview
}

// buildAnswer maps the raw value onto exactly one selection field based on
// the question type; the other two stay nil and marshal as nulls.
func buildAnswer(cur QuestionAttempt, raw string) (Answer, error) {
	ans := Answer{QuestionAttemptID: cur.ID}
	switch cur.Type {
	case "mcq":
		ans.SelectedOptionID = &raw
	case "true_false":
		switch raw {
		case "true":
			v := true
			ans.SelectedBooleanAnswer = &v
		case "false":
			v := false
			ans.SelectedBooleanAnswer = &v
		default:
			return Answer{}, ErrRejected
		}
	default: // all text-style types
		ans.SelectedTextAnswer = &raw
	}
	return ans, nil
}

// OpenReview enters the review overlay without moving the cursor.
func (s *Session) OpenReview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseInProgress {
		s.phase = PhaseReview
	}
}

// CloseReview returns from review (or the confirm dialog) to answering.
func (s *Session) CloseReview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseReview || s.phase == PhaseConfirm {
		s.phase = PhaseInProgress
	}
}

// RequestFinish opens the confirmation step and reports how many questions
// are still unanswered, for the "N unanswered questions, submit anyway?"
// warning.
func (s *Session) RequestFinish() (unanswered int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.phase == PhaseCompleted {
		return 0, ErrCompleted
	}
	s.phase = PhaseConfirm
	return s.attempt.UnansweredCount(), nil
}

// ConfirmFinish finalizes after the user confirmed the warning.
func (s *Session) ConfirmFinish(ctx context.Context) error {
	return s.finalize(ctx)
}

// finalize converges the manual and expiry paths onto one idempotent finish
// call. "Already completed" is success, never an error.
func (s *Session) finalize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase == PhaseCompleted {
		s.mu.Unlock()
		return nil
	}
	if s.finishing {
		s.mu.Unlock()
		return nil
	}
	s.finishing = true
	attemptID := s.attempt.ID
	s.mu.Unlock()

	a, err := s.client.FinishAttempt(ctx, attemptID)
	if err != nil && !errors.Is(err, ErrConflict) {
		// Reconcile: the server may have applied the transition anyway.
		if ra, rerr := s.client.GetAttempt(ctx, attemptID); rerr == nil && ra.IsCompleted {
			a, err = ra, nil
		}
	}
	if err != nil && errors.Is(err, ErrConflict) {
		if ra, rerr := s.client.GetAttempt(ctx, attemptID); rerr == nil {
			a, err = ra, nil
		} else {
			err = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishing = false
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		// Stay where we were; the user can retry.
		if s.phase == PhaseConfirm {
			s.phase = PhaseInProgress
		}
		return err
	}
	if a.ID != "" {
		s.attempt = a
	}
	s.phase = PhaseCompleted
	return nil
}

// CheckExpiry finalizes immediately, with no confirmation dialog, once the
// countdown has expired. It reports whether the expiry path ran.
func (s *Session) CheckExpiry(ctx context.Context) (bool, error) {
	if !s.timer.Timed() || !s.timer.Expired() {
		return false, nil
	}
	s.mu.Lock()
	done := s.phase == PhaseCompleted || s.closed
	s.mu.Unlock()
	if done {
		return false, nil
	}
	return true, s.finalize(ctx)
}

// Run ticks the countdown once a second and fires the automatic finalize on
// expiry. It returns when the attempt completes, the session closes, or ctx
// is done.
func (s *Session) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := s.CheckExpiry(ctx); err != nil {
				continue // transient; the next tick retries
			}
			s.mu.Lock()
			done := s.phase == PhaseCompleted || s.closed
			s.mu.Unlock()
			if done {
				return nil
			}
		}
	}
}

// Result fetches the outcome, enforcing the review gate: while is_checked is
// false it returns ErrResultPending alongside the pending payload, and the
// caller must render only the pending state.
func (s *Session) Result(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Result{}, ErrClosed
	}
	attemptID := s.attempt.ID
	s.mu.Unlock()

	res, err := s.client.GetResult(ctx, attemptID)
	if err != nil {
		return Result{}, err
	}
	if !res.IsChecked {
		return res, ErrResultPending
	}
	return res, nil
}

// Refresh refetches the attempt; server state always wins.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	attemptID := s.attempt.ID
	s.mu.Unlock()

	a, err := s.client.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.attempt = a
	if a.IsCompleted {
		s.phase = PhaseCompleted
	}
	if s.cursor >= len(a.Items) {
		s.cursor = 0
	}
	return nil
}

// Close detaches the session. In-flight requests complete server-side but
// no longer mutate session state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
