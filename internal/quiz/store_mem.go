package quiz

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizdesk/quizdesk/internal/grading"
)

// memoryStore backs handler tests and single-binary demo runs. Same
// semantics as SQLStore, no persistence.
type memoryStore struct {
	mu       sync.RWMutex
	grader   grading.Grader
	now      func() time.Time
	sets     map[string]QuestionSet
	attempts map[string]*Attempt
}

func NewInMemoryStore(grader grading.Grader) Store {
	return &memoryStore{
		grader:   grader,
		now:      time.Now,
		sets:     map[string]QuestionSet{},
		attempts: map[string]*Attempt{},
	}
}

// NewInMemoryStoreAt pins the clock; tests use it to drive deadlines.
func NewInMemoryStoreAt(grader grading.Grader, now func() time.Time) Store {
	s := NewInMemoryStore(grader).(*memoryStore)
	s.now = now
	return s
}

func (m *memoryStore) PutQuestionSet(_ context.Context, set QuestionSet) error {
	if set.ID == "" || set.Title == "" {
		return validationErrf("id and title required")
	}
	for _, q := range set.Questions {
		if !ValidType(q.Type) {
			return validationErrf("unknown type " + q.Type)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if set.CreatedAt == 0 {
		set.CreatedAt = m.now().Unix()
	}
	m.sets[set.ID] = set
	return nil
}

func (m *memoryStore) GetQuestionSet(_ context.Context, id string) (QuestionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[id]
	if !ok {
		return QuestionSet{}, ErrSetNotFound
	}
	cp := set
	cp.Questions = append([]Question(nil), set.Questions...)
	stripKeys(cp.Questions)
	return cp, nil
}

func (m *memoryStore) GetQuestionSetAdmin(_ context.Context, id string) (QuestionSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[id]
	if !ok {
		return QuestionSet{}, ErrSetNotFound
	}
	return set, nil
}

func (m *memoryStore) ListQuestionSets(_ context.Context, opts SetListOpts) ([]SetSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []SetSummary{}
	for _, set := range m.sets {
		if opts.Q != "" && !strings.Contains(strings.ToLower(set.Title), strings.ToLower(opts.Q)) {
			continue
		}
		out = append(out, SetSummary{
			ID: set.ID, Title: set.Title, TimeLimitSec: set.TimeLimitSec,
			QuestionCount: len(set.Questions), CreatedAt: set.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (m *memoryStore) StartAttempt(_ context.Context, setID, userID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[setID]
	if !ok {
		return Attempt{}, ErrSetNotFound
	}
	no := 1
	for _, a := range m.attempts {
		if a.QuestionSetID == setID && a.UserID == userID {
			no++
		}
	}
	a := &Attempt{
		ID:            uuid.NewString(),
		QuestionSetID: setID,
		UserID:        userID,
		AttemptNumber: no,
		StartedAt:     m.now().Unix(),
		TimeLimitSec:  set.TimeLimitSec,
	}
	for i, q := range set.Questions {
		a.Items = append(a.Items, QuestionAttempt{
			ID:         uuid.NewString(),
			AttemptID:  a.ID,
			QuestionID: q.ID,
			Position:   i,
			Type:       q.Type,
			Text:       q.Text,
			Difficulty: q.Difficulty,
			Options:    q.Options,
		})
	}
	m.attempts[a.ID] = a
	return m.snapshot(a), nil
}

// snapshot copies an attempt and hides pre-check correctness.
func (m *memoryStore) snapshot(a *Attempt) Attempt {
	cp := *a
	cp.Items = append([]QuestionAttempt(nil), a.Items...)
	if !cp.IsChecked {
		for i := range cp.Items {
			cp.Items[i].IsCorrect = nil
		}
	}
	return cp
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return m.snapshot(a), nil
}

func (m *memoryStore) SubmitAnswer(_ context.Context, attemptID string, ans Answer) (QuestionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return QuestionAttempt{}, ErrAttemptNotFound
	}
	if a.IsCompleted {
		return QuestionAttempt{}, ErrAttemptCompleted
	}
	for i := range a.Items {
		it := &a.Items[i]
		if it.ID != ans.QuestionAttemptID {
			continue
		}
		if err := ValidateAnswer(it.Type, ans); err != nil {
			return QuestionAttempt{}, err
		}
		it.SelectedOptionID = ans.SelectedOptionID
		it.SelectedBooleanAnswer = ans.SelectedBooleanAnswer
		it.SelectedTextAnswer = ans.SelectedTextAnswer
		cp := *it
		cp.IsCorrect = nil
		return cp, nil
	}
	return QuestionAttempt{}, ErrItemNotFound
}

func (m *memoryStore) FinishAttempt(ctx context.Context, id string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finishLocked(ctx, id)
}

func (m *memoryStore) finishLocked(ctx context.Context, id string) (Attempt, error) {
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if a.IsCompleted {
		return m.snapshot(a), nil
	}
	set := m.sets[a.QuestionSetID]
	byID := make(map[string]Question, len(set.Questions))
	for _, q := range set.Questions {
		byID[q.ID] = q
	}
	score := 0
	for i := range a.Items {
		it := &a.Items[i]
		q := byID[it.QuestionID]
		if ManualType(q.Type) || !it.Answered() {
			continue
		}
		out, err := m.grader.Grade(ctx, grading.Q{
			Type:            q.Type,
			CorrectOptionID: q.CorrectOptionID,
			CorrectBoolean:  q.CorrectBoolean,
			CorrectText:     q.CorrectText,
		}, grading.Response{
			OptionID: it.SelectedOptionID,
			Boolean:  it.SelectedBooleanAnswer,
			Text:     it.SelectedTextAnswer,
		})
		if err != nil || out.NeedsManual {
			continue
		}
		v := out.Correct
		it.IsCorrect = &v
		if v {
			score++
		}
	}
	now := m.now().Unix()
	a.CompletedAt = &now
	a.IsCompleted = true
	a.Score = score
	a.Percentage = Percentage(score, len(a.Items))
	a.IsChecked = !set.HasManualTypes()
	return m.snapshot(a), nil
}

func (m *memoryStore) MarkQuestionAttempt(_ context.Context, questionAttemptID string, correct bool, reviewer string) (QuestionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		for i := range a.Items {
			it := &a.Items[i]
			if it.ID != questionAttemptID {
				continue
			}
			if !a.IsCompleted {
				return QuestionAttempt{}, ErrNotCompleted
			}
			if !ManualType(it.Type) {
				return QuestionAttempt{}, ErrAutoGradedType
			}
			v := correct
			it.IsCorrect = &v
			it.MarkedBy = reviewer
			return *it, nil
		}
	}
	return QuestionAttempt{}, ErrItemNotFound
}

func (m *memoryStore) CheckAttempt(_ context.Context, attemptID string) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	if !a.IsCompleted {
		return Attempt{}, ErrNotCompleted
	}
	if !a.IsChecked {
		score := 0
		for _, it := range a.Items {
			if it.IsCorrect != nil && *it.IsCorrect {
				score++
			}
		}
		a.Score = score
		a.Percentage = Percentage(score, len(a.Items))
		a.IsChecked = true
	}
	return m.snapshot(a), nil
}

func (m *memoryStore) GetResult(_ context.Context, id string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Result{}, ErrAttemptNotFound
	}
	if !a.IsCompleted {
		return Result{}, ErrNotCompleted
	}
	if !a.IsChecked {
		return Result{}, ErrNotChecked
	}
	res := Result{Attempt: m.snapshot(a)}
	if a.CompletedAt != nil {
		res.ElapsedSec = *a.CompletedAt - a.StartedAt
	}
	user := statsOver(m.attempts, a.QuestionSetID, a.UserID)
	cohort := statsOver(m.attempts, a.QuestionSetID, "")
	res.Stats = ComparisonStats{
		UserHighest: user[0], UserAverage: user[1], UserLowest: user[2],
		CohortHighest: cohort[0], CohortAverage: cohort[1], CohortLowest: cohort[2],
	}
	return res, nil
}

func statsOver(attempts map[string]*Attempt, setID, userID string) [3]float64 {
	var vals []float64
	for _, a := range attempts {
		if a.QuestionSetID != setID || !a.IsChecked {
			continue
		}
		if userID != "" && a.UserID != userID {
			continue
		}
		vals = append(vals, a.Percentage)
	}
	if len(vals) == 0 {
		return [3]float64{}
	}
	hi, lo, sum := vals[0], vals[0], 0.0
	for _, v := range vals {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
		sum += v
	}
	return [3]float64{hi, sum / float64(len(vals)), lo}
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]AttemptSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []AttemptSummary{}
	for _, a := range m.attempts {
		if opts.QuestionSetID != "" && a.QuestionSetID != opts.QuestionSetID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.Completed != nil && a.IsCompleted != *opts.Completed {
			continue
		}
		if opts.Checked != nil && a.IsChecked != *opts.Checked {
			continue
		}
		out = append(out, AttemptSummary{
			ID: a.ID, QuestionSetID: a.QuestionSetID, UserID: a.UserID,
			AttemptNumber: a.AttemptNumber, StartedAt: a.StartedAt,
			CompletedAt: a.CompletedAt, IsCompleted: a.IsCompleted,
			IsChecked: a.IsChecked, Score: a.Score, Percentage: a.Percentage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	return out, nil
}

func (m *memoryStore) FinishOverdue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.attempts {
		set := m.sets[a.QuestionSetID]
		if a.IsCompleted || !set.Timed() {
			continue
		}
		if a.StartedAt+int64(set.TimeLimitSec) <= now.Unix() {
			if _, err := m.finishLocked(ctx, id); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
