package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizdesk/quizdesk/internal/eventlog"
	"github.com/quizdesk/quizdesk/internal/grading"
)

type SQLStore struct {
	db     *sql.DB
	grader grading.Grader
	events *eventlog.Repo
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, grader grading.Grader) *SQLStore {
	return &SQLStore{
		db:     db,
		grader: grader,
		events: eventlog.NewRepo(db),
		now:    time.Now,
	}
}

// WithNow overrides the clock; tests use it to pin deadlines.
func (s *SQLStore) WithNow(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

func (s *SQLStore) PutQuestionSet(ctx context.Context, set QuestionSet) error {
	if set.ID == "" || set.Title == "" {
		return validationErrf("id and title required")
	}
	for i, q := range set.Questions {
		if !ValidType(q.Type) {
			return validationErrf(fmt.Sprintf("question %d: unknown type %q", i, q.Type))
		}
	}
	qj, err := json.Marshal(set.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO question_sets (id,title,time_limit_sec,questions_json,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, time_limit_sec=EXCLUDED.time_limit_sec,
			questions_json=EXCLUDED.questions_json`,
		set.ID, set.Title, set.TimeLimitSec, string(qj), set.CreatedBy, s.now().Unix())
	return err
}

func (s *SQLStore) GetQuestionSet(ctx context.Context, id string) (QuestionSet, error) {
	set, err := s.getSet(ctx, id)
	if err != nil {
		return QuestionSet{}, err
	}
	stripKeys(set.Questions)
	return set, nil
}

func (s *SQLStore) GetQuestionSetAdmin(ctx context.Context, id string) (QuestionSet, error) {
	return s.getSet(ctx, id)
}

func (s *SQLStore) getSet(ctx context.Context, id string) (QuestionSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,title,time_limit_sec,questions_json,created_by,created_at FROM question_sets WHERE id=$1`, id)
	var set QuestionSet
	var qjson string
	if err := row.Scan(&set.ID, &set.Title, &set.TimeLimitSec, &qjson, &set.CreatedBy, &set.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuestionSet{}, ErrSetNotFound
		}
		return QuestionSet{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &set.Questions); err != nil {
		return QuestionSet{}, err
	}
	return set, nil
}

func stripKeys(qs []Question) {
	for i := range qs {
		qs[i].CorrectOptionID = ""
		qs[i].CorrectBoolean = nil
		qs[i].CorrectText = ""
	}
}

func (s *SQLStore) ListQuestionSets(ctx context.Context, opts SetListOpts) ([]SetSummary, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	q := `SELECT id,title,time_limit_sec,questions_json,created_at FROM question_sets`
	args := []any{}
	if strings.TrimSpace(opts.Q) != "" {
		q += ` WHERE title LIKE $1`
		args = append(args, "%"+strings.TrimSpace(opts.Q)+"%")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SetSummary{}
	for rows.Next() {
		var sm SetSummary
		var qjson string
		if err := rows.Scan(&sm.ID, &sm.Title, &sm.TimeLimitSec, &qjson, &sm.CreatedAt); err != nil {
			return nil, err
		}
		var qs []Question
		if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
			sm.QuestionCount = len(qs)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLStore) StartAttempt(ctx context.Context, setID, userID string) (Attempt, error) {
	set, err := s.getSet(ctx, setID)
	if err != nil {
		return Attempt{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	var attemptNo int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*)+1 FROM attempts WHERE question_set_id=$1 AND user_id=$2`,
		setID, userID).Scan(&attemptNo); err != nil {
		return Attempt{}, err
	}

	id := uuid.NewString()
	started := s.now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id,question_set_id,user_id,attempt_number,started_at) VALUES ($1,$2,$3,$4,$5)`,
		id, setID, userID, attemptNo, started); err != nil {
		return Attempt{}, err
	}
	// Pre-populate one unanswered question attempt per question, in order.
	for i, q := range set.Questions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO question_attempts (id,attempt_id,question_id,position) VALUES ($1,$2,$3,$4)`,
			uuid.NewString(), id, q.ID, i); err != nil {
			return Attempt{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}

	s.appendEvent(ctx, eventlog.TypeAttemptStarted, id,
		fmt.Sprintf(`{"question_set_id":%q,"user_id":%q}`, setID, userID))
	return s.GetAttempt(ctx, id)
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := s.getAttemptRow(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	set, err := s.getSet(ctx, a.QuestionSetID)
	if err != nil {
		return Attempt{}, err
	}
	a.TimeLimitSec = set.TimeLimitSec
	items, err := s.loadItems(ctx, id, set)
	if err != nil {
		return Attempt{}, err
	}
	// Per-question correctness is authoritative only once checked.
	if !a.IsChecked {
		for i := range items {
			items[i].IsCorrect = nil
		}
	}
	a.Items = items
	return a, nil
}

func (s *SQLStore) getAttemptRow(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,question_set_id,user_id,attempt_number,started_at,completed_at,checked_at,score,percentage
		 FROM attempts WHERE id=$1`, id)
	var a Attempt
	var completed, checked sql.NullInt64
	if err := row.Scan(&a.ID, &a.QuestionSetID, &a.UserID, &a.AttemptNumber, &a.StartedAt,
		&completed, &checked, &a.Score, &a.Percentage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrAttemptNotFound
		}
		return Attempt{}, err
	}
	if completed.Valid {
		v := completed.Int64
		a.CompletedAt = &v
		a.IsCompleted = true
	}
	a.IsChecked = checked.Valid
	return a, nil
}

func (s *SQLStore) loadItems(ctx context.Context, attemptID string, set QuestionSet) ([]QuestionAttempt, error) {
	byID := make(map[string]Question, len(set.Questions))
	for _, q := range set.Questions {
		byID[q.ID] = q
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,attempt_id,question_id,position,selected_option_id,selected_boolean,selected_text,is_correct,marked_by
		 FROM question_attempts WHERE attempt_id=$1 ORDER BY position`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []QuestionAttempt
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if q, ok := byID[it.QuestionID]; ok {
			it.Type = q.Type
			it.Text = q.Text
			it.Difficulty = q.Difficulty
			it.Options = q.Options
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanItem(row rowScanner) (QuestionAttempt, error) {
	var it QuestionAttempt
	var opt, text, marked sql.NullString
	var boolAns, correct sql.NullInt64
	if err := row.Scan(&it.ID, &it.AttemptID, &it.QuestionID, &it.Position,
		&opt, &boolAns, &text, &correct, &marked); err != nil {
		return QuestionAttempt{}, err
	}
	if opt.Valid {
		v := opt.String
		it.SelectedOptionID = &v
	}
	if boolAns.Valid {
		v := boolAns.Int64 != 0
		it.SelectedBooleanAnswer = &v
	}
	if text.Valid {
		v := text.String
		it.SelectedTextAnswer = &v
	}
	if correct.Valid {
		v := correct.Int64 != 0
		it.IsCorrect = &v
	}
	it.MarkedBy = marked.String
	return it, nil
}

func (s *SQLStore) SubmitAnswer(ctx context.Context, attemptID string, ans Answer) (QuestionAttempt, error) {
	a, err := s.getAttemptRow(ctx, attemptID)
	if err != nil {
		return QuestionAttempt{}, err
	}
	if a.IsCompleted {
		return QuestionAttempt{}, ErrAttemptCompleted
	}
	set, err := s.getSet(ctx, a.QuestionSetID)
	if err != nil {
		return QuestionAttempt{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id,attempt_id,question_id,position,selected_option_id,selected_boolean,selected_text,is_correct,marked_by
		 FROM question_attempts WHERE id=$1 AND attempt_id=$2`, ans.QuestionAttemptID, attemptID)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuestionAttempt{}, ErrItemNotFound
		}
		return QuestionAttempt{}, err
	}

	var qtype string
	for _, q := range set.Questions {
		if q.ID == it.QuestionID {
			qtype = q.Type
			break
		}
	}
	if err := ValidateAnswer(qtype, ans); err != nil {
		return QuestionAttempt{}, err
	}
	if qtype == TypeMCQ && *ans.SelectedOptionID != "" {
		if !optionExists(set, it.QuestionID, *ans.SelectedOptionID) {
			return QuestionAttempt{}, validationErrf("unknown option id")
		}
	}

	// Write all three fields: the unsent ones clear any stale value of a
	// different shape.
	var boolVal any
	if ans.SelectedBooleanAnswer != nil {
		if *ans.SelectedBooleanAnswer {
			boolVal = 1
		} else {
			boolVal = 0
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE question_attempts SET selected_option_id=$1, selected_boolean=$2, selected_text=$3 WHERE id=$4`,
		ans.SelectedOptionID, boolVal, ans.SelectedTextAnswer, ans.QuestionAttemptID); err != nil {
		return QuestionAttempt{}, err
	}

	s.appendEvent(ctx, eventlog.TypeAnswerSubmitted, attemptID,
		fmt.Sprintf(`{"question_attempt_id":%q}`, ans.QuestionAttemptID))

	row = s.db.QueryRowContext(ctx,
		`SELECT id,attempt_id,question_id,position,selected_option_id,selected_boolean,selected_text,is_correct,marked_by
		 FROM question_attempts WHERE id=$1`, ans.QuestionAttemptID)
	out, err := scanItem(row)
	if err != nil {
		return QuestionAttempt{}, err
	}
	out.Type = qtype
	out.IsCorrect = nil // never authoritative before grading
	return out, nil
}

func optionExists(set QuestionSet, questionID, optionID string) bool {
	for _, q := range set.Questions {
		if q.ID != questionID {
			continue
		}
		for _, o := range q.Options {
			if o.ID == optionID {
				return true
			}
		}
	}
	return false
}

func (s *SQLStore) FinishAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := s.getAttemptRow(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	// Idempotent: a second finish observes the terminal state, not an error.
	if a.IsCompleted {
		return s.GetAttempt(ctx, id)
	}
	set, err := s.getSet(ctx, a.QuestionSetID)
	if err != nil {
		return Attempt{}, err
	}
	items, err := s.loadItems(ctx, id, set)
	if err != nil {
		return Attempt{}, err
	}

	byID := make(map[string]Question, len(set.Questions))
	for _, q := range set.Questions {
		byID[q.ID] = q
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Attempt{}, err
	}
	defer tx.Rollback()

	// Auto-grade mcq/true_false answers; manual types stay ungraded.
	score := 0
	for _, it := range items {
		q := byID[it.QuestionID]
		if ManualType(q.Type) || !it.Answered() {
			continue
		}
		out, err := s.grader.Grade(ctx, grading.Q{
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
		v := 0
		if out.Correct {
			v = 1
			score++
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE question_attempts SET is_correct=$1 WHERE id=$2`, v, it.ID); err != nil {
			return Attempt{}, err
		}
	}

	now := s.now().Unix()
	// A set without manually-graded types is checked in the same transaction.
	var checkedAt any
	if !set.HasManualTypes() {
		checkedAt = now
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE attempts SET completed_at=$1, checked_at=$2, score=$3, percentage=$4 WHERE id=$5 AND completed_at IS NULL`,
		now, checkedAt, score, Percentage(score, len(items)), id); err != nil {
		return Attempt{}, err
	}
	if err := tx.Commit(); err != nil {
		return Attempt{}, err
	}

	s.appendEvent(ctx, eventlog.TypeAttemptFinished, id, fmt.Sprintf(`{"score":%d}`, score))
	return s.GetAttempt(ctx, id)
}

func (s *SQLStore) MarkQuestionAttempt(ctx context.Context, questionAttemptID string, correct bool, reviewer string) (QuestionAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,attempt_id,question_id,position,selected_option_id,selected_boolean,selected_text,is_correct,marked_by
		 FROM question_attempts WHERE id=$1`, questionAttemptID)
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QuestionAttempt{}, ErrItemNotFound
		}
		return QuestionAttempt{}, err
	}
	a, err := s.getAttemptRow(ctx, it.AttemptID)
	if err != nil {
		return QuestionAttempt{}, err
	}
	if !a.IsCompleted {
		return QuestionAttempt{}, ErrNotCompleted
	}
	set, err := s.getSet(ctx, a.QuestionSetID)
	if err != nil {
		return QuestionAttempt{}, err
	}
	var qtype string
	for _, q := range set.Questions {
		if q.ID == it.QuestionID {
			qtype = q.Type
			break
		}
	}
	if !ManualType(qtype) {
		return QuestionAttempt{}, ErrAutoGradedType
	}

	// Staged: marks can be revised any number of times before CheckAttempt
	// commits them.
	v := 0
	if correct {
		v = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE question_attempts SET is_correct=$1, marked_by=$2 WHERE id=$3`, v, reviewer, questionAttemptID); err != nil {
		return QuestionAttempt{}, err
	}
	it.IsCorrect = &correct
	it.MarkedBy = reviewer
	it.Type = qtype
	return it, nil
}

func (s *SQLStore) CheckAttempt(ctx context.Context, attemptID string) (Attempt, error) {
	a, err := s.getAttemptRow(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !a.IsCompleted {
		return Attempt{}, ErrNotCompleted
	}
	if a.IsChecked {
		return s.GetAttempt(ctx, attemptID)
	}
	set, err := s.getSet(ctx, a.QuestionSetID)
	if err != nil {
		return Attempt{}, err
	}
	items, err := s.loadItems(ctx, attemptID, set)
	if err != nil {
		return Attempt{}, err
	}

	// The commit makes the staged marks authoritative and recomputes the
	// final score over auto and manual questions alike.
	score := 0
	for _, it := range items {
		if it.IsCorrect != nil && *it.IsCorrect {
			score++
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET checked_at=$1, score=$2, percentage=$3 WHERE id=$4`,
		s.now().Unix(), score, Percentage(score, len(items)), attemptID); err != nil {
		return Attempt{}, err
	}

	s.appendEvent(ctx, eventlog.TypeAttemptChecked, attemptID, fmt.Sprintf(`{"score":%d}`, score))
	return s.GetAttempt(ctx, attemptID)
}

func (s *SQLStore) GetResult(ctx context.Context, id string) (Result, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !a.IsCompleted {
		return Result{}, ErrNotCompleted
	}
	if !a.IsChecked {
		return Result{}, ErrNotChecked
	}

	res := Result{Attempt: a}
	if a.CompletedAt != nil {
		res.ElapsedSec = *a.CompletedAt - a.StartedAt
	}

	// Comparison statistics only aggregate checked attempts.
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(percentage),0), COALESCE(AVG(percentage),0), COALESCE(MIN(percentage),0)
		 FROM attempts WHERE question_set_id=$1 AND user_id=$2 AND checked_at IS NOT NULL`,
		a.QuestionSetID, a.UserID)
	if err := row.Scan(&res.Stats.UserHighest, &res.Stats.UserAverage, &res.Stats.UserLowest); err != nil {
		return Result{}, err
	}
	row = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(percentage),0), COALESCE(AVG(percentage),0), COALESCE(MIN(percentage),0)
		 FROM attempts WHERE question_set_id=$1 AND checked_at IS NOT NULL`,
		a.QuestionSetID)
	if err := row.Scan(&res.Stats.CohortHighest, &res.Stats.CohortAverage, &res.Stats.CohortLowest); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]AttemptSummary, error) {
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.QuestionSetID != "" {
		where = append(where, "question_set_id="+arg(opts.QuestionSetID))
	}
	if opts.UserID != "" {
		where = append(where, "user_id="+arg(opts.UserID))
	}
	if opts.Completed != nil {
		if *opts.Completed {
			where = append(where, "completed_at IS NOT NULL")
		} else {
			where = append(where, "completed_at IS NULL")
		}
	}
	if opts.Checked != nil {
		if *opts.Checked {
			where = append(where, "checked_at IS NOT NULL")
		} else {
			where = append(where, "checked_at IS NULL")
		}
	}
	q := `SELECT id,question_set_id,user_id,attempt_number,started_at,completed_at,checked_at,score,percentage FROM attempts`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d OFFSET %d", opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AttemptSummary{}
	for rows.Next() {
		var sm AttemptSummary
		var completed, checked sql.NullInt64
		if err := rows.Scan(&sm.ID, &sm.QuestionSetID, &sm.UserID, &sm.AttemptNumber, &sm.StartedAt,
			&completed, &checked, &sm.Score, &sm.Percentage); err != nil {
			return nil, err
		}
		if completed.Valid {
			v := completed.Int64
			sm.CompletedAt = &v
			sm.IsCompleted = true
		}
		sm.IsChecked = checked.Valid
		out = append(out, sm)
	}
	return out, rows.Err()
}

func (s *SQLStore) FinishOverdue(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id FROM attempts a
		 JOIN question_sets qs ON qs.id = a.question_set_id
		 WHERE a.completed_at IS NULL AND qs.time_limit_sec > 0
		   AND a.started_at + qs.time_limit_sec <= $1`, now.Unix())
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		if _, err := s.FinishAttempt(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *SQLStore) appendEvent(ctx context.Context, typ, key, data string) {
	_ = s.events.Append(ctx, eventlog.Event{Type: typ, Key: key, DataJSON: data})
}
