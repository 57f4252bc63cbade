// Package eventlog records attempt lifecycle events for auditing. Appends are
// best-effort: a failed append never fails the triggering operation.
package eventlog

import (
	"context"
	"database/sql"
	"time"
)

const (
	TypeAttemptStarted  = "AttemptStarted"
	TypeAnswerSubmitted = "AnswerSubmitted"
	TypeAttemptFinished = "AttemptFinished"
	TypeAttemptChecked  = "AttemptChecked"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string // natural key: attempt id
	DataJSON  string
	CreatedAt int64
}

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

// Recent returns the newest events for one key, newest first.
func (r *Repo) Recent(ctx context.Context, key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT "offset", typ, key, data, created_at FROM event_log
		 WHERE key=$1 ORDER BY "offset" DESC LIMIT $2`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Offset, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
