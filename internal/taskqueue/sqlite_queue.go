package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteQueue is a durable Queue backed by SQLite. Tasks survive process
// restarts, so submission jobs confirmed before a crash still run. Ordering
// is FIFO by not_before, then insertion.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the submission_tasks table in db.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS submission_tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			job_id TEXT NOT NULL,
			not_before INTEGER NOT NULL,
			body BLOB NOT NULL
		);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}

	body, err := EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO submission_tasks (type, job_id, not_before, body)
		VALUES (?, ?, ?, ?)`,
		string(t.Type), t.JobID, notBefore.UnixNano(), body,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.claim(ctx, time.Now())
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		// Nothing available: sleep a bit and retry.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claim removes and returns the oldest eligible task in one transaction.
func (q *SQLiteQueue) claim(ctx context.Context, now time.Time) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq  int64
		body []byte
	)
	row := tx.QueryRowContext(ctx, `
		SELECT seq, body
		FROM submission_tasks
		WHERE not_before <= ?
		ORDER BY not_before, seq
		LIMIT 1`, now.UnixNano())
	if err := row.Scan(&seq, &body); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM submission_tasks WHERE seq = ?`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task, err := DecodeTask(body)
	if err != nil {
		return nil, fmt.Errorf("decode task %d: %w", seq, err)
	}
	return task, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM submission_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
