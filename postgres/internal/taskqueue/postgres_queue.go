package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreq "github.com/petrijr/stepwise/internal/taskqueue"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS submission_tasks (
//	    seq        BIGSERIAL PRIMARY KEY,
//	    job_id     TEXT NOT NULL,
//	    not_before BIGINT NOT NULL,
//	    payload    BYTEA NOT NULL
//	);
//
// The queue is FIFO by not_before, then insertion.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ coreq.Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS submission_tasks (
			seq        BIGSERIAL PRIMARY KEY,
			job_id     TEXT NOT NULL,
			not_before BIGINT NOT NULL,
			payload    BYTEA NOT NULL
		);
	`)
	return err
}

// Enqueue inserts a task into the queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, t coreq.Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = t.EnqueuedAt
	}
	data, err := coreq.EncodeTask(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO submission_tasks (job_id, not_before, payload)
		VALUES ($1, $2, $3)
	`, t.JobID, notBefore.UnixNano(), data)
	return err
}

// Dequeue blocks (with polling) until a due task is available or ctx is
// cancelled.
//
// Implementation notes:
//   - Uses SELECT ... FOR UPDATE SKIP LOCKED in a transaction to safely claim
//     a single row, then DELETEs it in the same transaction.
//   - If no rows are available, sleeps briefly and retries, checking ctx.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*coreq.Task, error) {
	// Use a reusable timer to avoid allocating a new timer on every idle poll.
	tmr := time.NewTimer(0)
	if !tmr.Stop() {
		select {
		case <-tmr.C:
		default:
		}
	}
	defer tmr.Stop()

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

		tmr.Reset(q.pollInterval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tmr.C:
		}
	}
}

func (q *PostgresQueue) claim(ctx context.Context, now time.Time) (*coreq.Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq     int64
		payload []byte
	)
	// Lock a single oldest due row, if any.
	err = tx.QueryRowContext(ctx, `
		SELECT seq, payload
		FROM submission_tasks
		WHERE not_before <= $1
		ORDER BY not_before, seq
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, now.UnixNano()).Scan(&seq, &payload)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM submission_tasks WHERE seq = $1`, seq); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task, err := coreq.DecodeTask(payload)
	if err != nil {
		return nil, fmt.Errorf("decode task %d failed: %w", seq, err)
	}
	return task, nil
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM submission_tasks`).Scan(&n); err != nil {
		slog.Warn("postgres_queue_len_failed", slog.String("error", err.Error()))
		return 0
	}
	return n
}
