package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petrijr/stepwise/pkg/api"
)

// SQLiteJobStore is a JobStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteJobStore struct {
	db *sql.DB
}

// Ensure SQLiteJobStore implements JobStore.
var _ JobStore = (*SQLiteJobStore)(nil)

// NewSQLiteJobStore initializes the required schema in the given
// database and returns a new SQLiteJobStore.
func NewSQLiteJobStore(db *sql.DB) (*SQLiteJobStore, error) {
	s := &SQLiteJobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteJobStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS submission_jobs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			flow TEXT NOT NULL,
			payload BLOB,
			calls BLOB,
			result_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_submission_jobs_created ON submission_jobs(created_at, id);
	`)
	return err
}

func encodeJob(job *api.SubmissionJob) (payload, calls []byte, err error) {
	if payload, err = EncodeValue(job.Payload); err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	if calls, err = EncodeValue(job.Calls); err != nil {
		return nil, nil, fmt.Errorf("encode calls: %w", err)
	}
	return payload, calls, nil
}

func (s *SQLiteJobStore) SaveJob(ctx context.Context, job *api.SubmissionJob) error {
	payload, calls, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submission_jobs (id, session_id, flow, payload, calls, result_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.SessionID,
		job.Flow,
		payload,
		calls,
		job.ResultID,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: submission_jobs.session_id") {
		return ErrDuplicateSession
	}
	return err
}

func (s *SQLiteJobStore) UpdateJob(ctx context.Context, job *api.SubmissionJob) error {
	payload, calls, err := encodeJob(job)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submission_jobs
		SET flow = ?, payload = ?, calls = ?, result_id = ?, updated_at = ?
		WHERE id = ?`,
		job.Flow,
		payload,
		calls,
		job.ResultID,
		job.UpdatedAt.UnixNano(),
		job.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

const jobColumns = `id, session_id, flow, payload, calls, result_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*api.SubmissionJob, error) {
	var (
		job              api.SubmissionJob
		payload, calls   []byte
		created, updated int64
	)
	if err := row.Scan(&job.ID, &job.SessionID, &job.Flow, &payload, &calls, &job.ResultID, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	p, err := DecodeValue[api.SubmissionPayload](payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	c, err := DecodeValue[[]api.CallResult](calls)
	if err != nil {
		return nil, fmt.Errorf("decode calls of job %s: %w", job.ID, err)
	}

	job.Payload = p
	job.Calls = c
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	return &job, nil
}

func (s *SQLiteJobStore) GetJob(ctx context.Context, id string) (*api.SubmissionJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM submission_jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteJobStore) GetJobBySession(ctx context.Context, sessionID string) (*api.SubmissionJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM submission_jobs WHERE session_id = ?`, sessionID)
	return scanJob(row)
}

func (s *SQLiteJobStore) ListJobs(ctx context.Context, filter JobFilter) ([]*api.SubmissionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM submission_jobs`
	var args []any
	var clauses []string

	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Flow != "" {
		clauses = append(clauses, "flow = ?")
		args = append(args, filter.Flow)
	}
	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*api.SubmissionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}
