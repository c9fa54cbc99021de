package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	corep "github.com/petrijr/stepwise/internal/persistence"
	"github.com/petrijr/stepwise/pkg/api"
)

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// PostgresJobStore is a JobStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresJobStore struct {
	db *sql.DB
}

// Ensure PostgresJobStore implements JobStore.
var _ corep.JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore initializes the required schema in the given
// database and returns a new PostgresJobStore.
func NewPostgresJobStore(db *sql.DB) (*PostgresJobStore, error) {
	s := &PostgresJobStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresJobStore) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS submission_jobs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			flow TEXT NOT NULL,
			payload BYTEA,
			calls BYTEA,
			result_id TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_submission_jobs_created ON submission_jobs(created_at, id);
	`)
	return err
}

func encodeJob(job *api.SubmissionJob) (payload, calls []byte, err error) {
	if payload, err = corep.EncodeValue(job.Payload); err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	if calls, err = corep.EncodeValue(job.Calls); err != nil {
		return nil, nil, fmt.Errorf("encode calls: %w", err)
	}
	return payload, calls, nil
}

func (p *PostgresJobStore) SaveJob(ctx context.Context, job *api.SubmissionJob) error {
	payload, calls, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO submission_jobs (id, session_id, flow, payload, calls, result_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		job.ID,
		job.SessionID,
		job.Flow,
		payload,
		calls,
		job.ResultID,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "submission_jobs_session_id_key" {
		return corep.ErrDuplicateSession
	}
	return err
}

func (p *PostgresJobStore) UpdateJob(ctx context.Context, job *api.SubmissionJob) error {
	payload, calls, err := encodeJob(job)
	if err != nil {
		return err
	}

	res, err := p.db.ExecContext(ctx, `
		UPDATE submission_jobs
		SET flow       = $1,
		    payload    = $2,
		    calls      = $3,
		    result_id  = $4,
		    updated_at = $5
		WHERE id = $6
	`,
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
		return corep.ErrJobNotFound
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
			return nil, corep.ErrJobNotFound
		}
		return nil, err
	}

	pl, err := corep.DecodeValue[api.SubmissionPayload](payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	cs, err := corep.DecodeValue[[]api.CallResult](calls)
	if err != nil {
		return nil, fmt.Errorf("decode calls of job %s: %w", job.ID, err)
	}

	job.Payload = pl
	job.Calls = cs
	job.CreatedAt = time.Unix(0, created).UTC()
	job.UpdatedAt = time.Unix(0, updated).UTC()
	return &job, nil
}

func (p *PostgresJobStore) GetJob(ctx context.Context, id string) (*api.SubmissionJob, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM submission_jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (p *PostgresJobStore) GetJobBySession(ctx context.Context, sessionID string) (*api.SubmissionJob, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM submission_jobs WHERE session_id = $1`, sessionID)
	return scanJob(row)
}

func (p *PostgresJobStore) ListJobs(ctx context.Context, filter corep.JobFilter) ([]*api.SubmissionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM submission_jobs`
	var (
		args    []any
		clauses []string
	)
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		clauses = append(clauses, "session_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Flow != "" {
		args = append(args, filter.Flow)
		clauses = append(clauses, "flow = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := p.db.QueryContext(ctx, query, args...)
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

// PostgresKVStore stores opaque values in the kv table.
type PostgresKVStore struct {
	db *sql.DB
}

var _ corep.KVStore = (*PostgresKVStore)(nil)

func NewPostgresKVStore(db *sql.DB) (*PostgresKVStore, error) {
	s := &PostgresKVStore{db: db}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BYTEA,
			updated_at BIGINT NOT NULL
		);
	`); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, corep.ErrKeyNotFound
	}
	return v, err
}

func (p *PostgresKVStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value, time.Now().UnixNano())
	return err
}
