package postgres

import (
	"database/sql"

	"github.com/petrijr/stepwise"

	pqueue "github.com/petrijr/stepwise/postgres/internal/taskqueue"
)

// NewQueue returns a durable PostgreSQL-backed task queue.
func NewQueue(db *sql.DB) (stepwise.Queue, error) {
	return pqueue.NewPostgresQueue(db)
}
