package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRow represents a row from sessions.
type SessionRow struct {
	ID         int32
	FirstSeen  time.Time
	LastSeen   time.Time
	Boundaries int32 // how many times the session was entered
}

// SessionRepository records session boundaries. A session id survives
// reconnects, so re-entering a known session updates the existing row.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Touch inserts the session or bumps last_seen and the boundary count.
func (r *SessionRepository) Touch(ctx context.Context, id int32, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, first_seen, last_seen, boundaries)
		 VALUES ($1, $2, $2, 1)
		 ON CONFLICT (id) DO UPDATE SET
		   last_seen  = EXCLUDED.last_seen,
		   boundaries = sessions.boundaries + 1`,
		id, at)
	if err != nil {
		return fmt.Errorf("touching session %d: %w", id, err)
	}
	return nil
}

// Get returns the session row, or nil, nil if the session is unknown.
func (r *SessionRepository) Get(ctx context.Context, id int32) (*SessionRow, error) {
	var row SessionRow
	err := r.pool.QueryRow(ctx,
		`SELECT id, first_seen, last_seen, boundaries FROM sessions WHERE id = $1`, id,
	).Scan(&row.ID, &row.FirstSeen, &row.LastSeen, &row.Boundaries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying session %d: %w", id, err)
	}
	return &row, nil
}

// Recent returns up to limit sessions, most recently seen first.
func (r *SessionRepository) Recent(ctx context.Context, limit int) ([]SessionRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, first_seen, last_seen, boundaries FROM sessions
		 ORDER BY last_seen DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var result []SessionRow
	for rows.Next() {
		var row SessionRow
		if err := rows.Scan(&row.ID, &row.FirstSeen, &row.LastSeen, &row.Boundaries); err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
