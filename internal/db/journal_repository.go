package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JournalRow represents a row from write_journal.
type JournalRow struct {
	SessionID int32 // 0 when no session was known
	Feature   string
	Field     string
	Address   uint64
	Value     string
	WrittenAt time.Time
}

// JournalRepository stores write journal rows.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// InsertJournal bulk-inserts rows with COPY.
func (r *JournalRepository) InsertJournal(ctx context.Context, rows []JournalRow) error {
	if len(rows) == 0 {
		return nil
	}

	data := make([][]any, 0, len(rows))
	for _, row := range rows {
		var session any
		if row.SessionID != 0 {
			session = row.SessionID
		}
		// Addresses never exceed 47 bits, so BIGINT holds them.
		data = append(data, []any{session, row.Feature, row.Field, int64(row.Address), row.Value, row.WrittenAt})
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"write_journal"},
		[]string{"session_id", "feature", "field", "address", "value", "written_at"},
		pgx.CopyFromRows(data),
	)
	if err != nil {
		return fmt.Errorf("inserting %d journal rows: %w", len(rows), err)
	}
	return nil
}

// BySession returns the journal of one session in write order.
func (r *JournalRepository) BySession(ctx context.Context, sessionID int32) ([]JournalRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT COALESCE(session_id, 0), feature, field, address, value, written_at
		 FROM write_journal WHERE session_id = $1 ORDER BY written_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query write_journal: %w", err)
	}
	defer rows.Close()

	var result []JournalRow
	for rows.Next() {
		var (
			row  JournalRow
			addr int64
		)
		if err := rows.Scan(&row.SessionID, &row.Feature, &row.Field, &addr, &row.Value, &row.WrittenAt); err != nil {
			return nil, fmt.Errorf("scan write_journal: %w", err)
		}
		row.Address = uint64(addr)
		result = append(result, row)
	}
	return result, rows.Err()
}
