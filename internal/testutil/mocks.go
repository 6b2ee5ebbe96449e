package testutil

import (
	"context"
	"sync"

	"github.com/udisondev/memsync/internal/db"
)

// MockJournalStore is an in-memory db.JournalStore for unit tests.
// It does not need a real PostgreSQL.
type MockJournalStore struct {
	mu      sync.Mutex
	rows    []db.JournalRow
	batches int
	fail    error
}

// NewMockJournalStore creates an empty MockJournalStore.
func NewMockJournalStore() *MockJournalStore {
	return &MockJournalStore{}
}

// FailWith makes subsequent inserts return err (nil restores success).
func (m *MockJournalStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// InsertJournal implements db.JournalStore.
func (m *MockJournalStore) InsertJournal(ctx context.Context, rows []db.JournalRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rows = append(m.rows, rows...)
	m.batches++
	return nil
}

// Rows returns a copy of everything inserted.
func (m *MockJournalStore) Rows() []db.JournalRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.JournalRow(nil), m.rows...)
}

// Batches returns how many successful inserts happened.
func (m *MockJournalStore) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}
