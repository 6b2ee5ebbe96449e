package db

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/udisondev/memsync/internal/feature"
)

// JournalStore persists journal rows. *JournalRepository implements it.
type JournalStore interface {
	InsertJournal(ctx context.Context, rows []JournalRow) error
}

// Journal defaults.
const (
	DefaultJournalBuffer = 1024
	DefaultJournalBatch  = 128
	DefaultFlushInterval = time.Second
	flushTimeout         = 5 * time.Second
)

// WriteJournal records foreign writes asynchronously. Record never blocks
// the effector tick: when the buffer is full the record is dropped and counted.
type WriteJournal struct {
	store    JournalStore
	batch    int
	interval time.Duration
	ch       chan JournalRow

	session atomic.Int32
	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

var _ feature.Journal = (*WriteJournal)(nil)

// NewWriteJournal creates a journal. Non-positive sizes use the defaults.
func NewWriteJournal(store JournalStore, buffer, batch int, interval time.Duration) *WriteJournal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	if batch <= 0 {
		batch = DefaultJournalBatch
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &WriteJournal{
		store:    store,
		batch:    batch,
		interval: interval,
		ch:       make(chan JournalRow, buffer),
	}
}

// SetSession tags subsequent records with a session id.
func (j *WriteJournal) SetSession(id int32) {
	j.session.Store(id)
}

// Record implements feature.Journal.
func (j *WriteJournal) Record(rec feature.WriteRecord) {
	row := JournalRow{
		SessionID: j.session.Load(),
		Feature:   rec.Feature,
		Field:     rec.Field,
		Address:   uint64(rec.Addr),
		Value:     rec.Value,
		WrittenAt: rec.At,
	}
	select {
	case j.ch <- row:
	default:
		j.dropped.Add(1)
	}
}

// Stats returns rows persisted, dropped on a full buffer, and lost to store failures.
func (j *WriteJournal) Stats() (written, dropped, failed int64) {
	return j.written.Load(), j.dropped.Load(), j.failed.Load()
}

// Run flushes batches until ctx is canceled, then flushes what is buffered.
func (j *WriteJournal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	pending := make([]JournalRow, 0, j.batch)
	for {
		select {
		case <-ctx.Done():
			pending = j.drain(pending)
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			j.flush(flushCtx, pending)
			cancel()
			written, dropped, failed := j.Stats()
			slog.Info("write journal stopped", "written", written, "dropped", dropped, "failed", failed)
			return ctx.Err()

		case row := <-j.ch:
			pending = append(pending, row)
			if len(pending) >= j.batch {
				j.flush(ctx, pending)
				pending = pending[:0]
			}

		case <-ticker.C:
			if len(pending) > 0 {
				j.flush(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

func (j *WriteJournal) drain(pending []JournalRow) []JournalRow {
	for {
		select {
		case row := <-j.ch:
			pending = append(pending, row)
		default:
			return pending
		}
	}
}

func (j *WriteJournal) flush(ctx context.Context, rows []JournalRow) {
	if len(rows) == 0 {
		return
	}
	if err := j.store.InsertJournal(ctx, rows); err != nil {
		j.failed.Add(int64(len(rows)))
		slog.Warn("write journal flush failed", "rows", len(rows), "error", err)
		return
	}
	j.written.Add(int64(len(rows)))
}
