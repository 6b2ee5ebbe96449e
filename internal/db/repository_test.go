package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/memsync/internal/db"
	"github.com/udisondev/memsync/internal/testutil"
)

func TestSessionRepository_Touch(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := db.NewSessionRepository(pool)
	ctx := context.Background()

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)

	first := time.Now().Add(-time.Hour).UTC().Truncate(time.Microsecond)
	later := first.Add(30 * time.Minute)
	require.NoError(t, repo.Touch(ctx, 7, first))
	require.NoError(t, repo.Touch(ctx, 7, later))
	require.NoError(t, repo.Touch(ctx, 9, later.Add(time.Minute)))

	got, err = repo.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.FirstSeen.Equal(first))
	assert.True(t, got.LastSeen.Equal(later))
	assert.Equal(t, int32(2), got.Boundaries)

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int32(9), recent[0].ID)
}

func TestJournalRepository_InsertAndQuery(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := db.NewJournalRepository(pool)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Microsecond)
	rows := []db.JournalRow{
		{SessionID: 7, Feature: "suppression", Field: "breath_intensity", Address: 0x7FF600001030, Value: "0.300", WrittenAt: at},
		{SessionID: 7, Feature: "suppression", Field: "animation_mask", Address: 0x7FF600000030, Value: "0x10", WrittenAt: at.Add(time.Millisecond)},
		{Feature: "suppression", Field: "recoil_factors", Address: 0x7FF600003094, Value: "(0.000, 0.000, 0.000)", WrittenAt: at},
	}
	require.NoError(t, repo.InsertJournal(ctx, rows))
	require.NoError(t, repo.InsertJournal(ctx, nil))

	got, err := repo.BySession(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "breath_intensity", got[0].Field)
	assert.Equal(t, uint64(0x7FF600001030), got[0].Address)
	assert.Equal(t, "0x10", got[1].Value)
}

func TestWriteJournal_Postgres(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := db.NewJournalRepository(pool)
	j := db.NewWriteJournal(repo, 16, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	j.SetSession(11)
	j.Record(record("breath_intensity", 0x1030))
	j.Record(record("recoil_factors", 0x2094))
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	got, err := repo.BySession(context.Background(), 11)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
