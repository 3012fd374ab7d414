// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"codeberg.org/oliverandrich/intragate/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := database.Open(":memory:")

	require.NoError(t, err)
	require.NotNil(t, db)
	require.NoError(t, db.Close())
}

func TestOpen_MigrationsApplied(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var count int64
	err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='verification_events'")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOpen_FileDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "audit.db")

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	assert.FileExists(t, dbPath)

	var journalMode string
	require.NoError(t, db.Get(&journalMode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", journalMode)
}

func TestOpen_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpen_ModeMemory(t *testing.T) {
	db, err := database.Open("file::memory:?mode=memory")

	require.NoError(t, err)
	require.NotNil(t, db)
	_ = db.Close()
}

func TestPing(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	require.NoError(t, database.Ping(context.Background(), db))

	require.NoError(t, db.Close())
	assert.Error(t, database.Ping(context.Background(), db))
}

func TestMigrateDown(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	require.NoError(t, database.MigrateDown(db.DB))

	var count int64
	err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='verification_events'")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
