package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	require.NoError(t, s.Set(ctx, "k", []byte("v2")))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, s.Remove(ctx, "k"))
	has, _ = s.Has(ctx, "k")
	require.False(t, has)
}

func TestSQLiteSchemaVersionStamped(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = NewSQLiteStore(db)
	require.NoError(t, err)

	var stored string
	err = db.QueryRow(`SELECT value FROM meta WHERE name = 'schema_version'`).Scan(&stored)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, stored)

	// Reopening against the stamped database succeeds.
	_, err = NewSQLiteStore(db)
	require.NoError(t, err)
}

func TestSQLiteRejectsIncompatibleSchema(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = NewSQLiteStore(db)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE meta SET value = '2.0.0' WHERE name = 'schema_version'`)
	require.NoError(t, err)

	_, err = NewSQLiteStore(db)
	require.Error(t, err)
	require.Contains(t, err.Error(), "incompatible store schema")
}

func TestSQLiteAllocator(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	a := NewAllocator(s)

	for want := uint64(1); want <= 5; want++ {
		id, err := a.Next(ctx, contracts.KindEscrow)
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
}
