package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path: fmt.Sprintf("file:database_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
		Mode: ModePoller,
		Name: "database-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Bootstrap(context.Background()))
	return db
}

func TestAccessAfterCloseReturnsErrClosed(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := db.Exec("SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = db.QueryContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)

	var n int
	assert.ErrorIs(t, db.QueryRow("SELECT 1").Scan(&n), ErrClosed)
	assert.ErrorIs(t, db.QueryRowContext(ctx, "SELECT 1").Scan(&n), ErrClosed)

	assert.ErrorIs(t, db.WithTransaction(ctx, func(tx *sql.Tx) error { return nil }), ErrClosed)
	assert.ErrorIs(t, db.HealthCheck(ctx), ErrClosed)
}

func TestQueryRowScansBeforeClose(t *testing.T) {
	db := testDB(t)
	var n int
	require.NoError(t, db.QueryRow("SELECT 41 + 1").Scan(&n))
	assert.Equal(t, 42, n)
}
