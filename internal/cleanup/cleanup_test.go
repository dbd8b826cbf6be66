package cleanup

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdant/internal/clock"
	"verdant/internal/database"
	"verdant/internal/settings"
)

var dbSeq atomic.Int64

func setup(t *testing.T, retentionDays int) (*Job, *database.DB) {
	t.Helper()
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:cleanup_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
		Mode: database.ModePoller,
		Name: "cleanup-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Bootstrap(context.Background()))

	store := settings.NewStore(db, nil, settings.Defaults{RetentionDays: retentionDays}, zerolog.Nop())
	return NewJob(db, store, zerolog.Nop()), db
}

func insertAt(t *testing.T, db *database.DB, age time.Duration) {
	t.Helper()
	at := clock.FormatRecording(clock.NowUTC().Add(-age))
	_, err := db.Exec("INSERT INTO reading (temperature, humidity, recording_time) VALUES (21, 50, ?)", at)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO pico_reading (plant_id, moisture, recording_time) VALUES (1, 45, ?)", at)
	require.NoError(t, err)
}

func count(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRunPrunesExpiredRows(t *testing.T) {
	job, db := setup(t, 7)
	insertAt(t, db, time.Hour)       // fresh
	insertAt(t, db, 6*24*time.Hour)  // inside the window
	insertAt(t, db, 8*24*time.Hour)  // expired
	insertAt(t, db, 30*24*time.Hour) // expired

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, count(t, db, "reading"))
	assert.Equal(t, 2, count(t, db, "pico_reading"))
}

func TestRunUsesSettingsRetention(t *testing.T) {
	job, db := setup(t, 7)
	store := settings.NewStore(db, nil, settings.Defaults{RetentionDays: 7}, zerolog.Nop())
	_, err := store.SetBatch(context.Background(), map[settings.Key]string{settings.KeyRetentionDays: "1"})
	require.NoError(t, err)

	insertAt(t, db, 2*24*time.Hour) // expired under the 1-day override

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, count(t, db, "reading"))
}

func TestRunEmptyDatabaseIsANoOp(t *testing.T) {
	job, _ := setup(t, 7)
	require.NoError(t, job.Run(context.Background()))
}
