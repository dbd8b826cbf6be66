// Package cleanup prunes readings older than the retention window and
// reclaims the freed pages.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"verdant/internal/clock"
	"verdant/internal/database"
	"verdant/internal/settings"
)

// Job deletes expired rows from both reading tables. Retention comes
// from the settings store at run time, so admin changes apply to the
// next run without a restart.
type Job struct {
	db    *database.DB
	store *settings.Store
	log   zerolog.Logger
}

// NewJob creates a cleanup job.
func NewJob(db *database.DB, store *settings.Store, log zerolog.Logger) *Job {
	return &Job{
		db:    db,
		store: store,
		log:   log.With().Str("component", "cleanup").Logger(),
	}
}

// Name identifies the job in scheduler logs.
func (j *Job) Name() string { return "retention-cleanup" }

// Run performs one cleanup pass. A database file that does not exist yet
// is a silent no-op: cleanup may be scheduled before any reader has
// produced data.
func (j *Job) Run(ctx context.Context) error {
	if path := j.db.Path(); !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			j.log.Debug().Str("path", path).Msg("Database file absent, nothing to clean")
			return nil
		}
	}

	days, err := j.store.RetentionDays(ctx)
	if err != nil {
		return fmt.Errorf("failed to read retention setting: %w", err)
	}
	cutoff := clock.FormatRecording(clock.NowUTC().Add(-time.Duration(days) * 24 * time.Hour))

	deleted := int64(0)
	for _, table := range []string{"reading", "pico_reading"} {
		res, err := j.db.ExecContext(ctx,
			// Table names cannot be bound parameters; both values here
			// are compile-time constants.
			fmt.Sprintf("DELETE FROM %s WHERE recording_time < ?", table), cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += n
		}
	}

	if err := j.db.Pragma("incremental_vacuum"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}

	j.log.Info().Int64("rows", deleted).Int("retention_days", days).Msg("Cleanup pass finished")
	return nil
}
