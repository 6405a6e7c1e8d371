package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
)

// CheckHistoryDBJob verifies the integrity and freshness of the price history database
type CheckHistoryDBJob struct {
	log    zerolog.Logger
	db     *database.DB
	maxAge time.Duration
	now    func() time.Time
}

// NewCheckHistoryDBJob creates a new CheckHistoryDBJob. History whose newest
// close is older than maxAge is reported as stale; 0 disables the check.
func NewCheckHistoryDBJob(db *database.DB, maxAge time.Duration, log zerolog.Logger) *CheckHistoryDBJob {
	return &CheckHistoryDBJob{
		log:    log.With().Str("job", "check_history_db").Logger(),
		db:     db,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Name returns the job name
func (j *CheckHistoryDBJob) Name() string {
	return "check_history_db"
}

// Run executes the check
func (j *CheckHistoryDBJob) Run() error {
	if j.db == nil {
		j.log.Warn().Msg("History database not initialized, skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := checkIntegrity(ctx, j.db.Conn()); err != nil {
		// Corruption cannot be repaired from a read-only connection
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("History database integrity check failed")
		return fmt.Errorf("database %s is corrupted: %w", j.db.Name(), err)
	}

	latest, err := latestClose(ctx, j.db.Conn())
	if err != nil {
		return err
	}
	if latest.IsZero() {
		j.log.Warn().Msg("History database has no prices")
		return nil
	}

	age := j.now().Sub(latest)
	if j.maxAge > 0 && age > j.maxAge {
		j.log.Warn().
			Time("latest", latest).
			Dur("age", age).
			Msg("Price history is stale")
		return fmt.Errorf("%w: newest close %s", ErrStaleHistory, latest.Format("2006-01-02"))
	}

	j.log.Info().Time("latest", latest).Msg("History database check passed")
	return nil
}

// checkIntegrity runs SQLite's PRAGMA integrity_check
func checkIntegrity(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

func latestClose(ctx context.Context, db *sql.DB) (time.Time, error) {
	var latest sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(date) FROM daily_prices").Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest close: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return time.Unix(latest.Int64, 0).UTC(), nil
}
