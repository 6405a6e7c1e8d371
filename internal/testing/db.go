// Package testing provides testing utilities and helpers for the rebalancer project.
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
)

// NewHistoryDB creates a temporary file-backed price history database with the
// daily_prices schema applied. It returns the database, its path and a cleanup
// function that closes the connection and removes the file.
func NewHistoryDB(t *testing.T) (*database.DB, string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_history_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.ApplySchema(context.Background(), database.HistorySchema); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to apply history schema: %v", err)
	}

	return db, tmpPath, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	}
}

// InsertSeries writes every observation of the given series into daily_prices
func InsertSeries(t *testing.T, db *database.DB, series ...domain.PriceSeries) {
	t.Helper()

	err := database.WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO daily_prices (asset, date, close) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range series {
			for _, o := range s.Observations {
				if _, err := stmt.Exec(s.Asset, o.Date.Unix(), o.Value); err != nil {
					return fmt.Errorf("insert %s: %w", s.Asset, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to insert price series: %v", err)
	}
}
