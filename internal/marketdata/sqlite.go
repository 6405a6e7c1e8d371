package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/utils"
)

// SQLiteSource reads the daily_prices table of a history database
type SQLiteSource struct {
	db       *database.DB
	excluded map[string]bool
	log      zerolog.Logger
}

// NewSQLiteSource creates a history database source
func NewSQLiteSource(db *database.DB, excludedAssets []string, log zerolog.Logger) *SQLiteSource {
	return &SQLiteSource{
		db:       db,
		excluded: excludedSet(excludedAssets),
		log:      log.With().Str("component", "sqlite_source").Str("db", db.Name()).Logger(),
	}
}

// History returns every asset's closes ordered by date
func (s *SQLiteSource) History(ctx context.Context) (map[string]domain.PriceSeries, error) {
	defer utils.OperationTimer("load_sqlite_history", s.log)()

	query := `
		SELECT asset, date, close
		FROM daily_prices
		ORDER BY asset, date
	`

	rows, err := s.db.Conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]domain.Observation)
	for rows.Next() {
		var (
			asset    string
			dateUnix int64
			value    float64
		)
		if err := rows.Scan(&asset, &dateUnix, &value); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if s.excluded[asset] {
			continue
		}
		grouped[asset] = append(grouped[asset], domain.Observation{
			Date:  time.Unix(dateUnix, 0).UTC(),
			Value: value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	prices := make(map[string]domain.PriceSeries, len(grouped))
	for asset, obs := range grouped {
		prices[asset] = normalize(asset, obs)
	}

	s.log.Info().Int("assets", len(prices)).Msg("Loaded price history")
	return prices, nil
}
