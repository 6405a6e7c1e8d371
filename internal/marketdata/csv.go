package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/utils"
)

// CSVConfig describes a directory of per-asset CSV files named
// <Prefix><ASSET><Suffix>.csv
type CSVConfig struct {
	Dir            string
	Prefix         string
	Suffix         string
	Column         string
	ExcludedAssets []string
}

// DefaultCSVConfig returns the layout of Coinbase spot exports
func DefaultCSVConfig(dir string) CSVConfig {
	return CSVConfig{
		Dir:    dir,
		Prefix: "COINBASE_SPOT_",
		Suffix: "_USD",
		Column: "close",
	}
}

// CSVSource reads one CSV file per asset. Each file has a header row with a
// "date" column and the configured value column; other columns are ignored.
type CSVSource struct {
	cfg      CSVConfig
	excluded map[string]bool
	log      zerolog.Logger
}

// NewCSVSource creates a CSV directory source
func NewCSVSource(cfg CSVConfig, log zerolog.Logger) *CSVSource {
	if cfg.Column == "" {
		cfg.Column = "close"
	}
	return &CSVSource{
		cfg:      cfg,
		excluded: excludedSet(cfg.ExcludedAssets),
		log:      log.With().Str("component", "csv_source").Str("dir", cfg.Dir).Logger(),
	}
}

// AssetFromFilename extracts the asset symbol, or "" when the name does not match.
// Only the exact suffix is stripped so "BTC_USD_5C85E9" stays distinct from "BTC".
func (s *CSVSource) AssetFromFilename(name string) string {
	if !strings.HasSuffix(name, ".csv") || !strings.HasPrefix(name, s.cfg.Prefix) {
		return ""
	}
	stem := strings.TrimSuffix(name, ".csv")
	stem = strings.TrimPrefix(stem, s.cfg.Prefix)
	stem = strings.TrimSuffix(stem, s.cfg.Suffix)
	return stem
}

// History reads every matching file in the directory
func (s *CSVSource) History(ctx context.Context) (map[string]domain.PriceSeries, error) {
	defer utils.OperationTimer("load_csv_history", s.log)()

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list price directory: %w", err)
	}

	prices := make(map[string]domain.PriceSeries)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		asset := s.AssetFromFilename(entry.Name())
		if asset == "" || s.excluded[asset] {
			continue
		}

		series, err := s.readFile(filepath.Join(s.cfg.Dir, entry.Name()), asset)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		if series.Len() == 0 {
			s.log.Debug().Str("asset", asset).Msg("Skipping empty price file")
			continue
		}
		prices[asset] = series
	}

	s.log.Info().Int("assets", len(prices)).Msg("Loaded price history")
	return prices, nil
}

func (s *CSVSource) readFile(path, asset string) (domain.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return domain.PriceSeries{Asset: asset}, nil
	}
	if err != nil {
		return domain.PriceSeries{}, err
	}

	dateIdx, valueIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date":
			dateIdx = i
		case strings.ToLower(s.cfg.Column):
			valueIdx = i
		}
	}
	if dateIdx < 0 || valueIdx < 0 {
		return domain.PriceSeries{}, fmt.Errorf("%w: header must contain date and %s columns", domain.ErrInvalidArgument, s.cfg.Column)
	}

	var obs []domain.Observation
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.PriceSeries{}, err
		}
		if dateIdx >= len(record) || valueIdx >= len(record) {
			return domain.PriceSeries{}, fmt.Errorf("%w: line %d is too short", domain.ErrInvalidArgument, line)
		}

		raw := strings.TrimSpace(record[valueIdx])
		if raw == "" {
			// a missing value is a missing day
			continue
		}
		date, err := parseDate(strings.TrimSpace(record[dateIdx]))
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("line %d: %w", line, err)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("%w: line %d: invalid %s %q", domain.ErrInvalidArgument, line, s.cfg.Column, raw)
		}
		obs = append(obs, domain.Observation{Date: date, Value: value})
	}

	return normalize(asset, obs), nil
}
