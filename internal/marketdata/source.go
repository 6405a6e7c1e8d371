// Package marketdata loads daily price histories from files or a history database.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// Source provides the full price history of every tradable asset
type Source interface {
	History(ctx context.Context) (map[string]domain.PriceSeries, error)
}

// dateLayouts are tried in order when parsing a date cell
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.0000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", domain.ErrInvalidArgument, raw)
}

// normalize sorts observations by date and keeps the last value of a duplicated date
func normalize(asset string, obs []domain.Observation) domain.PriceSeries {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].Date.Before(obs[j].Date)
	})
	out := obs[:0]
	for _, o := range obs {
		if n := len(out); n > 0 && out[n-1].Date.Equal(o.Date) {
			out[n-1] = o
			continue
		}
		out = append(out, o)
	}
	return domain.PriceSeries{Asset: asset, Observations: out}
}

func excludedSet(assets []string) map[string]bool {
	set := make(map[string]bool, len(assets))
	for _, a := range assets {
		set[a] = true
	}
	return set
}
