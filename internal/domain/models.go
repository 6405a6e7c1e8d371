// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Observation is a single dated value of a price series
type Observation struct {
	Date  time.Time `json:"date" yaml:"date" msgpack:"date"`
	Value float64   `json:"value" yaml:"value" msgpack:"value"`
}

// PriceSeries is the ordered history of one asset.
// Observations are ascending by date with no duplicates. Missing trading days are
// absent entries, never zeros.
type PriceSeries struct {
	Asset        string        `json:"asset" yaml:"asset" msgpack:"asset"`
	Observations []Observation `json:"observations" yaml:"observations" msgpack:"observations"`
}

// NewPriceSeries builds a series from parallel date/value slices
func NewPriceSeries(asset string, dates []time.Time, values []float64) (PriceSeries, error) {
	if len(dates) != len(values) {
		return PriceSeries{}, fmt.Errorf("%w: %d dates but %d values for %s", ErrInvalidArgument, len(dates), len(values), asset)
	}
	obs := make([]Observation, len(dates))
	for i := range dates {
		obs[i] = Observation{Date: dates[i], Value: values[i]}
	}
	return PriceSeries{Asset: asset, Observations: obs}, nil
}

// Len returns the number of observations
func (s PriceSeries) Len() int {
	return len(s.Observations)
}

// First returns the first observation. The series must not be empty.
func (s PriceSeries) First() Observation {
	return s.Observations[0]
}

// Last returns the last observation. The series must not be empty.
func (s PriceSeries) Last() Observation {
	return s.Observations[len(s.Observations)-1]
}

// Validate checks that dates are strictly ascending.
// Duplicate or out-of-order dates are a caller error.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s.Observations); i++ {
		prev, cur := s.Observations[i-1].Date, s.Observations[i].Date
		if cur.Equal(prev) {
			return fmt.Errorf("%w: duplicate date %s in series %s", ErrInvalidArgument, cur.Format("2006-01-02"), s.Asset)
		}
		if cur.Before(prev) {
			return fmt.Errorf("%w: series %s is not chronological at %s", ErrInvalidArgument, s.Asset, cur.Format("2006-01-02"))
		}
	}
	return nil
}

// DropNaN returns a copy without NaN or infinite values
func (s PriceSeries) DropNaN() PriceSeries {
	out := PriceSeries{Asset: s.Asset, Observations: make([]Observation, 0, len(s.Observations))}
	for _, o := range s.Observations {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		out.Observations = append(out.Observations, o)
	}
	return out
}

// Until returns the prefix of the series dated on or before t
func (s PriceSeries) Until(t time.Time) PriceSeries {
	idx := sort.Search(len(s.Observations), func(i int) bool {
		return s.Observations[i].Date.After(t)
	})
	return PriceSeries{Asset: s.Asset, Observations: s.Observations[:idx]}
}

// Since returns the suffix of the series dated on or after t
func (s PriceSeries) Since(t time.Time) PriceSeries {
	idx := sort.Search(len(s.Observations), func(i int) bool {
		return !s.Observations[i].Date.Before(t)
	})
	return PriceSeries{Asset: s.Asset, Observations: s.Observations[idx:]}
}

// ValueAt returns the last value dated on or before t
func (s PriceSeries) ValueAt(t time.Time) (float64, bool) {
	prefix := s.Until(t)
	for i := prefix.Len() - 1; i >= 0; i-- {
		v := prefix.Observations[i].Value
		if !math.IsNaN(v) {
			return v, true
		}
	}
	return 0, false
}

// ReturnMatrix holds simple period returns aligned on a common set of dates.
// Rows[t][j] is the return of Assets[j] at Dates[t]. No cell is NaN.
type ReturnMatrix struct {
	Assets []string    `json:"assets"`
	Dates  []time.Time `json:"dates"`
	Rows   [][]float64 `json:"rows"`
}

// Observations returns the number of aligned rows
func (m ReturnMatrix) Observations() int {
	return len(m.Rows)
}

// SignalResult is the trend estimate for one asset on one evaluation date
type SignalResult struct {
	AsOf         time.Time `json:"as_of" msgpack:"as_of" yaml:"as_of"`
	Slope        float64   `json:"slope" msgpack:"slope" yaml:"slope"`
	Intercept    float64   `json:"intercept" msgpack:"intercept" yaml:"intercept"`
	RSquared     float64   `json:"r_squared" msgpack:"r_squared" yaml:"r_squared"`
	CAGR         float64   `json:"cagr" msgpack:"cagr" yaml:"cagr"`
	CAGRDefined  bool      `json:"cagr_defined" msgpack:"cagr_defined" yaml:"cagr_defined"`
	Observations int       `json:"observations" msgpack:"observations" yaml:"observations"`
}

// WeightVector maps asset to a non-negative target weight.
// A non-empty vector sums to 1 within numerical tolerance.
type WeightVector map[string]float64

// Sum returns the total weight
func (w WeightVector) Sum() float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum
}

// Assets returns the weighted assets in lexicographic order
func (w WeightVector) Assets() []string {
	return sortedKeys(w)
}

// HoldingsMap maps asset to a signed quantity in units of the asset
type HoldingsMap map[string]float64

// Assets returns the held assets in lexicographic order
func (h HoldingsMap) Assets() []string {
	return sortedKeys(h)
}

// Clone returns an independent copy
func (h HoldingsMap) Clone() HoldingsMap {
	out := make(HoldingsMap, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// OrderMap maps asset to the non-zero signed quantity to trade.
// Positive buys, negative sells.
type OrderMap map[string]float64

// Assets returns the traded assets in lexicographic order
func (o OrderMap) Assets() []string {
	return sortedKeys(o)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
