package optimization

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/rebalancer/internal/domain"
)

// AlignReturns builds the simple return matrix of a set of price histories.
//
// Dates are the union of all observation dates. A return v[t]/v[t-1] - 1 is
// taken against the previous date of the union, so an asset missing on either
// date yields an undefined return for that row. Missing values are never filled:
// every row holding an undefined return is dropped. Assets are ordered
// lexicographically.
func AlignReturns(prices map[string]domain.PriceSeries) (domain.ReturnMatrix, error) {
	assets := make([]string, 0, len(prices))
	for asset := range prices {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	matrix := domain.ReturnMatrix{Assets: assets}
	if len(assets) == 0 {
		return matrix, nil
	}

	// Dates are keyed by Unix seconds so equal instants in different locations collapse
	dateIndex := make(map[int64]time.Time)
	lookup := make([]map[int64]float64, len(assets))
	for j, asset := range assets {
		series := prices[asset]
		if err := series.Validate(); err != nil {
			return domain.ReturnMatrix{}, err
		}
		lookup[j] = make(map[int64]float64, series.Len())
		for _, o := range series.Observations {
			key := o.Date.Unix()
			lookup[j][key] = o.Value
			if _, ok := dateIndex[key]; !ok {
				dateIndex[key] = o.Date
			}
		}
	}

	keys := make([]int64, 0, len(dateIndex))
	for k := range dateIndex {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

	for t := 1; t < len(keys); t++ {
		row := make([]float64, len(assets))
		complete := true
		for j := range assets {
			r := simpleReturn(lookup[j], keys[t-1], keys[t])
			if math.IsNaN(r) || math.IsInf(r, 0) {
				complete = false
				break
			}
			row[j] = r
		}
		if !complete {
			continue
		}
		matrix.Dates = append(matrix.Dates, dateIndex[keys[t]])
		matrix.Rows = append(matrix.Rows, row)
	}

	return matrix, nil
}

func simpleReturn(values map[int64]float64, prev, cur int64) float64 {
	p, ok := values[prev]
	if !ok {
		return math.NaN()
	}
	c, ok := values[cur]
	if !ok {
		return math.NaN()
	}
	return c/p - 1
}

// returnsToDense copies the aligned rows into a dense matrix for the estimators
func returnsToDense(m domain.ReturnMatrix) (*mat.Dense, error) {
	rows, cols := len(m.Rows), len(m.Assets)
	if rows == 0 {
		return nil, fmt.Errorf("%w: no date with a defined return for every asset", domain.ErrOptimizationFailed)
	}
	data := make([]float64, 0, rows*cols)
	for _, row := range m.Rows {
		data = append(data, row...)
	}
	return mat.NewDense(rows, cols, data), nil
}
