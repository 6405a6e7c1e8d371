// Package sizing converts target weights into unit quantities and diffs holdings into orders.
package sizing

import (
	"fmt"
	"math"

	"github.com/aristath/rebalancer/internal/domain"
)

// Diff returns the signed quantity to trade per asset to move from current to
// target. Assets missing on either side count as zero and zero deltas are
// omitted. No rounding is applied: lot sizes and minimum notionals belong to the
// exchange connector.
func Diff(current, target domain.HoldingsMap) domain.OrderMap {
	orders := make(domain.OrderMap)
	for asset, units := range target {
		if delta := units - current[asset]; delta != 0 {
			orders[asset] = delta
		}
	}
	for asset, units := range current {
		if _, ok := target[asset]; ok {
			continue
		}
		if units != 0 {
			orders[asset] = -units
		}
	}
	return orders
}

// TargetUnits converts weights into quantities: units = weight × capital / price.
// Every weighted asset needs a positive finite price.
func TargetUnits(weights domain.WeightVector, capital float64, prices map[string]float64) (domain.HoldingsMap, error) {
	if math.IsNaN(capital) || math.IsInf(capital, 0) || capital < 0 {
		return nil, fmt.Errorf("%w: capital must be a non-negative number, got %g", domain.ErrInvalidArgument, capital)
	}

	targets := make(domain.HoldingsMap, len(weights))
	for _, asset := range weights.Assets() {
		w := weights[asset]
		if math.IsNaN(w) || w < 0 {
			return nil, fmt.Errorf("%w: invalid weight %g for %s", domain.ErrInvalidArgument, w, asset)
		}
		price, ok := prices[asset]
		if !ok {
			return nil, fmt.Errorf("%w: no price for %s", domain.ErrInvalidArgument, asset)
		}
		if !(price > 0) || math.IsInf(price, 0) {
			return nil, fmt.Errorf("%w: price for %s must be positive, got %g", domain.ErrInvalidArgument, asset, price)
		}
		targets[asset] = w * capital / price
	}
	return targets, nil
}

// MarketValue returns Σ units × price over the holdings. Zero positions need no price.
func MarketValue(holdings domain.HoldingsMap, prices map[string]float64) (float64, error) {
	total := 0.0
	for _, asset := range holdings.Assets() {
		units := holdings[asset]
		if units == 0 {
			continue
		}
		price, ok := prices[asset]
		if !ok || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
			return 0, fmt.Errorf("%w: no usable price for held asset %s", domain.ErrInvalidArgument, asset)
		}
		total += units * price
	}
	return total, nil
}
