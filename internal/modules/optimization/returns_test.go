package optimization

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func series(asset string, offsets []int, values []float64) domain.PriceSeries {
	dates := make([]time.Time, len(offsets))
	for i, d := range offsets {
		dates[i] = day0.AddDate(0, 0, d)
	}
	s, err := domain.NewPriceSeries(asset, dates, values)
	if err != nil {
		panic(err)
	}
	return s
}

func TestAlignReturns_Empty(t *testing.T) {
	m, err := AlignReturns(map[string]domain.PriceSeries{})
	require.NoError(t, err)
	assert.Empty(t, m.Assets)
	assert.Zero(t, m.Observations())
}

func TestAlignReturns_SortsAssetsAndComputesSimpleReturns(t *testing.T) {
	prices := map[string]domain.PriceSeries{
		"ETH": series("ETH", []int{0, 1, 2}, []float64{10, 12, 9}),
		"BTC": series("BTC", []int{0, 1, 2}, []float64{100, 110, 99}),
	}

	m, err := AlignReturns(prices)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "ETH"}, m.Assets)
	require.Equal(t, 2, m.Observations())
	assert.True(t, m.Dates[0].Equal(day0.AddDate(0, 0, 1)))

	assert.InDelta(t, 0.10, m.Rows[0][0], 1e-12)
	assert.InDelta(t, 0.20, m.Rows[0][1], 1e-12)
	assert.InDelta(t, -0.10, m.Rows[1][0], 1e-12)
	assert.InDelta(t, -0.25, m.Rows[1][1], 1e-12)
}

func TestAlignReturns_GapsDropRowsWithoutFilling(t *testing.T) {
	prices := map[string]domain.PriceSeries{
		"A": series("A", []int{0, 1, 2, 3}, []float64{100, 110, 121, 133.1}),
		// missing day 1: returns on day 1 and day 2 are undefined
		"B": series("B", []int{0, 2, 3}, []float64{50, 55, 60.5}),
	}

	m, err := AlignReturns(prices)
	require.NoError(t, err)
	require.Equal(t, 1, m.Observations())
	assert.True(t, m.Dates[0].Equal(day0.AddDate(0, 0, 3)))
	assert.InDelta(t, 0.1, m.Rows[0][0], 1e-12)
	assert.InDelta(t, 0.1, m.Rows[0][1], 1e-12)
}

func TestAlignReturns_NonChronological(t *testing.T) {
	prices := map[string]domain.PriceSeries{
		"A": series("A", []int{1, 0}, []float64{1, 2}),
	}
	_, err := AlignReturns(prices)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
