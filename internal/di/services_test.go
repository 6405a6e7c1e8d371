package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/trend"
)

func TestRebalancingConfig(t *testing.T) {
	defaults, err := config.LoadStrategy("")
	require.NoError(t, err)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := RebalancingConfig(*defaults)
		require.NoError(t, err)
		assert.Equal(t, time.Monday, cfg.RebalanceWeekday)
		assert.Equal(t, trend.MetricCAGR, cfg.EligibilityMetric)
		assert.Equal(t, rebalancing.DefaultExcludedAssets(), cfg.ExcludedAssets)
		assert.Equal(t, 1.0, cfg.Leverage)
	})

	t.Run("empty exclusion list excludes nothing", func(t *testing.T) {
		s := *defaults
		s.ExcludedAssets = []string{}
		cfg, err := RebalancingConfig(s)
		require.NoError(t, err)
		assert.Empty(t, cfg.ExcludedAssets)
	})

	t.Run("aliases and weekday", func(t *testing.T) {
		s := *defaults
		s.EligibilityMetric = "r2"
		s.RebalanceWeekday = "Fri"
		s.MinSignal = 0.5
		cfg, err := RebalancingConfig(s)
		require.NoError(t, err)
		assert.Equal(t, trend.MetricRSquared, cfg.EligibilityMetric)
		assert.Equal(t, time.Friday, cfg.RebalanceWeekday)
		assert.Equal(t, 0.5, cfg.MinSignal)
	})

	t.Run("invalid weekday", func(t *testing.T) {
		s := *defaults
		s.RebalanceWeekday = "someday"
		_, err := RebalancingConfig(s)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("invalid leverage", func(t *testing.T) {
		s := *defaults
		s.Leverage = 2
		_, err := RebalancingConfig(s)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}
