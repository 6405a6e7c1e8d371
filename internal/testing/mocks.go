package testing

import (
	"context"
	"sync"

	"github.com/aristath/rebalancer/internal/domain"
)

// MockPriceSource is an in-memory market data source
type MockPriceSource struct {
	mu     sync.RWMutex
	prices map[string]domain.PriceSeries
	err    error
	calls  int
}

// NewMockPriceSource creates a source serving the given series
func NewMockPriceSource(series ...domain.PriceSeries) *MockPriceSource {
	prices := make(map[string]domain.PriceSeries, len(series))
	for _, s := range series {
		prices[s.Asset] = s
	}
	return &MockPriceSource{prices: prices}
}

// History returns the configured series or the configured error
func (m *MockPriceSource) History(ctx context.Context) (map[string]domain.PriceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]domain.PriceSeries, len(m.prices))
	for k, v := range m.prices {
		out[k] = v
	}
	return out, nil
}

// SetError makes subsequent calls fail
func (m *MockPriceSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of History calls
func (m *MockPriceSource) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
