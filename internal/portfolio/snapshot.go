// Package portfolio loads account snapshots and derives holdings and capital.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/sizing"
)

// Provider returns the current account state
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Balance is the quantity of one asset. Locked units are reserved by open
// orders but still owned.
type Balance struct {
	Free   float64 `yaml:"free" json:"free"`
	Locked float64 `yaml:"locked" json:"locked"`
}

// Total returns free plus locked units
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// UnmarshalYAML accepts either a plain number or a {free, locked} mapping
func (b *Balance) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var units float64
		if err := value.Decode(&units); err != nil {
			return err
		}
		*b = Balance{Free: units}
		return nil
	}
	type plain Balance
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*b = Balance(p)
	return nil
}

// Snapshot is the account state at a point in time. Cash is in the quote
// currency; Prices optionally override the last close per asset.
type Snapshot struct {
	AsOf      time.Time          `yaml:"as_of" json:"as_of"`
	Cash      float64            `yaml:"cash" json:"cash" validate:"gte=0"`
	Positions map[string]Balance `yaml:"positions" json:"positions"`
	Prices    map[string]float64 `yaml:"prices" json:"prices" validate:"dive,gt=0"`
}

// Holdings returns the assets with a strictly positive total balance
func (s *Snapshot) Holdings() domain.HoldingsMap {
	holdings := make(domain.HoldingsMap)
	for asset, b := range s.Positions {
		if total := b.Total(); total > 0 {
			holdings[asset] = total
		}
	}
	return holdings
}

// Capital returns cash plus the market value of every holding. A snapshot
// price takes precedence over the one in prices.
func (s *Snapshot) Capital(prices map[string]float64) (float64, error) {
	merged := make(map[string]float64, len(prices)+len(s.Prices))
	for asset, p := range prices {
		merged[asset] = p
	}
	for asset, p := range s.Prices {
		merged[asset] = p
	}

	value, err := sizing.MarketValue(s.Holdings(), merged)
	if err != nil {
		return 0, fmt.Errorf("failed to value holdings: %w", err)
	}
	capital := s.Cash + value
	if math.IsNaN(capital) || math.IsInf(capital, 0) {
		return 0, fmt.Errorf("%w: capital is not finite", domain.ErrInvalidArgument)
	}
	return capital, nil
}

// FileProvider reads a snapshot from a YAML or JSON file on every call
type FileProvider struct {
	path     string
	validate *validator.Validate
	log      zerolog.Logger
}

// NewFileProvider creates a file-backed provider
func NewFileProvider(path string, log zerolog.Logger) *FileProvider {
	return &FileProvider{
		path:     path,
		validate: validator.New(),
		log:      log.With().Str("component", "portfolio_file").Str("path", path).Logger(),
	}
}

// Snapshot loads and validates the snapshot file. YAML is a superset of JSON,
// so one decoder serves both formats.
func (p *FileProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read holdings file: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: failed to parse holdings file: %v", domain.ErrInvalidArgument, err)
	}
	if err := p.validate.Struct(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	p.log.Debug().
		Float64("cash", snap.Cash).
		Int("positions", len(snap.Positions)).
		Msg("Loaded holdings snapshot")

	return &snap, nil
}

// StaticProvider serves a fixed snapshot
type StaticProvider struct {
	snap Snapshot
}

// NewStaticProvider creates a provider with a fixed cash balance and no positions
func NewStaticProvider(cash float64) *StaticProvider {
	return &StaticProvider{snap: Snapshot{Cash: cash, Positions: map[string]Balance{}}}
}

// Snapshot returns a copy of the fixed snapshot
func (p *StaticProvider) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := p.snap
	snap.AsOf = time.Now().UTC()
	return &snap, nil
}
