package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/report"
)

// OrderSink receives every successful rebalance decision. Orders are never
// sent to an exchange from this process.
type OrderSink interface {
	Submit(ctx context.Context, decision *rebalancing.Decision) error
}

// LogSink logs each order
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink that only logs
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "order_log").Logger()}
}

// Submit logs one line per order
func (s *LogSink) Submit(ctx context.Context, d *rebalancing.Decision) error {
	for _, asset := range d.Orders.Assets() {
		units := d.Orders[asset]
		side := "buy"
		if units < 0 {
			side = "sell"
		}
		event := s.log.Info().
			Str("run_id", d.RunID).
			Str("asset", asset).
			Str("side", side).
			Float64("units", units)
		if price, ok := d.Prices[asset]; ok {
			event = event.Float64("price", price).Float64("notional", units*price)
		}
		event.Msg("Order")
	}
	if len(d.Orders) == 0 {
		s.log.Info().Str("run_id", d.RunID).Msg("Portfolio already on target, no orders")
	}
	return nil
}

// FileSink writes each decision to its own file in a directory
type FileSink struct {
	dir    string
	format report.Format
	log    zerolog.Logger
}

// NewFileSink creates the directory if needed. Only machine formats are accepted.
func NewFileSink(dir string, format report.Format, log zerolog.Logger) (*FileSink, error) {
	switch format {
	case report.FormatJSON, report.FormatYAML, report.FormatMsgpack:
	default:
		return nil, fmt.Errorf("file sink cannot write format %q", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create orders directory: %w", err)
	}
	return &FileSink{
		dir:    dir,
		format: format,
		log:    log.With().Str("component", "order_file").Logger(),
	}, nil
}

// Path returns the file a decision is written to
func (s *FileSink) Path(d *rebalancing.Decision) string {
	name := fmt.Sprintf("%s_%s%s", d.Date.Format("2006-01-02"), d.RunID, s.format.Extension())
	return filepath.Join(s.dir, name)
}

// Submit writes the decision atomically through a temporary file
func (s *FileSink) Submit(ctx context.Context, d *rebalancing.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(d)
	tmp, err := os.CreateTemp(s.dir, ".decision-*")
	if err != nil {
		return fmt.Errorf("failed to create decision file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := report.Write(tmp, d, s.format); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write decision file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move decision file: %w", err)
	}

	s.log.Info().Str("path", path).Int("orders", len(d.Orders)).Msg("Decision written")
	return nil
}

// MultiSink submits to every sink in order and stops at the first error
type MultiSink []OrderSink

// Submit forwards the decision
func (m MultiSink) Submit(ctx context.Context, d *rebalancing.Decision) error {
	for _, sink := range m {
		if err := sink.Submit(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
