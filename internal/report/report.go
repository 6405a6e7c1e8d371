// Package report renders rebalance decisions for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// Format is an output encoding
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat resolves a format name
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatTable, FormatJSON, FormatYAML, FormatMsgpack:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", domain.ErrInvalidArgument, name)
	}
}

// Extension returns the file extension for the format
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatYAML:
		return ".yaml"
	case FormatMsgpack:
		return ".msgpack"
	default:
		return ".txt"
	}
}

// Write encodes v in the given format. The table format is only defined for
// decisions; other values fall back to JSON.
func Write(w io.Writer, v interface{}, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(v)
	case FormatTable:
		if d, ok := v.(*rebalancing.Decision); ok {
			return WriteTable(w, d)
		}
		return Write(w, v, FormatJSON)
	default:
		return fmt.Errorf("%w: unknown output format %q", domain.ErrInvalidArgument, format)
	}
}

// ReadDecision decodes a decision written with Write in a machine format
func ReadDecision(r io.Reader, format Format) (*rebalancing.Decision, error) {
	var d rebalancing.Decision
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&d)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&d)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(&d)
	default:
		return nil, fmt.Errorf("%w: cannot decode format %q", domain.ErrInvalidArgument, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	return &d, nil
}

// WriteTable prints a decision as aligned text tables
func WriteTable(w io.Writer, d *rebalancing.Decision) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run:\t%s\n", d.RunID)
	fmt.Fprintf(tw, "Date:\t%s\n", d.Date.Format("2006-01-02 (Mon)"))
	fmt.Fprintf(tw, "Metric:\t%s\n", d.Metric)
	fmt.Fprintf(tw, "Capital:\t%.2f\n", d.Capital)
	if d.GoToCash {
		fmt.Fprintf(tw, "Action:\tno eligible assets, liquidating\n")
	}
	if d.Diagnostics != nil {
		fmt.Fprintf(tw, "Optimizer:\t%s, shrinkage %.4f, %d obs, DR %.4f\n",
			d.Diagnostics.Estimator, d.Diagnostics.Shrinkage, d.Diagnostics.Observations, d.Diagnostics.DiversificationRatio)
	}

	if len(d.Signals) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "ASSET\tSIGNAL\tELIGIBLE\tREASON")
		for _, s := range d.Signals {
			value := "-"
			if s.Defined {
				value = fmt.Sprintf("%.6f", s.Value)
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", s.Asset, value, s.Eligible, s.Reason)
		}
	}

	assets := unionAssets(d)
	if len(assets) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "ASSET\tWEIGHT\tPRICE\tTARGET\tORDER")
		for _, asset := range assets {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				asset,
				optional(d.Weights, asset, "%.4f"),
				optional(d.Prices, asset, "%.6g"),
				optional(d.Targets, asset, "%.8f"),
				optional(d.Orders, asset, "%+.8f"),
			)
		}
	}

	return tw.Flush()
}

func optional[M ~map[string]float64](m M, key, format string) string {
	v, ok := m[key]
	if !ok {
		return "-"
	}
	return fmt.Sprintf(format, v)
}

func unionAssets(d *rebalancing.Decision) []string {
	set := make(domain.HoldingsMap)
	for a := range d.Weights {
		set[a] = 0
	}
	for a := range d.Targets {
		set[a] = 0
	}
	for a := range d.Orders {
		set[a] = 0
	}
	return set.Assets()
}
