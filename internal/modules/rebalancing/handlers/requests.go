package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/aristath/rebalancer/internal/domain"
)

var validate = validator.New()

// ObservationDTO is one close of a price history
type ObservationDTO struct {
	Date  string  `json:"date" validate:"required"`
	Close float64 `json:"close"`
}

// PlanRequest represents a request to plan a rebalance
type PlanRequest struct {
	Date          string                      `json:"date" validate:"required"`
	Prices        map[string][]ObservationDTO `json:"prices" validate:"required,dive,keys,required,endkeys,dive"`
	Holdings      map[string]float64          `json:"holdings"`
	Capital       float64                     `json:"capital" validate:"gte=0"`
	CurrentPrices map[string]float64          `json:"current_prices" validate:"omitempty,dive,gt=0"`
}

// EvaluateSignalsRequest represents a request to evaluate trend signals
type EvaluateSignalsRequest struct {
	Prices map[string][]ObservationDTO `json:"prices" validate:"required,dive,keys,required,endkeys,dive"`
	Metric string                      `json:"metric" default:"cagr"`
}

// ComputeWeightsRequest represents a request to compute optimizer weights
type ComputeWeightsRequest struct {
	Prices map[string][]ObservationDTO `json:"prices" validate:"dive,keys,required,endkeys,dive"`
}

// DiffOrdersRequest represents a request to diff holdings into orders
type DiffOrdersRequest struct {
	Current domain.HoldingsMap `json:"current"`
	Target  domain.HoldingsMap `json:"target"`
}

// decodeAndValidate reads the JSON body, applies defaults and validates it
func decodeAndValidate(r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidArgument, err)
	}
	if err := defaults.Set(req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := validate.StructCtx(r.Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// parseDate accepts a calendar date or an RFC3339 timestamp
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", domain.ErrInvalidArgument, s)
	}
	return t, nil
}

// toSeries converts request histories into price series
func toSeries(prices map[string][]ObservationDTO) (map[string]domain.PriceSeries, error) {
	out := make(map[string]domain.PriceSeries, len(prices))
	assets := make([]string, 0, len(prices))
	for asset := range prices {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	for _, asset := range assets {
		dtos := prices[asset]
		obs := make([]domain.Observation, len(dtos))
		for i, dto := range dtos {
			d, err := parseDate(dto.Date)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", asset, err)
			}
			obs[i] = domain.Observation{Date: d, Value: dto.Close}
		}
		series := domain.PriceSeries{Asset: asset, Observations: obs}
		if err := series.Validate(); err != nil {
			return nil, err
		}
		out[asset] = series
	}
	return out, nil
}
