package coordinator

import (
	"errors"
	"fmt"
	"math"

	"bybit-trading-bot/config"
)

// Sizing failure modes. These abort a single signal's execution; the
// signal id stays consumed and is never retried.
var (
	ErrMissingEquity     = errors.New("missing_equity")
	ErrInvalidSLDistance = errors.New("invalid_sl_distance")
	ErrBelowMinNotional  = errors.New("below_min_notional")
	ErrNoFixedQuantity   = errors.New("no_fixed_quantity")
)

// Sizer turns an admitted signal's entry/stop into an order quantity.
// Both implementations return the same result shape so dispatch code is
// venue-agnostic.
type Sizer interface {
	Size(symbol string, entry, stop, equity float64) (SizeResult, error)
}

// RiskBudgetSizer sizes positions from an equity risk budget:
// quantity = equity * riskPct / |entry - stop|, with the resulting
// notional clamped to [MinNotional, MaxNotional] and capped to a fixed
// percentage of equity. Quantity is recomputed after clamping so that
// quantity * entry equals the returned notional exactly.
type RiskBudgetSizer struct {
	cfg  config.RiskConfig
	mode func() string
}

// NewRiskBudgetSizer creates the primary-venue sizer. The mode func is
// read at sizing time so operator risk-mode changes apply immediately.
func NewRiskBudgetSizer(cfg config.RiskConfig, mode func() string) *RiskBudgetSizer {
	return &RiskBudgetSizer{cfg: cfg, mode: mode}
}

// Size computes the risk-budget quantity for one signal
func (s *RiskBudgetSizer) Size(symbol string, entry, stop, equity float64) (SizeResult, error) {
	if equity <= 0 || math.IsNaN(equity) {
		return SizeResult{}, ErrMissingEquity
	}

	slDistance := math.Abs(entry - stop)
	if slDistance == 0 || entry <= 0 {
		return SizeResult{}, ErrInvalidSLDistance
	}

	riskBudget := equity * s.cfg.RiskPercentFor(s.mode())
	quantity := riskBudget / slDistance
	notional := quantity * entry

	// Clamp notional to the configured band and the equity cap
	maxNotional := s.cfg.MaxNotional
	if cap := equity * s.cfg.EquityCapPercent / 100; cap < maxNotional {
		maxNotional = cap
	}
	if notional > maxNotional {
		notional = maxNotional
	}
	if notional < s.cfg.MinNotional {
		return SizeResult{}, fmt.Errorf("%w: notional %.2f < min %.2f", ErrBelowMinNotional, notional, s.cfg.MinNotional)
	}

	// Recompute quantity so quantity*entry matches the clamped notional
	quantity = notional / entry

	return SizeResult{Quantity: quantity, Notional: notional}, nil
}

// FixedQuantitySizer uses a per-symbol quantity table, independent of
// equity. Used only against the practice environment to keep test order
// sizes deterministic and small.
type FixedQuantitySizer struct {
	table map[string]float64
}

// NewFixedQuantitySizer creates the practice-environment sizer
func NewFixedQuantitySizer(table map[string]float64) *FixedQuantitySizer {
	return &FixedQuantitySizer{table: table}
}

// Size returns the fixed quantity for the symbol at current entry price
func (s *FixedQuantitySizer) Size(symbol string, entry, stop, equity float64) (SizeResult, error) {
	qty, ok := s.table[symbol]
	if !ok || qty <= 0 {
		return SizeResult{}, fmt.Errorf("%w: %s", ErrNoFixedQuantity, symbol)
	}
	if entry <= 0 {
		return SizeResult{}, ErrInvalidSLDistance
	}
	return SizeResult{Quantity: qty, Notional: qty * entry}, nil
}

// SelectSizer prefers fixed sizing on the practice environment and
// risk-budget sizing everywhere else.
func SelectSizer(cfg config.RiskConfig, testnet bool, mode func() string) Sizer {
	if testnet {
		return NewFixedQuantitySizer(cfg.FixedQuantities)
	}
	return NewRiskBudgetSizer(cfg, mode)
}
