package coordinator

import (
	"math"
	"sync"
	"time"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/logging"
)

// Planner computes trailing-stop plans from risk-profile parameters.
// Pure: all inputs arrive as arguments or construction-time config.
type Planner struct {
	cfg config.TrailingConfig
}

// NewPlanner creates a trailing planner from configuration
func NewPlanner(cfg config.TrailingConfig) *Planner {
	return &Planner{cfg: cfg}
}

// Plan computes the trailing distance and activation price for a trade.
// The activation price sits activationR * |entry-stop| beyond entry in
// the trade's favor. Returns nil (no-op) when the symbol is excluded,
// trailing is disabled for the profile without a symbol override, or the
// computed distance is non-positive. dynOffset, when positive, widens
// the distance (volatility-derived floors never tighten a stop).
func (p *Planner) Plan(symbol string, side bybit.Side, entry, stop, dynOffset float64, profile string) *TrailingPlan {
	for _, excluded := range p.cfg.ExcludedSymbols {
		if excluded == symbol {
			return nil
		}
	}

	params, hasOverride := p.cfg.SymbolOverrides[symbol]
	if !hasOverride {
		var ok bool
		params, ok = p.cfg.Profiles[profile]
		if !ok || !params.Enabled {
			return nil
		}
	}

	risk := math.Abs(entry - stop)
	if risk <= 0 || entry <= 0 {
		return nil
	}

	distance := params.LockR * risk
	// Retracement rate is a fraction of entry price; like the dynamic
	// offset it only ever widens the distance.
	if d := params.RetracementRate * entry; d > distance {
		distance = d
	}
	if dynOffset > distance {
		distance = dynOffset
	}
	if distance <= 0 {
		return nil
	}

	activation := entry + params.ActivationR*risk
	if side == bybit.SideSell {
		activation = entry - params.ActivationR*risk
	}
	if activation <= 0 {
		return nil
	}

	return &TrailingPlan{Distance: distance, ActivePrice: activation}
}

// Synchronizer pushes trailing plans to the venue for open positions
// that lack a venue-reported trailing value. Attempts are spaced by the
// re-sync interval per symbol so a fast poll tick never produces
// redundant protection writes.
type Synchronizer struct {
	client   bybit.Client
	planner  *Planner
	interval time.Duration
	logger   *logging.Logger

	mu          sync.Mutex
	lastAttempt map[string]time.Time
}

// NewSynchronizer creates a protection synchronizer
func NewSynchronizer(client bybit.Client, planner *Planner, interval time.Duration, logger *logging.Logger) *Synchronizer {
	return &Synchronizer{
		client:      client,
		planner:     planner,
		interval:    interval,
		logger:      logger,
		lastAttempt: make(map[string]time.Time),
	}
}

// Sync walks the open positions and submits missing trailing stops.
// Positions already carrying a venue trailing value are left alone.
// atr carries each symbol's latest volatility reading and widens the
// planned distance when it exceeds the profile floor. Returns the
// number of protection updates submitted.
func (s *Synchronizer) Sync(positions map[string]bybit.Position, atr map[string]float64, profile string, now time.Time) int {
	submitted := 0
	for symbol, pos := range positions {
		if pos.TrailingStop > 0 {
			continue
		}
		if pos.StopLoss <= 0 {
			// No structural stop to derive a trailing distance from
			continue
		}

		plan := s.planner.Plan(symbol, pos.Side, pos.EntryPrice, pos.StopLoss, atr[symbol], profile)
		if plan == nil {
			continue
		}

		if !s.attemptDue(symbol, now) {
			continue
		}

		err := s.client.SetTradingStop(bybit.TradingStopRequest{
			Symbol:       symbol,
			PositionIdx:  pos.PositionIdx,
			TrailingStop: plan.Distance,
			ActivePrice:  plan.ActivePrice,
		})
		if err != nil {
			s.logger.Error("trailing stop sync failed",
				"symbol", symbol, "distance", plan.Distance, "error", err)
			continue
		}
		s.logger.Info("trailing stop set",
			"symbol", symbol, "distance", plan.Distance, "activation", plan.ActivePrice)
		submitted++
	}
	return submitted
}

// attemptDue records and rate-limits per-symbol submission attempts
func (s *Synchronizer) attemptDue(symbol string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastAttempt[symbol]; ok && now.Sub(last) < s.interval {
		return false
	}
	s.lastAttempt[symbol] = now
	return true
}
