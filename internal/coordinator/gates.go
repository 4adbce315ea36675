package coordinator

import (
	"fmt"
	"strings"
	"time"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
)

// GateID identifies an admission gate. The same identifiers key the
// operator override map, so evaluation and override lookup cannot drift.
type GateID string

const (
	GateSignal            GateID = "signal"
	GateTrendBias         GateID = "trend_bias"
	GateSession           GateID = "session"
	GateSymbolCapacity    GateID = "symbol_capacity"
	GatePortfolioCapacity GateID = "portfolio_capacity"
	GateCooldown          GateID = "cooldown"
	GateFreshness         GateID = "freshness"
	GateStopValidity      GateID = "stop_validity"
	GateSoftScore         GateID = "soft_score"
)

// HardGateIDs lists every hard gate in evaluation order
var HardGateIDs = []GateID{
	GateSignal,
	GateTrendBias,
	GateSession,
	GateSymbolCapacity,
	GatePortfolioCapacity,
	GateCooldown,
	GateFreshness,
	GateStopValidity,
}

// GateResult is one gate's raw evaluation. A disabled gate keeps its raw
// Pass value for diagnostics but is excluded from blocking.
type GateResult struct {
	ID      GateID `json:"id"`
	Pass    bool   `json:"pass"`
	Enabled bool   `json:"enabled"`
	Detail  string `json:"detail"`
}

// GateReport is the full admission evaluation for one decision tick
type GateReport struct {
	Symbol           string        `json:"symbol"`
	EvaluatedAt      time.Time     `json:"evaluated_at"`
	Results          []GateResult  `json:"results"`
	HardBlockReasons []string      `json:"hard_block_reasons"`
	SoftScore        float64       `json:"soft_score"`
	SoftThreshold    float64       `json:"soft_threshold"`
	SoftPass         bool          `json:"soft_pass"`
	FeedAge          time.Duration `json:"feed_age"`
	Admitted         bool          `json:"admitted"`
}

// BlockSummary renders the aggregated rejection line logged per signal
func (r GateReport) BlockSummary() string {
	return "blocked by: " + strings.Join(r.HardBlockReasons, " · ")
}

// AccountView is the snapshot of open exposure the gate engine reads.
// It is assembled by the coordinator from the mirrors and pending-set.
type AccountView struct {
	HasPosition      bool // open position on the evaluated symbol
	HasEntryOrder    bool // live non-protective order on the symbol
	HasPendingIntent bool
	OpenPositions    int
	EntryOrders      int
	PendingIntents   int
	LastLossAt       time.Time // zero when no recorded loss
}

// Engine evaluates admission gates. It is a pure function of its inputs;
// the coordinator calls it both per tick for diagnostics and again
// synchronously at dispatch time.
type Engine struct {
	cfg      config.GatesConfig
	cooldown time.Duration
}

// NewEngine creates a gate engine from configuration
func NewEngine(cfg config.GatesConfig, cooldown time.Duration) *Engine {
	return &Engine{cfg: cfg, cooldown: cooldown}
}

// Evaluate runs every gate against the decision and account snapshot.
// Overrides in settings disable individual gates for blocking purposes
// while keeping their raw evaluation visible.
func (e *Engine) Evaluate(dec Decision, view AccountView, set Settings, now time.Time) GateReport {
	report := GateReport{
		Symbol:      dec.Symbol,
		EvaluatedAt: now,
		FeedAge:     now.Sub(dec.Tick),
	}

	sig := dec.Signal

	for _, id := range HardGateIDs {
		result := e.evaluateHardGate(id, dec, sig, view, set, now)
		result.Enabled = !set.GateOverrides[id]
		report.Results = append(report.Results, result)
		if result.Enabled && !result.Pass {
			report.HardBlockReasons = append(report.HardBlockReasons, string(id)+": "+result.Detail)
		}
	}

	report.SoftScore = e.softScore(dec, sig, set, now)
	report.SoftThreshold = e.softThreshold(dec)
	report.SoftPass = report.SoftScore >= report.SoftThreshold

	softEnabled := set.SoftGateEnabled && !set.GateOverrides[GateSoftScore]
	report.Results = append(report.Results, GateResult{
		ID:      GateSoftScore,
		Pass:    report.SoftPass,
		Enabled: softEnabled,
		Detail:  fmt.Sprintf("score=%.2f threshold=%.2f", report.SoftScore, report.SoftThreshold),
	})

	report.Admitted = len(report.HardBlockReasons) == 0 && (!softEnabled || report.SoftPass)
	return report
}

func (e *Engine) evaluateHardGate(id GateID, dec Decision, sig *Signal, view AccountView, set Settings, now time.Time) GateResult {
	result := GateResult{ID: id}

	switch id {
	case GateSignal:
		switch {
		case dec.Halted:
			result.Detail = "symbol halted"
		case sig == nil:
			result.Detail = "no signal"
		default:
			result.Pass = true
			result.Detail = string(sig.Side) + " " + string(sig.EntryType)
		}

	case GateTrendBias:
		result.Pass, result.Detail = e.trendBiasPass(dec, sig, set)

	case GateSession:
		if !set.SessionEnabled {
			result.Pass = true
			result.Detail = "no session policy"
			break
		}
		hour := now.UTC().Hour()
		result.Pass = inSessionWindow(hour, set.SessionStartHour, set.SessionEndHour)
		result.Detail = fmt.Sprintf("hour=%d window=%d-%d", hour, set.SessionStartHour, set.SessionEndHour)

	case GateSymbolCapacity:
		switch {
		case view.HasPosition:
			result.Detail = "position already open"
		case view.HasEntryOrder:
			result.Detail = "entry order already live"
		case view.HasPendingIntent:
			result.Detail = "intent pending"
		default:
			result.Pass = true
			result.Detail = "symbol free"
		}

	case GatePortfolioCapacity:
		positionsUsed := view.OpenPositions + view.PendingIntents
		ordersUsed := view.EntryOrders + view.PendingIntents
		switch {
		case positionsUsed >= set.MaxOpenPositions:
			result.Detail = fmt.Sprintf("positions %d/%d", positionsUsed, set.MaxOpenPositions)
		case ordersUsed >= set.MaxOpenOrders:
			result.Detail = fmt.Sprintf("orders %d/%d", ordersUsed, set.MaxOpenOrders)
		default:
			result.Pass = true
			result.Detail = fmt.Sprintf("positions %d/%d orders %d/%d",
				positionsUsed, set.MaxOpenPositions, ordersUsed, set.MaxOpenOrders)
		}

	case GateCooldown:
		if view.LastLossAt.IsZero() {
			result.Pass = true
			result.Detail = "no recent loss"
			break
		}
		elapsed := now.Sub(view.LastLossAt)
		result.Pass = elapsed >= e.cooldown
		result.Detail = fmt.Sprintf("last loss %s ago (cooldown %s)", elapsed.Round(time.Second), e.cooldown)

	case GateFreshness:
		age := now.Sub(dec.Tick)
		maxAge := time.Duration(e.cfg.MaxFeedAgeSeconds) * time.Second
		result.Pass = age <= maxAge
		result.Detail = fmt.Sprintf("age=%s max=%s", age.Round(time.Millisecond), maxAge)

	case GateStopValidity:
		if sig == nil {
			result.Detail = "no signal"
			break
		}
		switch {
		case sig.StopLoss <= 0:
			result.Detail = "stop loss missing"
		case sig.Side == bybit.SideBuy && sig.StopLoss >= sig.Entry:
			result.Detail = fmt.Sprintf("stop %.4f not below entry %.4f", sig.StopLoss, sig.Entry)
		case sig.Side == bybit.SideSell && sig.StopLoss <= sig.Entry:
			result.Detail = fmt.Sprintf("stop %.4f not above entry %.4f", sig.StopLoss, sig.Entry)
		default:
			result.Pass = true
			result.Detail = "stop structurally valid"
		}
	}

	return result
}

// trendBiasPass resolves the trend-bias gate under the active mode.
// Follow requires agreement with both timeframe consensus directions.
// Reverse lets only mean-reversion signals fire against the higher bias.
// Adaptive switches between the two on trend strength: follow when strong,
// reverse allowed only below the stricter ReverseMaxADX cutoff.
func (e *Engine) trendBiasPass(dec Decision, sig *Signal, set Settings) (bool, string) {
	if sig == nil {
		// Diagnostic-only evaluation: report consensus agreement
		agree := dec.HigherTrend != TrendNone && dec.HigherTrend == dec.LowerTrend
		return agree, fmt.Sprintf("consensus higher=%s lower=%s", dec.HigherTrend, dec.LowerTrend)
	}

	followPass := dec.HigherTrend.Agrees(sig.Side) && dec.LowerTrend.Agrees(sig.Side)
	reversePass := followPass ||
		(sig.Kind == SignalKindMeanReversion && dec.HigherTrend != TrendNone && !dec.HigherTrend.Agrees(sig.Side))

	mode := set.TrendMode
	if mode == "adaptive" {
		switch {
		case dec.StrongTrend(e.cfg.StrongTrendADX, e.cfg.AlignmentCount):
			mode = "follow"
		case dec.ADX < e.cfg.ReverseMaxADX:
			mode = "reverse"
		default:
			// Middle band: too strong to fade, too weak to call strong
			mode = "follow"
		}
	}

	detail := fmt.Sprintf("mode=%s higher=%s lower=%s adx=%.1f side=%s kind=%s",
		mode, dec.HigherTrend, dec.LowerTrend, dec.ADX, sig.Side, sig.Kind)

	if mode == "reverse" {
		return reversePass, detail
	}
	return followPass, detail
}

// softCheck is one component of the quality score
type softCheck struct {
	name   string
	weight float64
	pass   bool
}

// softScore assembles the weighted quality checklist. Checks are
// independent; the score is the passed weight over the total weight.
func (e *Engine) softScore(dec Decision, sig *Signal, set Settings, now time.Time) float64 {
	side := bybit.SideBuy
	if sig != nil {
		side = sig.Side
	} else if dec.LowerTrend == TrendDown {
		side = bybit.SideSell
	}

	emaOrdered := dec.EMAFast > dec.EMASlow
	if side == bybit.SideSell {
		emaOrdered = dec.EMAFast < dec.EMASlow
	}

	emaSeparation := false
	if dec.ATR > 0 {
		diff := dec.EMAFast - dec.EMASlow
		if diff < 0 {
			diff = -diff
		}
		emaSeparation = diff >= 0.25*dec.ATR
	}

	age := now.Sub(dec.Tick)
	freshEnough := age <= time.Duration(e.cfg.MaxFeedAgeSeconds)*time.Second/2

	makerEntry := sig != nil && (sig.EntryType == EntryTypeLimitMaker || sig.EntryType == EntryTypeLimit)

	checks := []softCheck{
		{name: "ema_ordering", weight: 1.0, pass: emaOrdered},
		{name: "ema_separation", weight: 1.0, pass: emaSeparation},
		{name: "atr_floor", weight: 1.0, pass: dec.ATRPercent >= 0.15},
		{name: "volume_percentile", weight: 1.0, pass: dec.VolumePercentile >= 0.5},
		{name: "microstructure", weight: 1.0, pass: dec.PullbackOK || dec.BreakOK},
		{name: "feed_age", weight: 0.5, pass: freshEnough},
		{name: "maker_entry", weight: 0.5, pass: makerEntry},
	}

	var total, passed float64
	for _, check := range checks {
		total += check.weight
		if check.pass {
			passed += check.weight
		}
	}
	if total == 0 {
		return 0
	}
	return passed / total
}

// softThreshold picks the pass bar: majors get a lower bar than alts,
// and a strong trend raises the bar to demand cleaner setups.
func (e *Engine) softThreshold(dec Decision) float64 {
	threshold := e.cfg.SoftThresholdAlt
	for _, major := range e.cfg.MajorSymbols {
		if major == dec.Symbol {
			threshold = e.cfg.SoftThresholdMajor
			break
		}
	}
	if dec.StrongTrend(e.cfg.StrongTrendADX, e.cfg.AlignmentCount) {
		threshold += e.cfg.StrongTrendBonus
	}
	return threshold
}

// inSessionWindow handles windows that wrap midnight (e.g. 22-6)
func inSessionWindow(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
