package coordinator

import (
	"time"

	"bybit-trading-bot/internal/bybit"
)

// Trend is a per-timeframe directional classification from the strategy feed
type Trend string

const (
	TrendUp   Trend = "UP"
	TrendDown Trend = "DOWN"
	TrendNone Trend = "NONE"
)

// SideFor maps a trend to the order side that follows it
func (t Trend) SideFor() bybit.Side {
	if t == TrendDown {
		return bybit.SideSell
	}
	return bybit.SideBuy
}

// Agrees reports whether an order side trades in the trend's direction
func (t Trend) Agrees(side bybit.Side) bool {
	switch t {
	case TrendUp:
		return side == bybit.SideBuy
	case TrendDown:
		return side == bybit.SideSell
	default:
		return false
	}
}

// SignalKind distinguishes trend-following from mean-reversion signals.
// Only mean-reversion signals may fire against the higher-timeframe bias
// in reverse mode.
type SignalKind string

const (
	SignalKindTrend         SignalKind = "trend"
	SignalKindMeanReversion SignalKind = "meanreversion"
)

// EntryType is the requested execution style of a signal
type EntryType string

const (
	EntryTypeMarket      EntryType = "market"
	EntryTypeLimit       EntryType = "limit"
	EntryTypeLimitMaker  EntryType = "limit_maker"
	EntryTypeConditional EntryType = "conditional"
)

// Signal is a concrete proposed trade emitted inside a Decision.
// Consumed at most once, deduplicated by ID.
type Signal struct {
	ID           string     `json:"id"`
	Side         bybit.Side `json:"side"`
	Kind         SignalKind `json:"kind"`
	EntryType    EntryType  `json:"entry_type"`
	Entry        float64    `json:"entry"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   float64    `json:"take_profit"`
	TriggerPrice float64    `json:"trigger_price"`
	Message      string     `json:"message"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Decision is the per-symbol, per-tick output of the strategy feed.
// Immutable once delivered; superseded by the next tick for the symbol.
type Decision struct {
	Symbol      string  `json:"symbol"`
	HigherTrend Trend   `json:"higher_trend"`
	LowerTrend  Trend   `json:"lower_trend"`
	ADX         float64 `json:"adx"`
	Aligned     int     `json:"aligned"` // timeframes agreeing with the higher trend
	Halted      bool    `json:"halted"`
	Signal      *Signal `json:"signal,omitempty"`

	// Indicator snapshot used by the soft gate and SL/TP synthesis
	Price            float64 `json:"price"`
	EMAFast          float64 `json:"ema_fast"`
	EMASlow          float64 `json:"ema_slow"`
	ATR              float64 `json:"atr"`
	ATRPercent       float64 `json:"atr_percent"`
	VolumePercentile float64 `json:"volume_percentile"`
	PullbackOK       bool    `json:"pullback_ok"`
	BreakOK          bool    `json:"break_ok"`

	Tick time.Time `json:"tick"`
}

// StrongTrend reports whether the decision shows trend strength above the
// given ADX cutoff or full multi-timeframe alignment.
func (d Decision) StrongTrend(adxCutoff float64, alignmentCount int) bool {
	if d.ADX >= adxCutoff {
		return true
	}
	return alignmentCount > 0 && d.Aligned >= alignmentCount
}

// Intent is a locally built, idempotent order request with a TTL.
// Write-once; the venue-reported Order is the durable record.
type Intent struct {
	ID         string
	CreatedAt  time.Time
	Profile    string
	Symbol     string
	Side       bybit.Side
	EntryType  EntryType
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Quantity   float64
	ExpiresAt  time.Time
	Tags       []string
}

// Settings is the operator-controlled runtime state of the coordinator.
// The persistent store lives outside this process; this is the live view.
type Settings struct {
	RiskMode         string          `json:"risk_mode"`
	TrendMode        string          `json:"trend_mode"` // follow, reverse, adaptive
	SoftGateEnabled  bool            `json:"soft_gate_enabled"`
	MaxOpenPositions int             `json:"max_open_positions"`
	MaxOpenOrders    int             `json:"max_open_orders"`
	Symbols          []string        `json:"symbols"`
	SessionEnabled   bool            `json:"session_enabled"`
	SessionStartHour int             `json:"session_start_hour"`
	SessionEndHour   int             `json:"session_end_hour"`
	GateOverrides    map[GateID]bool `json:"gate_overrides"` // true = gate disabled
}

// SymbolPhase describes what the coordinator is doing with a symbol
type SymbolPhase string

const (
	PhaseScan   SymbolPhase = "SCAN"   // waiting for an admissible signal
	PhaseManage SymbolPhase = "MANAGE" // open exposure being protected
)

// SizeResult is the uniform output of both sizing strategies
type SizeResult struct {
	Quantity float64
	Notional float64
}

// TrailingPlan is a computed trailing-stop instruction for one position
type TrailingPlan struct {
	Distance    float64 // trailing distance in price units
	ActivePrice float64 // price at which trailing arms
}
