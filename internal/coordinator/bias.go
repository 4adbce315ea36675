package coordinator

import (
	"fmt"
	"sync"
	"time"

	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/logging"
)

// BiasEnforcer keeps all open exposure aligned with the reference
// instrument's bias. It runs after every successful fast poll and issues
// reduce-only closes for opposing positions and cancels for opposing
// entry orders, each per-target rate-limited so an action in flight is
// not re-fired on the next tick.
type BiasEnforcer struct {
	client    bybit.Client
	reference string
	actionGap time.Duration
	events    *EventLog
	logger    *logging.Logger

	mu         sync.Mutex
	lastAction map[string]time.Time
}

// NewBiasEnforcer creates a bias alignment enforcer
func NewBiasEnforcer(client bybit.Client, referenceSymbol string, actionGap time.Duration,
	events *EventLog, logger *logging.Logger) *BiasEnforcer {
	return &BiasEnforcer{
		client:     client,
		reference:  referenceSymbol,
		actionGap:  actionGap,
		events:     events,
		logger:     logger,
		lastAction: make(map[string]time.Time),
	}
}

// ReferenceBias resolves the direction all exposure must agree with:
// the reference instrument's open position, else its live entry order,
// else its current higher-timeframe trend reading. Empty when no bias
// can be resolved.
func (b *BiasEnforcer) ReferenceBias(positions map[string]bybit.Position, orders map[string]bybit.Order, decisions map[string]Decision) bybit.Side {
	if pos, ok := positions[b.reference]; ok {
		return pos.Side
	}
	for _, order := range orders {
		if order.Symbol == b.reference && order.IsEntry() && order.Status == bybit.OrderStatusNew {
			return order.Side
		}
	}
	if dec, ok := decisions[b.reference]; ok && dec.HigherTrend != TrendNone {
		return dec.HigherTrend.SideFor()
	}
	return ""
}

// Enforce scans positions and entry orders for direction conflicts with
// the reference bias and issues corrective actions. Returns the number
// of actions issued.
//
// The reference instrument itself is exempt from bias enforcement with
// one exception: a reference position that fights the reference's own
// higher-timeframe trend reading is evacuated reduce-only, and the trend
// side carries the bias for the rest of the scan.
func (b *BiasEnforcer) Enforce(positions map[string]bybit.Position, orders map[string]bybit.Order, decisions map[string]Decision, now time.Time) int {
	bias := b.ReferenceBias(positions, orders, decisions)
	if bias == "" {
		return 0
	}

	actions := 0

	if pos, ok := positions[b.reference]; ok {
		if dec, hasDec := decisions[b.reference]; hasDec &&
			dec.HigherTrend != TrendNone && dec.HigherTrend.SideFor() != pos.Side {
			bias = dec.HigherTrend.SideFor()
			if b.actionDue("pos:"+b.reference, now) {
				_, err := b.client.PlaceOrder(bybit.OrderRequest{
					Symbol:      b.reference,
					Side:        pos.Side.Opposite(),
					OrderType:   bybit.OrderTypeMarket,
					Qty:         pos.Size,
					ReduceOnly:  true,
					PositionIdx: pos.PositionIdx,
				})
				if err != nil {
					b.logger.Error("bias close failed", "symbol", b.reference, "error", err)
				} else {
					b.events.Add(ActionBias, fmt.Sprintf("%s %s position opposes its own trend %s, closing reduce-only",
						b.reference, pos.Side, dec.HigherTrend))
					actions++
				}
			}
		}
	}

	for symbol, pos := range positions {
		if symbol == b.reference || pos.Side == bias {
			continue
		}
		if !b.actionDue("pos:"+symbol, now) {
			continue
		}
		_, err := b.client.PlaceOrder(bybit.OrderRequest{
			Symbol:      symbol,
			Side:        pos.Side.Opposite(),
			OrderType:   bybit.OrderTypeMarket,
			Qty:         pos.Size,
			ReduceOnly:  true,
			PositionIdx: pos.PositionIdx,
		})
		if err != nil {
			b.logger.Error("bias close failed", "symbol", symbol, "error", err)
			continue
		}
		b.events.Add(ActionBias, fmt.Sprintf("%s %s position opposes %s bias %s, closing reduce-only",
			symbol, pos.Side, b.reference, bias))
		actions++
	}

	for key, order := range orders {
		if order.Symbol == b.reference || !order.IsEntry() || order.Status != bybit.OrderStatusNew {
			continue
		}
		if order.Side == bias {
			continue
		}
		if !b.actionDue("ord:"+key, now) {
			continue
		}
		if err := b.client.CancelOrder(order.Symbol, order.OrderID); err != nil {
			b.logger.Error("bias cancel failed", "symbol", order.Symbol, "order_id", order.OrderID, "error", err)
			continue
		}
		b.events.Add(ActionBias, fmt.Sprintf("%s %s entry order opposes %s bias %s, cancelled",
			order.Symbol, order.Side, b.reference, bias))
		actions++
	}

	return actions
}

// actionDue records and rate-limits per-target corrective actions
func (b *BiasEnforcer) actionDue(target string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if last, ok := b.lastAction[target]; ok && now.Sub(last) < b.actionGap {
		return false
	}
	b.lastAction[target] = now
	return true
}
