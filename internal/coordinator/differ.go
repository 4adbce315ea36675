package coordinator

import (
	"fmt"
	"math"

	"bybit-trading-bot/internal/bybit"
)

// ChangeKind classifies a semantic delta between two snapshots
type ChangeKind string

const (
	PositionOpened     ChangeKind = "POSITION_OPENED"
	PositionResized    ChangeKind = "POSITION_RESIZED"
	PositionClosed     ChangeKind = "POSITION_CLOSED"
	OrderNew           ChangeKind = "ORDER_NEW"
	OrderStatusChanged ChangeKind = "ORDER_STATUS_CHANGED"
	OrderClosed        ChangeKind = "ORDER_CLOSED"
)

// ChangeEvent is one semantic delta emitted by the differencer
type ChangeEvent struct {
	Kind   ChangeKind
	Symbol string
	Key    string
	Detail string
}

// validPosition rejects rows whose numerics would corrupt the event
// stream. The venue client already drops unparsable rows; this guards
// against anything that slipped through a different code path.
func validPosition(p bybit.Position) bool {
	if math.IsNaN(p.Size) || math.IsInf(p.Size, 0) || p.Size <= 0 {
		return false
	}
	if math.IsNaN(p.EntryPrice) || math.IsInf(p.EntryPrice, 0) || p.EntryPrice <= 0 {
		return false
	}
	return true
}

func validOrder(o bybit.Order) bool {
	if o.Key() == "" {
		return false
	}
	if math.IsNaN(o.Qty) || math.IsInf(o.Qty, 0) || o.Qty <= 0 {
		return false
	}
	if math.IsNaN(o.Price) || math.IsInf(o.Price, 0) {
		return false
	}
	return true
}

// DiffPositions compares a fresh position fetch against the previous
// snapshot, keyed by symbol. It returns the semantic deltas and the new
// snapshot map, which becomes "previous" for the next tick.
func DiffPositions(prev map[string]bybit.Position, fresh []bybit.Position) ([]ChangeEvent, map[string]bybit.Position) {
	next := make(map[string]bybit.Position, len(fresh))
	var events []ChangeEvent

	for _, pos := range fresh {
		if !validPosition(pos) {
			continue
		}
		next[pos.Symbol] = pos

		old, existed := prev[pos.Symbol]
		if !existed {
			events = append(events, ChangeEvent{
				Kind:   PositionOpened,
				Symbol: pos.Symbol,
				Key:    pos.Symbol,
				Detail: fmt.Sprintf("%s %s size=%s entry=%s", pos.Side, pos.Symbol, trimFloat(pos.Size), trimFloat(pos.EntryPrice)),
			})
			continue
		}
		if old.Size != pos.Size {
			events = append(events, ChangeEvent{
				Kind:   PositionResized,
				Symbol: pos.Symbol,
				Key:    pos.Symbol,
				Detail: fmt.Sprintf("%s size %s -> %s", pos.Symbol, trimFloat(old.Size), trimFloat(pos.Size)),
			})
		}
	}

	for symbol, old := range prev {
		if _, stillOpen := next[symbol]; !stillOpen {
			events = append(events, ChangeEvent{
				Kind:   PositionClosed,
				Symbol: symbol,
				Key:    symbol,
				Detail: fmt.Sprintf("%s %s closed (was size=%s)", old.Side, symbol, trimFloat(old.Size)),
			})
		}
	}

	return events, next
}

// DiffOrders compares a fresh order fetch against the previous snapshot,
// keyed by order id with client-link-id fallback.
func DiffOrders(prev map[string]bybit.Order, fresh []bybit.Order) ([]ChangeEvent, map[string]bybit.Order) {
	next := make(map[string]bybit.Order, len(fresh))
	var events []ChangeEvent

	for _, order := range fresh {
		if !validOrder(order) {
			continue
		}
		key := order.Key()
		next[key] = order

		old, existed := prev[key]
		if !existed {
			events = append(events, ChangeEvent{
				Kind:   OrderNew,
				Symbol: order.Symbol,
				Key:    key,
				Detail: fmt.Sprintf("%s %s %s qty=%s status=%s", order.Side, order.Symbol, order.OrderType, trimFloat(order.Qty), order.Status),
			})
			continue
		}
		if old.Status != order.Status {
			events = append(events, ChangeEvent{
				Kind:   OrderStatusChanged,
				Symbol: order.Symbol,
				Key:    key,
				Detail: fmt.Sprintf("%s order %s status %s -> %s", order.Symbol, key, old.Status, order.Status),
			})
		}
	}

	for key, old := range prev {
		if _, stillOpen := next[key]; !stillOpen {
			events = append(events, ChangeEvent{
				Kind:   OrderClosed,
				Symbol: old.Symbol,
				Key:    key,
				Detail: fmt.Sprintf("%s order %s no longer open (was %s)", old.Symbol, key, old.Status),
			})
		}
	}

	return events, next
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
