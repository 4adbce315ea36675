package coordinator

import (
	"math"
	"testing"

	"bybit-trading-bot/internal/bybit"
)

func countKind(events []ChangeEvent, kind ChangeKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestDiffPositionsOpenResizeClose(t *testing.T) {
	prev := map[string]bybit.Position{
		"BTCUSDT": {Symbol: "BTCUSDT", Side: bybit.SideBuy, Size: 0.5, EntryPrice: 50000},
		"ETHUSDT": {Symbol: "ETHUSDT", Side: bybit.SideSell, Size: 2, EntryPrice: 3000},
	}
	fresh := []bybit.Position{
		{Symbol: "BTCUSDT", Side: bybit.SideBuy, Size: 1.0, EntryPrice: 50100}, // resized
		{Symbol: "SOLUSDT", Side: bybit.SideBuy, Size: 10, EntryPrice: 150},    // opened
		// ETHUSDT absent -> closed
	}

	events, next := DiffPositions(prev, fresh)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(events), events)
	}
	if countKind(events, PositionOpened) != 1 {
		t.Error("expected one POSITION_OPENED event")
	}
	if countKind(events, PositionResized) != 1 {
		t.Error("expected one POSITION_RESIZED event")
	}
	if countKind(events, PositionClosed) != 1 {
		t.Error("expected one POSITION_CLOSED event")
	}

	if len(next) != 2 {
		t.Errorf("next snapshot should hold 2 positions, got %d", len(next))
	}
	if next["BTCUSDT"].Size != 1.0 {
		t.Errorf("next snapshot should carry the fresh size, got %g", next["BTCUSDT"].Size)
	}
}

func TestDiffPositionsNoChanges(t *testing.T) {
	prev := map[string]bybit.Position{
		"BTCUSDT": {Symbol: "BTCUSDT", Side: bybit.SideBuy, Size: 0.5, EntryPrice: 50000},
	}
	fresh := []bybit.Position{
		{Symbol: "BTCUSDT", Side: bybit.SideBuy, Size: 0.5, EntryPrice: 50000},
	}

	events, _ := DiffPositions(prev, fresh)
	if len(events) != 0 {
		t.Errorf("identical snapshots should emit no events, got %v", events)
	}
}

func TestDiffPositionsDropsInvalidRows(t *testing.T) {
	fresh := []bybit.Position{
		{Symbol: "BADUSDT", Side: bybit.SideBuy, Size: math.NaN(), EntryPrice: 100},
		{Symbol: "ZEROUSDT", Side: bybit.SideBuy, Size: 0, EntryPrice: 100},
		{Symbol: "INFUSDT", Side: bybit.SideBuy, Size: 1, EntryPrice: math.Inf(1)},
		{Symbol: "OKUSDT", Side: bybit.SideBuy, Size: 1, EntryPrice: 100},
	}

	events, next := DiffPositions(map[string]bybit.Position{}, fresh)

	if len(next) != 1 {
		t.Fatalf("only the valid row should survive, got %d", len(next))
	}
	if _, ok := next["OKUSDT"]; !ok {
		t.Error("valid row missing from snapshot")
	}
	if len(events) != 1 {
		t.Errorf("expected one open event for the valid row, got %d", len(events))
	}
}

func TestDiffOrdersLifecycle(t *testing.T) {
	prev := map[string]bybit.Order{
		"o1": {OrderID: "o1", Symbol: "BTCUSDT", Side: bybit.SideBuy, Qty: 1, Price: 50000, Status: bybit.OrderStatusNew},
		"o2": {OrderID: "o2", Symbol: "ETHUSDT", Side: bybit.SideSell, Qty: 2, Price: 3000, Status: bybit.OrderStatusNew},
	}
	fresh := []bybit.Order{
		{OrderID: "o1", Symbol: "BTCUSDT", Side: bybit.SideBuy, Qty: 1, Price: 50000, Status: bybit.OrderStatusPartiallyFilled},
		{OrderID: "o3", Symbol: "SOLUSDT", Side: bybit.SideBuy, Qty: 5, Price: 150, Status: bybit.OrderStatusNew},
		// o2 gone -> closed
	}

	events, next := DiffOrders(prev, fresh)

	if countKind(events, OrderNew) != 1 {
		t.Error("expected one ORDER_NEW event")
	}
	if countKind(events, OrderStatusChanged) != 1 {
		t.Error("expected one ORDER_STATUS_CHANGED event")
	}
	if countKind(events, OrderClosed) != 1 {
		t.Error("expected one ORDER_CLOSED event")
	}
	if len(next) != 2 {
		t.Errorf("next snapshot should hold 2 orders, got %d", len(next))
	}
}

func TestDiffOrdersClientLinkFallbackKey(t *testing.T) {
	fresh := []bybit.Order{
		{OrderLinkID: "gd-abc", Symbol: "BTCUSDT", Side: bybit.SideBuy, Qty: 1, Price: 50000, Status: bybit.OrderStatusNew},
	}

	events, next := DiffOrders(map[string]bybit.Order{}, fresh)

	if len(events) != 1 || events[0].Key != "gd-abc" {
		t.Fatalf("order without venue id should key on link id, got %v", events)
	}
	if _, ok := next["gd-abc"]; !ok {
		t.Error("snapshot should key on link id fallback")
	}
}

func TestDiffOrdersDropsRowsWithoutIdentity(t *testing.T) {
	fresh := []bybit.Order{
		{Symbol: "BTCUSDT", Side: bybit.SideBuy, Qty: 1, Price: 50000, Status: bybit.OrderStatusNew},
	}

	events, next := DiffOrders(map[string]bybit.Order{}, fresh)
	if len(events) != 0 || len(next) != 0 {
		t.Error("order with no id and no link id should be dropped")
	}
}
