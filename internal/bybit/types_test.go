package bybit

import (
	"testing"
	"time"
)

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOk bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"123.45", 123.45, true},
		{"-0.004", -0.004, true},
		{"1e3", 1000, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"-Inf", 0, false},
		{"12.3.4", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseFloat(tt.in)
		if ok != tt.wantOk {
			t.Errorf("parseFloat(%q) ok = %v, want %v", tt.in, ok, tt.wantOk)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseFloat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMillis(t *testing.T) {
	if !parseMillis("").IsZero() {
		t.Error("parseMillis(\"\") should be zero time")
	}
	if !parseMillis("garbage").IsZero() {
		t.Error("parseMillis on unparsable input should be zero time")
	}

	got := parseMillis("1700000000000")
	want := time.UnixMilli(1700000000000)
	if !got.Equal(want) {
		t.Errorf("parseMillis = %v, want %v", got, want)
	}
}

func TestRawPositionToPosition(t *testing.T) {
	raw := rawPosition{
		Symbol:        "BTCUSDT",
		Side:          "Buy",
		Size:          "0.5",
		AvgPrice:      "60000",
		MarkPrice:     "60100",
		StopLoss:      "59000",
		TakeProfit:    "",
		TrailingStop:  "150",
		ActivePrice:   "60500",
		UnrealisedPnl: "50",
		PositionIdx:   1,
		CreatedTime:   "1700000000000",
		UpdatedTime:   "1700000060000",
	}

	pos, ok := raw.toPosition()
	if !ok {
		t.Fatal("expected valid position row to convert")
	}
	if pos.Symbol != "BTCUSDT" || pos.Side != SideBuy {
		t.Errorf("identity fields wrong: %+v", pos)
	}
	if pos.Size != 0.5 || pos.EntryPrice != 60000 || pos.MarkPrice != 60100 {
		t.Errorf("numeric fields wrong: %+v", pos)
	}
	if pos.StopLoss != 59000 || pos.TakeProfit != 0 {
		t.Errorf("protection fields wrong: sl=%v tp=%v", pos.StopLoss, pos.TakeProfit)
	}
	if pos.TrailingStop != 150 || pos.ActivePrice != 60500 {
		t.Errorf("trailing fields wrong: %+v", pos)
	}
	if pos.PositionIdx != PositionIdxLong {
		t.Errorf("PositionIdx = %v, want %v", pos.PositionIdx, PositionIdxLong)
	}
	if !pos.CreatedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("CreatedAt = %v", pos.CreatedAt)
	}
}

func TestRawPositionRejectsBadNumerics(t *testing.T) {
	raw := rawPosition{Symbol: "BTCUSDT", Side: "Buy", Size: "NaN", AvgPrice: "60000"}
	if _, ok := raw.toPosition(); ok {
		t.Error("position with NaN size should be rejected")
	}

	raw = rawPosition{Symbol: "BTCUSDT", Side: "Buy", Size: "0.5", AvgPrice: "not-a-price"}
	if _, ok := raw.toPosition(); ok {
		t.Error("position with unparsable entry price should be rejected")
	}
}

func TestRawOrderToOrder(t *testing.T) {
	raw := rawOrder{
		OrderID:       "ord-1",
		OrderLinkID:   "gd-abc",
		Symbol:        "ETHUSDT",
		Side:          "Sell",
		OrderType:     "Limit",
		Qty:           "2",
		Price:         "3000",
		TriggerPrice:  "",
		OrderStatus:   "New",
		ReduceOnly:    false,
		StopOrderType: "",
		CreatedTime:   "1700000000000",
	}

	ord, ok := raw.toOrder()
	if !ok {
		t.Fatal("expected valid order row to convert")
	}
	if ord.OrderID != "ord-1" || ord.OrderLinkID != "gd-abc" {
		t.Errorf("identity fields wrong: %+v", ord)
	}
	if ord.Side != SideSell || ord.OrderType != OrderTypeLimit || ord.Status != OrderStatusNew {
		t.Errorf("enum fields wrong: %+v", ord)
	}
	if ord.Qty != 2 || ord.Price != 3000 || ord.TriggerPrice != 0 {
		t.Errorf("numeric fields wrong: %+v", ord)
	}

	raw.Qty = "broken"
	if _, ok := raw.toOrder(); ok {
		t.Error("order with unparsable qty should be rejected")
	}
	raw.Qty = "2"
	raw.Price = "Inf"
	if _, ok := raw.toOrder(); ok {
		t.Error("order with non-finite price should be rejected")
	}
}

func TestRawExecutionToExecution(t *testing.T) {
	raw := rawExecution{
		ExecID:    "exec-1",
		OrderID:   "ord-1",
		Symbol:    "BTCUSDT",
		Side:      "Buy",
		ExecPrice: "60000",
		ExecQty:   "0.1",
		ExecFee:   "0.33",
		ExecTime:  "1700000000000",
	}

	exec, ok := raw.toExecution()
	if !ok {
		t.Fatal("expected valid execution row to convert")
	}
	if exec.ExecID != "exec-1" || exec.Price != 60000 || exec.Qty != 0.1 || exec.Fee != 0.33 {
		t.Errorf("execution fields wrong: %+v", exec)
	}

	raw.ExecPrice = "NaN"
	if _, ok := raw.toExecution(); ok {
		t.Error("execution with NaN price should be rejected")
	}
}

func TestRawClosedPnlToClosedPnl(t *testing.T) {
	raw := rawClosedPnl{
		OrderID:     "ord-9",
		Symbol:      "SOLUSDT",
		Side:        "Sell",
		ClosedPnl:   "-12.5",
		Qty:         "4",
		UpdatedTime: "1700000000000",
	}

	pnl, ok := raw.toClosedPnl()
	if !ok {
		t.Fatal("expected valid closed-pnl row to convert")
	}
	if pnl.ID != "ord-9:1700000000000" {
		t.Errorf("ID = %q, want order id and timestamp composite", pnl.ID)
	}
	if pnl.ClosedPnl != -12.5 || pnl.Qty != 4 {
		t.Errorf("numeric fields wrong: %+v", pnl)
	}
	if !pnl.ClosedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("ClosedAt = %v", pnl.ClosedAt)
	}

	raw.ClosedPnl = "??"
	if _, ok := raw.toClosedPnl(); ok {
		t.Error("closed-pnl row with unparsable pnl should be rejected")
	}
}

func TestOrderKeyFallsBackToLinkID(t *testing.T) {
	ord := Order{OrderID: "ord-1", OrderLinkID: "gd-abc"}
	if ord.Key() != "ord-1" {
		t.Errorf("Key = %q, want venue order id", ord.Key())
	}

	ord.OrderID = ""
	if ord.Key() != "gd-abc" {
		t.Errorf("Key = %q, want client link id fallback", ord.Key())
	}
}

func TestOrderIsEntry(t *testing.T) {
	entry := Order{Side: SideBuy, Status: OrderStatusNew}
	if !entry.IsEntry() {
		t.Error("plain order should count as entry")
	}

	reduce := Order{Side: SideSell, ReduceOnly: true}
	if reduce.IsEntry() {
		t.Error("reduce-only order is not an entry")
	}

	protective := Order{Side: SideSell, StopOrderType: StopOrderTypeStopLoss}
	if protective.IsEntry() {
		t.Error("protective order is not an entry")
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Error("opposite of Buy should be Sell")
	}
	if SideSell.Opposite() != SideBuy {
		t.Error("opposite of Sell should be Buy")
	}
}
