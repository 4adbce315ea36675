package feed

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/coordinator"
	"bybit-trading-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr", Component: "test"})
}

func validWire() wireDecision {
	return wireDecision{
		Symbol:      "BTCUSDT",
		HigherTrend: "UP",
		LowerTrend:  "up",
		ADX:         28,
		Aligned:     3,
		Price:       60000,
		EMAFast:     60100,
		EMASlow:     59900,
		ATR:         120,
		ATRPercent:  0.4,
		PullbackOK:  true,
		TickMs:      1700000000000,
	}
}

func TestToDecisionMapsFields(t *testing.T) {
	dec, ok := validWire().toDecision()
	if !ok {
		t.Fatal("valid tick should convert")
	}
	if dec.Symbol != "BTCUSDT" || dec.Price != 60000 {
		t.Errorf("identity fields wrong: %+v", dec)
	}
	if dec.HigherTrend != coordinator.TrendUp || dec.LowerTrend != coordinator.TrendUp {
		t.Errorf("trend parsing should be case-insensitive: %v/%v", dec.HigherTrend, dec.LowerTrend)
	}
	if !dec.Tick.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("Tick = %v", dec.Tick)
	}
	if dec.Signal != nil {
		t.Error("tick without signal should carry nil signal")
	}
}

func TestToDecisionDefaultsTickToNow(t *testing.T) {
	wire := validWire()
	wire.TickMs = 0

	before := time.Now()
	dec, ok := wire.toDecision()
	if !ok {
		t.Fatal("tick should convert")
	}
	if dec.Tick.Before(before) || dec.Tick.After(time.Now()) {
		t.Errorf("missing tick timestamp should default to now, got %v", dec.Tick)
	}
}

func TestToDecisionRejectsUnusableTicks(t *testing.T) {
	noSymbol := validWire()
	noSymbol.Symbol = ""
	if _, ok := noSymbol.toDecision(); ok {
		t.Error("tick without symbol should be rejected")
	}

	badPrice := validWire()
	badPrice.Price = 0
	if _, ok := badPrice.toDecision(); ok {
		t.Error("tick with non-positive price should be rejected")
	}

	nanATR := validWire()
	nanATR.ATR = math.NaN()
	if _, ok := nanATR.toDecision(); ok {
		t.Error("tick with NaN numerics should be rejected")
	}

	infADX := validWire()
	infADX.ADX = math.Inf(1)
	if _, ok := infADX.toDecision(); ok {
		t.Error("tick with infinite numerics should be rejected")
	}

	badTrend := validWire()
	badTrend.HigherTrend = "SIDEWAYS"
	if _, ok := badTrend.toDecision(); ok {
		t.Error("tick with unknown trend should be rejected")
	}
}

func TestToDecisionStripsBrokenSignal(t *testing.T) {
	wire := validWire()
	wire.Signal = &wireSignal{ID: "", Side: "buy", Entry: 100}

	dec, ok := wire.toDecision()
	if !ok {
		t.Fatal("tick should survive a broken embedded signal")
	}
	if dec.Signal != nil {
		t.Error("broken signal should be stripped, not kept")
	}
}

func TestToSignalMapping(t *testing.T) {
	wire := wireSignal{
		ID:          "sig-1",
		Side:        "long",
		Kind:        "MEANREVERSION",
		EntryType:   "market",
		Entry:       100,
		StopLoss:    98,
		TakeProfit:  104,
		CreatedAtMs: 1700000000000,
	}

	sig, ok := wire.toSignal()
	if !ok {
		t.Fatal("valid signal should convert")
	}
	if sig.Side != bybit.SideBuy {
		t.Errorf("Side = %v, long should map to Buy", sig.Side)
	}
	if sig.Kind != coordinator.SignalKindMeanReversion {
		t.Errorf("Kind = %v", sig.Kind)
	}
	if sig.EntryType != coordinator.EntryTypeMarket {
		t.Errorf("EntryType = %v", sig.EntryType)
	}
	if !sig.CreatedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("CreatedAt = %v", sig.CreatedAt)
	}
}

func TestToSignalDefaults(t *testing.T) {
	sig, ok := wireSignal{ID: "sig-1", Side: "sell", Entry: 100}.toSignal()
	if !ok {
		t.Fatal("minimal signal should convert")
	}
	if sig.Side != bybit.SideSell {
		t.Errorf("Side = %v", sig.Side)
	}
	if sig.Kind != coordinator.SignalKindTrend {
		t.Errorf("missing kind should default to trend, got %v", sig.Kind)
	}
	if sig.EntryType != coordinator.EntryTypeLimit {
		t.Errorf("missing entry type should default to limit, got %v", sig.EntryType)
	}
}

func TestToSignalRejections(t *testing.T) {
	if _, ok := (wireSignal{ID: "", Side: "buy", Entry: 100}).toSignal(); ok {
		t.Error("signal without id should be rejected")
	}
	if _, ok := (wireSignal{ID: "s", Side: "hold", Entry: 100}).toSignal(); ok {
		t.Error("signal with unknown side should be rejected")
	}
	if _, ok := (wireSignal{ID: "s", Side: "buy", Entry: -1}).toSignal(); ok {
		t.Error("signal with negative entry should be rejected")
	}
	if _, ok := (wireSignal{ID: "s", Side: "buy", Entry: 100, StopLoss: math.NaN()}).toSignal(); ok {
		t.Error("signal with NaN stop should be rejected")
	}
}

func TestParseTrend(t *testing.T) {
	tests := []struct {
		in     string
		want   coordinator.Trend
		wantOk bool
	}{
		{"UP", coordinator.TrendUp, true},
		{"down", coordinator.TrendDown, true},
		{"", coordinator.TrendNone, true},
		{"none", coordinator.TrendNone, true},
		{"FLAT", coordinator.TrendNone, false},
	}
	for _, tt := range tests {
		got, ok := parseTrend(tt.in)
		if ok != tt.wantOk || got != tt.want {
			t.Errorf("parseTrend(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.wantOk)
		}
	}
}

func TestHandleMessageRouting(t *testing.T) {
	adapter := New(config.FeedConfig{}, func() []string { return []string{"BTCUSDT"} }, testLogger())

	// subscription acks share the channel and must be ignored
	adapter.handleMessage([]byte(`{"op":"subscribe","success":true}`), 0)
	adapter.handleMessage([]byte(`not json`), 0)
	adapter.handleMessage([]byte(`{"symbol":"","price":0}`), 0)
	select {
	case dec := <-adapter.out:
		t.Fatalf("no decision expected, got %+v", dec)
	default:
	}

	adapter.handleMessage([]byte(`{"symbol":"BTCUSDT","higherTrend":"UP","lowerTrend":"UP","adx":30,"price":60000,"tick":1700000000000}`), 0)
	select {
	case dec := <-adapter.out:
		if dec.Symbol != "BTCUSDT" || dec.ADX != 30 {
			t.Errorf("decision wrong: %+v", dec)
		}
	default:
		t.Fatal("valid tick should be published")
	}
}

func TestHandleMessageDiscardsStaleEpoch(t *testing.T) {
	adapter := New(config.FeedConfig{}, func() []string { return nil }, testLogger())
	adapter.epoch.Store(3)

	adapter.handleMessage([]byte(`{"symbol":"BTCUSDT","price":60000}`), 2)
	select {
	case <-adapter.out:
		t.Fatal("tick decoded under an old epoch should be discarded")
	default:
	}
}

func TestAdapterSubscribesAndPublishes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		var sub struct {
			Op      string   `json:"op"`
			Symbols []string `json:"symbols"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("reading subscribe failed: %v", err)
			return
		}
		if sub.Op != "subscribe" || len(sub.Symbols) != 2 {
			t.Errorf("unexpected subscribe message: %+v", sub)
		}

		conn.WriteJSON(map[string]interface{}{"op": "subscribe", "success": true})
		conn.WriteJSON(map[string]interface{}{
			"symbol": "ETHUSDT", "higherTrend": "DOWN", "lowerTrend": "DOWN",
			"adx": 22.0, "price": 3000.0, "tick": 1700000000000,
		})

		// hold the connection open until the adapter hangs up
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	adapter := New(
		config.FeedConfig{URL: wsURL, ReconnectSeconds: 1, PingSeconds: 1},
		func() []string { return []string{"BTCUSDT", "ETHUSDT"} },
		testLogger(),
	)
	adapter.Start()
	defer adapter.Stop()

	select {
	case dec := <-adapter.Decisions():
		if dec.Symbol != "ETHUSDT" || dec.HigherTrend != coordinator.TrendDown {
			t.Errorf("decision wrong: %+v", dec)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for decision")
	}
}
