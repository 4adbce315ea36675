// Package feed connects to the strategy engine over websocket and
// translates its ticks into coordinator decisions. All wire-level
// validation happens here; the coordinator only ever sees well-formed
// values.
package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/coordinator"
	"bybit-trading-bot/internal/logging"
)

// Adapter maintains a websocket subscription to the strategy feed and
// publishes decoded decisions on a channel. It reconnects on read
// errors and can be force-restarted by the coordinator's watchdog.
type Adapter struct {
	cfg     config.FeedConfig
	symbols func() []string
	logger  *logging.Logger

	out   chan coordinator.Decision
	epoch atomic.Int64

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a feed adapter. symbols is read at each (re)connect so
// settings changes take effect on the next subscription.
func New(cfg config.FeedConfig, symbols func() []string, logger *logging.Logger) *Adapter {
	return &Adapter{
		cfg:      cfg,
		symbols:  symbols,
		logger:   logger.WithComponent("FEED"),
		out:      make(chan coordinator.Decision, 64),
		stopChan: make(chan struct{}),
	}
}

// Decisions returns the channel the coordinator consumes
func (a *Adapter) Decisions() <-chan coordinator.Decision {
	return a.out
}

// Epoch returns the current subscription generation, incremented on
// every restart. Exposed for diagnostics.
func (a *Adapter) Epoch() int64 {
	return a.epoch.Load()
}

// Start launches the connection loop
func (a *Adapter) Start() {
	a.wg.Add(1)
	go a.run()
}

// Restart tears down the active connection; the run loop reconnects
// with a fresh subscription under a new epoch.
func (a *Adapter) Restart() {
	a.epoch.Add(1)
	a.closeConn()
	a.logger.Info("subscription restart requested", "epoch", a.epoch.Load())
}

// Stop terminates the adapter permanently
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	close(a.stopChan)
	a.closeConn()
	a.wg.Wait()
}

func (a *Adapter) closeConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}

func (a *Adapter) isStopped() bool {
	select {
	case <-a.stopChan:
		return true
	default:
		return false
	}
}

// run dials, subscribes and pumps messages until the connection drops,
// then backs off and reconnects. Exits only on Stop.
func (a *Adapter) run() {
	defer a.wg.Done()

	backoff := time.Duration(a.cfg.ReconnectSeconds) * time.Second
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	for !a.isStopped() {
		if err := a.connectAndPump(); err != nil && !a.isStopped() {
			a.logger.Warn("feed connection lost", "error", err, "retry_in", backoff)
		}

		select {
		case <-a.stopChan:
			return
		case <-time.After(backoff):
		}
	}
}

func (a *Adapter) connectAndPump() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(a.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("error dialing strategy feed: %w", err)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		conn.Close()
		return nil
	}
	a.conn = conn
	a.mu.Unlock()

	epoch := a.epoch.Load()
	symbols := a.symbols()

	sub := map[string]interface{}{
		"op":      "subscribe",
		"symbols": symbols,
	}
	if err := conn.WriteJSON(sub); err != nil {
		a.closeConn()
		return fmt.Errorf("error subscribing: %w", err)
	}

	a.logger.Info("subscribed to strategy feed",
		"symbols", strings.Join(symbols, ","), "epoch", epoch)

	pingDone := make(chan struct{})
	defer close(pingDone)
	go a.pingLoop(conn, pingDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			a.closeConn()
			// a watchdog restart bumps the epoch and closes the conn;
			// that is an orderly handover, not a failure
			if a.epoch.Load() != epoch {
				return nil
			}
			return fmt.Errorf("error reading strategy feed: %w", err)
		}
		a.handleMessage(message, epoch)
	}
}

func (a *Adapter) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	interval := time.Duration(a.cfg.PingSeconds) * time.Second
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) handleMessage(message []byte, epoch int64) {
	var wire wireDecision
	if err := json.Unmarshal(message, &wire); err != nil {
		a.logger.Debug("dropping malformed feed message", "error", err)
		return
	}
	if wire.Op != "" {
		// subscription acks and pongs share the channel
		return
	}

	dec, ok := wire.toDecision()
	if !ok {
		a.logger.Debug("dropping invalid feed tick", "symbol", wire.Symbol)
		return
	}

	// stale-epoch ticks decoded after a restart are discarded
	if a.epoch.Load() != epoch {
		return
	}

	select {
	case a.out <- dec:
	default:
		a.logger.Warn("decision channel full, dropping tick", "symbol", dec.Symbol)
	}
}

// ==================== WIRE MAPPING ====================

type wireSignal struct {
	ID           string  `json:"id"`
	Side         string  `json:"side"`
	Kind         string  `json:"kind"`
	EntryType    string  `json:"entryType"`
	Entry        float64 `json:"entry"`
	StopLoss     float64 `json:"stopLoss"`
	TakeProfit   float64 `json:"takeProfit"`
	TriggerPrice float64 `json:"triggerPrice"`
	Message      string  `json:"message"`
	CreatedAtMs  int64   `json:"createdAt"`
}

type wireDecision struct {
	Op               string      `json:"op"`
	Symbol           string      `json:"symbol"`
	HigherTrend      string      `json:"higherTrend"`
	LowerTrend       string      `json:"lowerTrend"`
	ADX              float64     `json:"adx"`
	Aligned          int         `json:"aligned"`
	Halted           bool        `json:"halted"`
	Price            float64     `json:"price"`
	EMAFast          float64     `json:"emaFast"`
	EMASlow          float64     `json:"emaSlow"`
	ATR              float64     `json:"atr"`
	ATRPercent       float64     `json:"atrPercent"`
	VolumePercentile float64     `json:"volumePercentile"`
	PullbackOK       bool        `json:"pullbackOk"`
	BreakOK          bool        `json:"breakOk"`
	TickMs           int64       `json:"tick"`
	Signal           *wireSignal `json:"signal"`
}

func parseTrend(s string) (coordinator.Trend, bool) {
	switch strings.ToUpper(s) {
	case "UP":
		return coordinator.TrendUp, true
	case "DOWN":
		return coordinator.TrendDown, true
	case "", "NONE":
		return coordinator.TrendNone, true
	}
	return coordinator.TrendNone, false
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// toDecision validates and converts one wire tick. Rows with broken
// numerics or unknown enums are rejected as a unit; a tick with a
// broken embedded signal is kept with the signal stripped.
func (w wireDecision) toDecision() (coordinator.Decision, bool) {
	if w.Symbol == "" || w.Price <= 0 {
		return coordinator.Decision{}, false
	}
	if !finite(w.Price, w.EMAFast, w.EMASlow, w.ATR, w.ATRPercent, w.VolumePercentile, w.ADX) {
		return coordinator.Decision{}, false
	}

	higher, ok := parseTrend(w.HigherTrend)
	if !ok {
		return coordinator.Decision{}, false
	}
	lower, ok := parseTrend(w.LowerTrend)
	if !ok {
		return coordinator.Decision{}, false
	}

	tick := time.Now()
	if w.TickMs > 0 {
		tick = time.UnixMilli(w.TickMs)
	}

	dec := coordinator.Decision{
		Symbol:           w.Symbol,
		HigherTrend:      higher,
		LowerTrend:       lower,
		ADX:              w.ADX,
		Aligned:          w.Aligned,
		Halted:           w.Halted,
		Price:            w.Price,
		EMAFast:          w.EMAFast,
		EMASlow:          w.EMASlow,
		ATR:              w.ATR,
		ATRPercent:       w.ATRPercent,
		VolumePercentile: w.VolumePercentile,
		PullbackOK:       w.PullbackOK,
		BreakOK:          w.BreakOK,
		Tick:             tick,
	}

	if w.Signal != nil {
		if sig, ok := w.Signal.toSignal(); ok {
			dec.Signal = &sig
		}
	}
	return dec, true
}

func (w wireSignal) toSignal() (coordinator.Signal, bool) {
	if w.ID == "" || w.Entry < 0 || !finite(w.Entry, w.StopLoss, w.TakeProfit, w.TriggerPrice) {
		return coordinator.Signal{}, false
	}

	var side bybit.Side
	switch strings.ToLower(w.Side) {
	case "buy", "long":
		side = bybit.SideBuy
	case "sell", "short":
		side = bybit.SideSell
	default:
		return coordinator.Signal{}, false
	}

	kind := coordinator.SignalKindTrend
	if strings.EqualFold(w.Kind, string(coordinator.SignalKindMeanReversion)) {
		kind = coordinator.SignalKindMeanReversion
	}

	entryType := coordinator.EntryTypeLimit
	switch strings.ToLower(w.EntryType) {
	case "market":
		entryType = coordinator.EntryTypeMarket
	case "limit_maker":
		entryType = coordinator.EntryTypeLimitMaker
	case "conditional":
		entryType = coordinator.EntryTypeConditional
	}

	createdAt := time.Now()
	if w.CreatedAtMs > 0 {
		createdAt = time.UnixMilli(w.CreatedAtMs)
	}

	return coordinator.Signal{
		ID:           w.ID,
		Side:         side,
		Kind:         kind,
		EntryType:    entryType,
		Entry:        w.Entry,
		StopLoss:     w.StopLoss,
		TakeProfit:   w.TakeProfit,
		TriggerPrice: w.TriggerPrice,
		Message:      w.Message,
		CreatedAt:    createdAt,
	}, true
}
