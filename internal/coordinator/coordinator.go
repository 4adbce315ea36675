package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/logging"
)

// FeedSource is the strategy feed boundary. The adapter publishes one
// Decision per symbol per tick; the coordinator consumes them in a
// single goroutine so the decision map has exactly one writer.
type FeedSource interface {
	Decisions() <-chan Decision
	Restart()
	Stop()
}

// Recorder persists trade artifacts. Optional; a nil Recorder disables
// persistence without touching the trading path.
type Recorder interface {
	IntentRecorder
	RecordClosedPnl(ctx context.Context, rec bybit.ClosedPnl) error
}

// Coordinator owns the reconciliation loops, the admission pipeline and
// all mutable trading state. Construct with New, drive with Start/Stop.
// Every mutable structure has exactly one writing task; other tasks read
// snapshots through the accessors.
type Coordinator struct {
	cfg      *config.Config
	client   bybit.Client
	feed     FeedSource
	engine   *Engine
	dispatch *Dispatcher
	sync     *Synchronizer
	bias     *BiasEnforcer
	events   *EventLog
	errRing  *ErrorRing
	recorder Recorder
	logger   *logging.Logger

	mu          sync.RWMutex
	settings    Settings
	positions   map[string]bybit.Position
	orders      map[string]bybit.Order
	executions  []bybit.Execution
	wallet      *bybit.WalletBalance
	decisions   map[string]Decision
	lastTick    map[string]time.Time
	gateReports map[string]GateReport
	lastLossAt  map[string]time.Time
	dailyPnl    float64
	dailyPnlDay time.Time
	fastHealthy bool
	slowHealthy bool
	systemError string

	seenPnl *boundedSet

	busyFast atomic.Bool
	busySlow atomic.Bool

	lastFeedRestart time.Time

	pollNow  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	runMu    sync.Mutex
}

// New creates a coordinator. All collaborators are injected so tests can
// substitute the venue client and feed.
func New(cfg *config.Config, client bybit.Client, feed FeedSource,
	engine *Engine, dispatch *Dispatcher, protSync *Synchronizer, bias *BiasEnforcer,
	events *EventLog, errRing *ErrorRing, recorder Recorder, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		client:      client,
		feed:        feed,
		engine:      engine,
		dispatch:    dispatch,
		sync:        protSync,
		bias:        bias,
		events:      events,
		errRing:     errRing,
		recorder:    recorder,
		logger:      logger,
		settings:    SettingsFromConfig(cfg),
		positions:   make(map[string]bybit.Position),
		orders:      make(map[string]bybit.Order),
		decisions:   make(map[string]Decision),
		lastTick:    make(map[string]time.Time),
		gateReports: make(map[string]GateReport),
		lastLossAt:  make(map[string]time.Time),
		seenPnl:     newBoundedSet(4096),
		pollNow:     make(chan struct{}, 1),
	}
}

// SettingsFromConfig builds the initial operator settings view
func SettingsFromConfig(cfg *config.Config) Settings {
	overrides := make(map[GateID]bool, len(cfg.GatesConfig.Overrides))
	for name, disabled := range cfg.GatesConfig.Overrides {
		overrides[GateID(name)] = disabled
	}
	return Settings{
		RiskMode:         cfg.RiskConfig.Mode,
		TrendMode:        cfg.GatesConfig.TrendMode,
		SoftGateEnabled:  cfg.GatesConfig.SoftGateEnabled,
		MaxOpenPositions: cfg.CoordinatorConfig.MaxOpenPositions,
		MaxOpenOrders:    cfg.CoordinatorConfig.MaxOpenOrders,
		Symbols:          append([]string(nil), cfg.CoordinatorConfig.Symbols...),
		SessionEnabled:   cfg.GatesConfig.Session.Enabled,
		SessionStartHour: cfg.GatesConfig.Session.StartHour,
		SessionEndHour:   cfg.GatesConfig.Session.EndHour,
		GateOverrides:    overrides,
	}
}

// Start launches the reconciliation loops, the heartbeat and the feed
// consumer. Safe to call once per instance.
func (c *Coordinator) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.stopChan = make(chan struct{})

	c.logger.Info("starting coordinator",
		"symbols", strings.Join(c.GetSettings().Symbols, ","),
		"reference", c.cfg.CoordinatorConfig.ReferenceSymbol,
		"max_positions", c.GetSettings().MaxOpenPositions)

	c.wg.Add(5)
	go c.runFastLoop()
	go c.runSlowLoop()
	go c.runProtectionSync()
	go c.runHeartbeat()
	go c.runFeedConsumer()

	return nil
}

// Stop terminates the loops and tears down the feed subscription
func (c *Coordinator) Stop() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return fmt.Errorf("coordinator not running")
	}
	c.running = false
	close(c.stopChan)
	c.feed.Stop()
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
	return nil
}

// IsRunning reports whether the loops are active
func (c *Coordinator) IsRunning() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

// ==================== FAST LOOP ====================

func (c *Coordinator) runFastLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.CoordinatorConfig.FastPollSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.fastTick()
		case <-c.pollNow:
			c.fastTick()
		}
	}
}

// fastTick fetches positions, orders and executions concurrently and
// processes whatever succeeded. A tick firing while the previous one is
// still in flight is skipped; the busy guard is the only defense against
// a slow venue, there is no cancellation of in-flight calls.
func (c *Coordinator) fastTick() {
	if !c.busyFast.CompareAndSwap(false, true) {
		return
	}
	defer c.busyFast.Store(false)

	var (
		positions []bybit.Position
		orders    []bybit.Order
		execs     []bybit.Execution
		posErr    error
		ordErr    error
		execErr   error
		fanout    sync.WaitGroup
	)

	fanout.Add(3)
	go func() { defer fanout.Done(); positions, posErr = c.client.GetPositions() }()
	go func() { defer fanout.Done(); orders, ordErr = c.client.GetOpenOrders() }()
	go func() { defer fanout.Done(); execs, execErr = c.client.GetRecentExecutions(50) }()
	fanout.Wait()

	now := time.Now()

	// Each result is processed independently: a position failure never
	// blocks order diffing and vice versa.
	if posErr != nil {
		c.errRing.Record("fast/positions", posErr)
	} else {
		c.applyPositions(positions)
	}

	if ordErr != nil {
		c.errRing.Record("fast/orders", ordErr)
	} else {
		c.applyOrders(orders, now)
	}

	if execErr != nil {
		c.errRing.Record("fast/executions", execErr)
	} else {
		c.mu.Lock()
		c.executions = execs
		c.mu.Unlock()
	}

	healthy := posErr == nil && ordErr == nil && execErr == nil
	c.setLoopHealth(true, healthy, firstErr(posErr, ordErr, execErr))

	if posErr == nil {
		snapshot := c.PositionsMap()
		c.sync.Sync(snapshot, c.atrSnapshot(), c.GetSettings().RiskMode, now)
		if ordErr == nil {
			c.mu.RLock()
			ordersCopy := copyOrders(c.orders)
			decisionsCopy := copyDecisions(c.decisions)
			c.mu.RUnlock()
			c.bias.Enforce(snapshot, ordersCopy, decisionsCopy, now)
		}
	}
}

func (c *Coordinator) applyPositions(fresh []bybit.Position) {
	c.mu.Lock()
	changes, next := DiffPositions(c.positions, fresh)
	c.positions = next
	c.mu.Unlock()

	for _, change := range changes {
		c.events.Add(ActionInfo, string(change.Kind)+" "+change.Detail)
	}
}

func (c *Coordinator) applyOrders(fresh []bybit.Order, now time.Time) {
	c.mu.Lock()
	changes, next := DiffOrders(c.orders, fresh)
	c.orders = next
	c.mu.Unlock()

	for _, change := range changes {
		c.events.Add(ActionInfo, string(change.Kind)+" "+change.Detail)
	}

	c.dispatch.ExpireStaleEntries(next, now)
}

// ==================== SLOW LOOP ====================

func (c *Coordinator) runSlowLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.CoordinatorConfig.SlowPollSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.slowTick()
		}
	}
}

func (c *Coordinator) slowTick() {
	if !c.busySlow.CompareAndSwap(false, true) {
		return
	}
	defer c.busySlow.Store(false)

	var firstFailure error

	wallet, err := c.client.GetWalletBalance()
	if err != nil {
		c.errRing.Record("slow/wallet", err)
		firstFailure = err
	} else {
		c.mu.Lock()
		c.wallet = wallet
		c.mu.Unlock()
	}

	lookback := time.Duration(c.cfg.CoordinatorConfig.ClosedPnlLookbackHours) * time.Hour
	records, err := c.client.GetClosedPnl(time.Now().Add(-lookback), 100)
	if err != nil {
		c.errRing.Record("slow/closed-pnl", err)
		if firstFailure == nil {
			firstFailure = err
		}
	} else {
		c.absorbClosedPnl(records)
	}

	report, err := c.client.GetReconcileReport()
	if err != nil {
		c.errRing.Record("slow/reconcile", err)
		if firstFailure == nil {
			firstFailure = err
		}
	} else {
		c.checkReconcile(report)
	}

	c.setLoopHealth(false, firstFailure == nil, firstFailure)
}

// absorbClosedPnl records new realized-PnL rows: daily aggregation plus
// the per-symbol most-recent-loss timestamp that drives the cooldown
// gate. Records are deduplicated by id against a bounded seen-set.
func (c *Coordinator) absorbClosedPnl(records []bybit.ClosedPnl) {
	day := time.Now().UTC().Truncate(24 * time.Hour)

	c.mu.Lock()
	if !c.dailyPnlDay.Equal(day) {
		c.dailyPnl = 0
		c.dailyPnlDay = day
	}
	c.mu.Unlock()

	for _, rec := range records {
		if c.seenPnl.Add(rec.ID) {
			continue
		}

		c.mu.Lock()
		if rec.ClosedAt.After(day) || rec.ClosedAt.Equal(day) {
			c.dailyPnl += rec.ClosedPnl
		}
		// Batches arrive newest-first; keep only the most recent loss
		// so an older row never shortens the cooldown window.
		if rec.ClosedPnl < 0 && rec.ClosedAt.After(c.lastLossAt[rec.Symbol]) {
			c.lastLossAt[rec.Symbol] = rec.ClosedAt
		}
		c.mu.Unlock()

		c.events.Add(ActionInfo, fmt.Sprintf("closed pnl %s %.4f", rec.Symbol, rec.ClosedPnl))

		if c.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.recorder.RecordClosedPnl(ctx, rec); err != nil {
				c.logger.Warn("closed pnl persistence failed", "id", rec.ID, "error", err)
			}
			cancel()
		}
	}
}

func (c *Coordinator) checkReconcile(report *bybit.ReconcileReport) {
	c.mu.RLock()
	localPositions := len(c.positions)
	localOrders := len(c.orders)
	c.mu.RUnlock()

	if report.OpenPositionCount != localPositions || report.OpenOrderCount != localOrders {
		c.logger.Warn("mirror drift against venue report",
			"venue_positions", report.OpenPositionCount, "local_positions", localPositions,
			"venue_orders", report.OpenOrderCount, "local_orders", localOrders)
	}
}

// setLoopHealth updates per-loop health and the aggregate system error,
// which clears only when both loops are currently healthy.
func (c *Coordinator) setLoopHealth(fast bool, healthy bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fast {
		c.fastHealthy = healthy
	} else {
		c.slowHealthy = healthy
	}

	if err != nil {
		c.systemError = err.Error()
	} else if c.fastHealthy && c.slowHealthy {
		c.systemError = ""
	}
}

// ==================== PROTECTION RE-SYNC ====================

func (c *Coordinator) runProtectionSync() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.CoordinatorConfig.ProtectionSyncSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.sync.Sync(c.PositionsMap(), c.atrSnapshot(), c.GetSettings().RiskMode, time.Now())
		}
	}
}

// atrSnapshot copies each symbol's latest ATR reading for the
// protection synchronizer's volatility offset
func (c *Coordinator) atrSnapshot() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	atr := make(map[string]float64, len(c.decisions))
	for symbol, dec := range c.decisions {
		if dec.ATR > 0 {
			atr[symbol] = dec.ATR
		}
	}
	return atr
}

// ==================== HEARTBEAT ====================

func (c *Coordinator) runHeartbeat() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.CoordinatorConfig.HeartbeatSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.heartbeat()
		}
	}
}

// heartbeat logs the SCAN/MANAGE summary and watches feed staleness.
// A stale feed triggers a subscription restart, rate-limited so a dead
// upstream does not cause reconnect churn.
func (c *Coordinator) heartbeat() {
	phases := c.Phases()

	var scan, manage []string
	for symbol, phase := range phases {
		if phase == PhaseManage {
			manage = append(manage, symbol)
		} else {
			scan = append(scan, symbol)
		}
	}
	sort.Strings(scan)
	sort.Strings(manage)

	c.logger.Info("heartbeat",
		"scan", strings.Join(scan, ","),
		"manage", strings.Join(manage, ","),
		"pending_intents", c.dispatch.PendingCount(),
		"system_error", c.SystemError())

	age := c.FeedAge()
	staleAfter := time.Duration(c.cfg.CoordinatorConfig.FeedStaleSeconds) * time.Second
	restartGap := time.Duration(c.cfg.CoordinatorConfig.FeedRestartGapSeconds) * time.Second

	if age > staleAfter {
		c.mu.Lock()
		due := time.Since(c.lastFeedRestart) > restartGap
		if due {
			c.lastFeedRestart = time.Now()
		}
		c.mu.Unlock()

		if due {
			c.logger.Warn("strategy feed stale, restarting subscription", "age", age.Round(time.Second))
			c.events.Add(ActionError, "strategy feed stale, subscription restarted")
			c.feed.Restart()
		}
	}
}

// ==================== FEED CONSUMER ====================

func (c *Coordinator) runFeedConsumer() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopChan:
			return
		case dec, ok := <-c.feed.Decisions():
			if !ok {
				return
			}
			c.onDecision(dec)
		}
	}
}

// onDecision stores the tick, refreshes the symbol's gate diagnostics,
// and, when an unconsumed signal is present, evaluates admission
// synchronously and hands the signal to the dispatcher or rejects it.
func (c *Coordinator) onDecision(dec Decision) {
	now := time.Now()
	set := c.GetSettings()

	c.mu.Lock()
	c.decisions[dec.Symbol] = dec
	c.lastTick[dec.Symbol] = now
	view := c.accountViewLocked(dec.Symbol)
	c.mu.Unlock()

	report := c.engine.Evaluate(dec, view, set, now)

	c.mu.Lock()
	c.gateReports[dec.Symbol] = report
	c.mu.Unlock()

	sig := dec.Signal
	if sig == nil || c.dispatch.Consumed(sig.ID) {
		return
	}

	if !report.Admitted {
		c.dispatch.MarkConsumed(sig.ID)
		c.events.Add(ActionRiskBlock, dec.Symbol+" "+report.BlockSummary())
		c.logger.Info("signal rejected", "symbol", dec.Symbol, "signal_id", sig.ID,
			"reasons", strings.Join(report.HardBlockReasons, " · "),
			"soft_score", report.SoftScore, "soft_pass", report.SoftPass)
		return
	}

	c.dispatch.Dispatch(dec, *sig, c.Equity())
}

// accountViewLocked assembles the gate engine's exposure snapshot.
// Caller holds c.mu.
func (c *Coordinator) accountViewLocked(symbol string) AccountView {
	view := AccountView{
		OpenPositions:  len(c.positions),
		PendingIntents: c.dispatch.PendingCount(),
		LastLossAt:     c.lastLossAt[symbol],
	}
	_, view.HasPosition = c.positions[symbol]
	view.HasPendingIntent = c.dispatch.HasPending(symbol)

	for _, order := range c.orders {
		if !order.IsEntry() || order.Status != bybit.OrderStatusNew {
			continue
		}
		view.EntryOrders++
		if order.Symbol == symbol {
			view.HasEntryOrder = true
		}
	}
	return view
}

// ==================== MANUAL OPERATIONS ====================

// ClosePosition closes an open position reduce-only at market and
// triggers an out-of-cadence fast poll.
func (c *Coordinator) ClosePosition(symbol string) error {
	c.mu.RLock()
	pos, ok := c.positions[symbol]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}

	_, err := c.client.PlaceOrder(bybit.OrderRequest{
		Symbol:      symbol,
		Side:        pos.Side.Opposite(),
		OrderType:   bybit.OrderTypeMarket,
		Qty:         pos.Size,
		ReduceOnly:  true,
		PositionIdx: pos.PositionIdx,
	})
	if err != nil {
		return fmt.Errorf("manual close failed: %w", err)
	}

	c.events.Add(ActionManual, fmt.Sprintf("%s position closed manually", symbol))
	c.RequestRefresh()
	return nil
}

// CancelOrder cancels an order and triggers an out-of-cadence fast poll
func (c *Coordinator) CancelOrder(symbol, orderID string) error {
	if err := c.client.CancelOrder(symbol, orderID); err != nil {
		return fmt.Errorf("manual cancel failed: %w", err)
	}
	c.events.Add(ActionManual, fmt.Sprintf("%s order %s cancelled manually", symbol, orderID))
	c.RequestRefresh()
	return nil
}

// RequestRefresh schedules an immediate fast poll without waiting for
// the next tick. Non-blocking; a refresh already queued is enough.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.pollNow <- struct{}{}:
	default:
	}
}

// ==================== ACCESSORS ====================

// GetSettings returns a copy of the operator settings
func (c *Coordinator) GetSettings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.settings
	set.Symbols = append([]string(nil), c.settings.Symbols...)
	set.GateOverrides = make(map[GateID]bool, len(c.settings.GateOverrides))
	for id, disabled := range c.settings.GateOverrides {
		set.GateOverrides[id] = disabled
	}
	return set
}

// UpdateSettings replaces the operator settings. A symbol-set change
// tears down and recreates the strategy feed subscription.
func (c *Coordinator) UpdateSettings(set Settings) {
	c.mu.Lock()
	symbolsChanged := !equalStrings(c.settings.Symbols, set.Symbols)
	c.settings = set
	c.mu.Unlock()

	c.logger.Info("settings updated", "risk_mode", set.RiskMode, "trend_mode", set.TrendMode)
	if symbolsChanged {
		c.feed.Restart()
	}
}

// SetGateOverride flips one gate's disabled state
func (c *Coordinator) SetGateOverride(id GateID, disabled bool) {
	c.mu.Lock()
	if c.settings.GateOverrides == nil {
		c.settings.GateOverrides = make(map[GateID]bool)
	}
	c.settings.GateOverrides[id] = disabled
	c.mu.Unlock()
	c.logger.Info("gate override changed", "gate", string(id), "disabled", disabled)
}

// PositionsMap returns a copy of the open position mirror
func (c *Coordinator) PositionsMap() map[string]bybit.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bybit.Position, len(c.positions))
	for k, v := range c.positions {
		out[k] = v
	}
	return out
}

// OrdersMap returns a copy of the open order mirror
func (c *Coordinator) OrdersMap() map[string]bybit.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyOrders(c.orders)
}

// Executions returns the most recent fill snapshot
func (c *Coordinator) Executions() []bybit.Execution {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]bybit.Execution, len(c.executions))
	copy(out, c.executions)
	return out
}

// GateReports returns the latest per-symbol gate diagnostics
func (c *Coordinator) GateReports() map[string]GateReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]GateReport, len(c.gateReports))
	for k, v := range c.gateReports {
		out[k] = v
	}
	return out
}

// Events returns up to n rolling log entries, most recent first
func (c *Coordinator) Events(n int) []EventEntry {
	return c.events.Recent(n)
}

// Errors returns the rolling error list, most recent first
func (c *Coordinator) Errors() []ErrorEntry {
	return c.errRing.Recent()
}

// Equity returns the last known total equity, 0 when no wallet snapshot
// has been received yet.
func (c *Coordinator) Equity() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wallet == nil {
		return 0
	}
	return c.wallet.TotalEquity
}

// Wallet returns the last wallet snapshot, nil before the first slow tick
func (c *Coordinator) Wallet() *bybit.WalletBalance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.wallet == nil {
		return nil
	}
	w := *c.wallet
	return &w
}

// DailyPnl returns today's realized PnL aggregate
func (c *Coordinator) DailyPnl() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dailyPnl
}

// SystemError returns the aggregate error string, empty when both loops
// reported a fully successful tick.
func (c *Coordinator) SystemError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systemError
}

// LoopHealth reports the per-loop last-known-good flags
func (c *Coordinator) LoopHealth() (fast, slow bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fastHealthy, c.slowHealthy
}

// FeedAge returns the age of the newest decision tick across all
// symbols. Very large before the first tick arrives.
func (c *Coordinator) FeedAge() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var newest time.Time
	for _, at := range c.lastTick {
		if at.After(newest) {
			newest = at
		}
	}
	if newest.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return time.Since(newest)
}

// Phases classifies each configured symbol as SCAN or MANAGE
func (c *Coordinator) Phases() map[string]SymbolPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]SymbolPhase, len(c.settings.Symbols))
	for _, symbol := range c.settings.Symbols {
		if _, open := c.positions[symbol]; open {
			out[symbol] = PhaseManage
		} else {
			out[symbol] = PhaseScan
		}
	}
	return out
}

// PendingIntents returns the number of in-flight intents
func (c *Coordinator) PendingIntents() int {
	return c.dispatch.PendingCount()
}

// VenueLatency returns the round-trip time of the most recent venue call
func (c *Coordinator) VenueLatency() time.Duration {
	return c.client.LastLatency()
}

// ==================== HELPERS ====================

func copyOrders(in map[string]bybit.Order) map[string]bybit.Order {
	out := make(map[string]bybit.Order, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyDecisions(in map[string]Decision) map[string]Decision {
	out := make(map[string]Decision, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
