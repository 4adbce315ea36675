package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bybit-trading-bot/internal/bybit"
)

// intentLinkPrefix marks venue orders that originated from this
// coordinator so TTL enforcement never touches foreign orders.
const intentLinkPrefix = "gd-"

// ATR multiples used when a signal arrives without explicit protection
// and the active profile requires synthesized SL/TP.
const (
	synthStopATR   = 1.5
	synthTargetATR = 2.0
)

// DedupeStore persists consumed ids across restarts. Optional; the
// in-process bounded set always applies.
type DedupeStore interface {
	Seen(kind, id string) bool
	Mark(kind, id string)
}

// IntentRecorder persists dispatched intents. Optional.
type IntentRecorder interface {
	RecordIntent(ctx context.Context, intent Intent, orderID string) error
}

// Dispatcher builds and submits order intents for admitted signals,
// guaranteeing at most one in-flight intent per symbol via the
// pending-set and at most one submission per signal id.
type Dispatcher struct {
	client         bybit.Client
	sizer          Sizer
	ttl            time.Duration
	profile        func() string
	strongTrendADX float64
	alignmentCount int
	events         *EventLog
	errors         *ErrorRing
	recorder       IntentRecorder
	dedupe         DedupeStore
	logger         zerolog.Logger

	mu       sync.Mutex
	pending  map[string]time.Time
	consumed *boundedSet
}

// NewDispatcher creates an intent dispatcher
func NewDispatcher(client bybit.Client, sizer Sizer, ttl time.Duration, profile func() string,
	strongTrendADX float64, alignmentCount int,
	events *EventLog, errors *ErrorRing, recorder IntentRecorder, dedupe DedupeStore,
	logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		client:         client,
		sizer:          sizer,
		ttl:            ttl,
		profile:        profile,
		strongTrendADX: strongTrendADX,
		alignmentCount: alignmentCount,
		events:         events,
		errors:         errors,
		recorder:       recorder,
		dedupe:         dedupe,
		logger:         logger,
		pending:        make(map[string]time.Time),
		consumed:       newBoundedSet(8192),
	}
}

// HasPending reports whether an intent is in flight for the symbol
func (d *Dispatcher) HasPending(symbol string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[symbol]
	return ok
}

// PendingCount returns the number of in-flight intents
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Consumed reports whether a signal id has already been acted upon
func (d *Dispatcher) Consumed(signalID string) bool {
	if d.consumed.Contains(signalID) {
		return true
	}
	if d.dedupe != nil && d.dedupe.Seen("signal", signalID) {
		return true
	}
	return false
}

// MarkConsumed records a rejected signal id so the same id is never
// re-evaluated for execution.
func (d *Dispatcher) MarkConsumed(signalID string) {
	d.consumed.Add(signalID)
	if d.dedupe != nil {
		d.dedupe.Mark("signal", signalID)
	}
}

// Dispatch builds and submits exactly one intent for an admitted signal.
// The pending-set entry is added before the asynchronous submission
// starts and released when it finishes, regardless of outcome. A second
// signal for a pending symbol is logged and dropped, never queued.
func (d *Dispatcher) Dispatch(dec Decision, sig Signal, equity float64) {
	if already := d.consumed.Add(sig.ID); already {
		d.logger.Debug().Str("signal_id", sig.ID).Msg("signal already consumed")
		return
	}
	if d.dedupe != nil {
		if d.dedupe.Seen("signal", sig.ID) {
			return
		}
		d.dedupe.Mark("signal", sig.ID)
	}

	symbol := dec.Symbol

	d.mu.Lock()
	if _, inFlight := d.pending[symbol]; inFlight {
		d.mu.Unlock()
		d.events.Add(ActionInfo, symbol+" intent pending")
		d.logger.Warn().Str("symbol", symbol).Str("signal_id", sig.ID).Msg("intent pending, signal dropped")
		return
	}
	d.pending[symbol] = time.Now()
	d.mu.Unlock()

	go func() {
		defer d.release(symbol)
		d.submit(dec, sig, equity)
	}()
}

func (d *Dispatcher) release(symbol string) {
	d.mu.Lock()
	delete(d.pending, symbol)
	d.mu.Unlock()
}

// submit resolves protection and sizing, builds the intent, and places
// the order. Failures abort this signal only; the id stays consumed.
func (d *Dispatcher) submit(dec Decision, sig Signal, equity float64) {
	symbol := dec.Symbol

	stop, target := d.resolveProtection(dec, sig)
	entryType := d.resolveEntryType(dec, sig)

	size, err := d.sizer.Size(symbol, sig.Entry, stop, equity)
	if err != nil {
		d.events.Add(ActionError, fmt.Sprintf("%s sizing failed: %v", symbol, err))
		d.logger.Error().Err(err).Str("symbol", symbol).Str("signal_id", sig.ID).Msg("sizing failed")
		return
	}

	now := time.Now()
	intent := Intent{
		ID:         intentLinkPrefix + uuid.New().String(),
		CreatedAt:  now,
		Profile:    d.profile(),
		Symbol:     symbol,
		Side:       sig.Side,
		EntryType:  entryType,
		Entry:      sig.Entry,
		StopLoss:   stop,
		TakeProfit: target,
		Quantity:   size.Quantity,
		ExpiresAt:  now.Add(d.ttl),
		Tags:       []string{string(sig.Kind), sig.Message},
	}

	req := bybit.OrderRequest{
		Symbol:      symbol,
		Side:        sig.Side,
		OrderType:   bybit.OrderTypeLimit,
		Qty:         size.Quantity,
		Price:       sig.Entry,
		StopLoss:    stop,
		TakeProfit:  target,
		OrderLinkID: intent.ID,
		TimeInForce: bybit.TimeInForceGTC,
	}
	switch entryType {
	case EntryTypeMarket:
		req.OrderType = bybit.OrderTypeMarket
		req.Price = 0
	case EntryTypeLimitMaker:
		req.TimeInForce = bybit.TimeInForcePostOnly
	case EntryTypeConditional:
		req.TriggerPrice = sig.TriggerPrice
	}

	ack, err := d.client.PlaceOrder(req)
	if err != nil {
		d.errors.Record("dispatch", err)
		d.events.Add(ActionError, fmt.Sprintf("%s order submission failed: %v", symbol, err))
		d.logger.Error().Err(err).Str("symbol", symbol).Str("intent_id", intent.ID).Msg("order submission failed")
		return
	}

	d.events.Add(ActionOrder, fmt.Sprintf("%s %s %s qty=%g entry=%g sl=%g tp=%g",
		symbol, sig.Side, entryType, size.Quantity, sig.Entry, stop, target))
	d.logger.Info().
		Str("symbol", symbol).
		Str("intent_id", intent.ID).
		Str("order_id", ack.OrderID).
		Float64("qty", size.Quantity).
		Float64("notional", size.Notional).
		Msg("intent submitted")

	if d.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.recorder.RecordIntent(ctx, intent, ack.OrderID); err != nil {
			d.logger.Warn().Err(err).Str("intent_id", intent.ID).Msg("intent persistence failed")
		}
	}
}

// resolveProtection fills SL/TP from ATR-based defaults when the signal
// omits them. The structural-stop gate already guarantees a stop for
// admitted signals, so synthesis is a fallback for profiles that resolve
// protection here.
func (d *Dispatcher) resolveProtection(dec Decision, sig Signal) (stop, target float64) {
	stop = sig.StopLoss
	target = sig.TakeProfit

	if stop <= 0 && dec.ATR > 0 {
		if sig.Side == bybit.SideBuy {
			stop = sig.Entry - synthStopATR*dec.ATR
		} else {
			stop = sig.Entry + synthStopATR*dec.ATR
		}
	}
	if target <= 0 && dec.ATR > 0 {
		if sig.Side == bybit.SideBuy {
			target = sig.Entry + synthTargetATR*dec.ATR
		} else {
			target = sig.Entry - synthTargetATR*dec.ATR
		}
	}
	return stop, target
}

// resolveEntryType downgrades market entries to limit unless the
// decision shows a strong-trend expansion (strength plus a confirmed
// break), which is the only condition worth paying taker fees for.
func (d *Dispatcher) resolveEntryType(dec Decision, sig Signal) EntryType {
	if sig.EntryType != EntryTypeMarket {
		return sig.EntryType
	}
	if dec.StrongTrend(d.strongTrendADX, d.alignmentCount) && dec.BreakOK {
		return EntryTypeMarket
	}
	return EntryTypeLimit
}

// ExpireStaleEntries cancels coordinator-originated entry orders that
// outlived the intent TTL. Foreign orders (no intent link prefix) are
// never touched. Returns the number of cancels issued.
func (d *Dispatcher) ExpireStaleEntries(orders map[string]bybit.Order, now time.Time) int {
	cancelled := 0
	for _, order := range orders {
		if !order.IsEntry() || order.Status != bybit.OrderStatusNew {
			continue
		}
		if !strings.HasPrefix(order.OrderLinkID, intentLinkPrefix) {
			continue
		}
		if order.CreatedAt.IsZero() || now.Sub(order.CreatedAt) <= d.ttl {
			continue
		}
		if err := d.client.CancelOrder(order.Symbol, order.OrderID); err != nil {
			d.errors.Record("intent-ttl", err)
			continue
		}
		d.events.Add(ActionOrder, fmt.Sprintf("%s entry %s expired after %s, cancelled", order.Symbol, order.OrderID, d.ttl))
		cancelled++
	}
	return cancelled
}
