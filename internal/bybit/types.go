package bybit

import (
	"math"
	"strconv"
	"time"
)

// ==================== ENUMS ====================

// Side represents order/position direction
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite returns the reverse side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents the execution type of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// OrderStatus represents venue-reported order status
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
	OrderStatusUntriggered     OrderStatus = "Untriggered"
)

// TimeInForce represents order time-in-force options
type TimeInForce string

const (
	TimeInForceGTC      TimeInForce = "GTC"
	TimeInForceIOC      TimeInForce = "IOC"
	TimeInForceFOK      TimeInForce = "FOK"
	TimeInForcePostOnly TimeInForce = "PostOnly"
)

// StopOrderType distinguishes protective orders from plain entries
type StopOrderType string

const (
	StopOrderTypeNone         StopOrderType = ""
	StopOrderTypeStopLoss     StopOrderType = "StopLoss"
	StopOrderTypeTakeProfit   StopOrderType = "TakeProfit"
	StopOrderTypeTrailingStop StopOrderType = "TrailingStop"
)

// PositionIdx identifies the position slot on hedge-mode accounts
type PositionIdx int

const (
	PositionIdxOneWay PositionIdx = 0
	PositionIdxLong   PositionIdx = 1
	PositionIdxShort  PositionIdx = 2
)

// ==================== TYPED ROWS ====================

// Position is a validated mirror of a venue position row
type Position struct {
	Symbol        string
	Side          Side
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	StopLoss      float64
	TakeProfit    float64
	TrailingStop  float64 // 0 when no trailing stop is set at the venue
	ActivePrice   float64
	UnrealizedPnl float64
	PositionIdx   PositionIdx
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Order is a validated mirror of a venue order row
type Order struct {
	OrderID       string
	OrderLinkID   string
	Symbol        string
	Side          Side
	OrderType     OrderType
	Qty           float64
	Price         float64
	TriggerPrice  float64
	Status        OrderStatus
	ReduceOnly    bool
	StopOrderType StopOrderType
	CreatedAt     time.Time
}

// Key returns the order's identity for diffing: order id with a
// client link id fallback for rows the venue reports without one.
func (o Order) Key() string {
	if o.OrderID != "" {
		return o.OrderID
	}
	return o.OrderLinkID
}

// IsEntry reports whether the order opens exposure: not reduce-only
// and not a protective (TP/SL/trailing) order.
func (o Order) IsEntry() bool {
	return !o.ReduceOnly && o.StopOrderType == StopOrderTypeNone
}

// Execution is a validated mirror of a venue fill row
type Execution struct {
	ExecID   string
	OrderID  string
	Symbol   string
	Side     Side
	Price    float64
	Qty      float64
	Fee      float64
	ExecTime time.Time
}

// WalletBalance is the slow-cadence account snapshot
type WalletBalance struct {
	TotalEquity      float64
	AvailableBalance float64
	WalletBalance    float64
	UpdatedAt        time.Time
}

// ClosedPnl is one realized-PnL record from the venue
type ClosedPnl struct {
	ID        string
	Symbol    string
	Side      Side
	ClosedPnl float64
	Qty       float64
	ClosedAt  time.Time
}

// ReconcileReport is the venue-side account summary used to cross-check
// the local mirrors on the slow cadence
type ReconcileReport struct {
	OpenPositionCount int
	OpenOrderCount    int
	TotalPositionIM   float64
	GeneratedAt       time.Time
}

// OrderAck is the venue acknowledgement for a placed order
type OrderAck struct {
	OrderID     string
	OrderLinkID string
}

// ==================== REQUESTS ====================

// OrderRequest carries the parameters for placing an order
type OrderRequest struct {
	Symbol       string
	Side         Side
	OrderType    OrderType
	Qty          float64
	Price        float64 // required for limit orders
	TriggerPrice float64 // set for conditional entries
	TimeInForce  TimeInForce
	ReduceOnly   bool
	StopLoss     float64
	TakeProfit   float64
	OrderLinkID  string
	PositionIdx  PositionIdx
}

// TradingStopRequest carries the parameters for a protection update
type TradingStopRequest struct {
	Symbol       string
	PositionIdx  PositionIdx
	StopLoss     float64
	TakeProfit   float64
	TrailingStop float64 // trailing distance in price units
	ActivePrice  float64 // price at which the trailing stop arms
}

// ==================== RAW ROWS ====================

// The venue encodes every numeric field as a string and omits absent
// values as "". Raw rows are parsed exactly once, here; rows with
// unusable numerics are dropped rather than propagated.

type rawPosition struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	StopLoss      string `json:"stopLoss"`
	TakeProfit    string `json:"takeProfit"`
	TrailingStop  string `json:"trailingStop"`
	ActivePrice   string `json:"activePrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	PositionIdx   int    `json:"positionIdx"`
	CreatedTime   string `json:"createdTime"`
	UpdatedTime   string `json:"updatedTime"`
}

type rawOrder struct {
	OrderID       string `json:"orderId"`
	OrderLinkID   string `json:"orderLinkId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	OrderType     string `json:"orderType"`
	Qty           string `json:"qty"`
	Price         string `json:"price"`
	TriggerPrice  string `json:"triggerPrice"`
	OrderStatus   string `json:"orderStatus"`
	ReduceOnly    bool   `json:"reduceOnly"`
	StopOrderType string `json:"stopOrderType"`
	CreatedTime   string `json:"createdTime"`
}

type rawExecution struct {
	ExecID    string `json:"execId"`
	OrderID   string `json:"orderId"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	ExecPrice string `json:"execPrice"`
	ExecQty   string `json:"execQty"`
	ExecFee   string `json:"execFee"`
	ExecTime  string `json:"execTime"`
}

type rawClosedPnl struct {
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	ClosedPnl   string `json:"closedPnl"`
	Qty         string `json:"qty"`
	UpdatedTime string `json:"updatedTime"`
}

// parseFloat parses a venue-encoded decimal. Empty strings map to 0;
// unparsable or non-finite values are reported via ok=false.
func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseMillis parses a millisecond-epoch timestamp string
func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (r rawPosition) toPosition() (Position, bool) {
	size, ok := parseFloat(r.Size)
	if !ok {
		return Position{}, false
	}
	entry, ok := parseFloat(r.AvgPrice)
	if !ok {
		return Position{}, false
	}
	mark, _ := parseFloat(r.MarkPrice)
	sl, _ := parseFloat(r.StopLoss)
	tp, _ := parseFloat(r.TakeProfit)
	ts, _ := parseFloat(r.TrailingStop)
	ap, _ := parseFloat(r.ActivePrice)
	upnl, _ := parseFloat(r.UnrealisedPnl)

	return Position{
		Symbol:        r.Symbol,
		Side:          Side(r.Side),
		Size:          size,
		EntryPrice:    entry,
		MarkPrice:     mark,
		StopLoss:      sl,
		TakeProfit:    tp,
		TrailingStop:  ts,
		ActivePrice:   ap,
		UnrealizedPnl: upnl,
		PositionIdx:   PositionIdx(r.PositionIdx),
		CreatedAt:     parseMillis(r.CreatedTime),
		UpdatedAt:     parseMillis(r.UpdatedTime),
	}, true
}

func (r rawOrder) toOrder() (Order, bool) {
	qty, ok := parseFloat(r.Qty)
	if !ok {
		return Order{}, false
	}
	price, ok := parseFloat(r.Price)
	if !ok {
		return Order{}, false
	}
	trigger, _ := parseFloat(r.TriggerPrice)

	return Order{
		OrderID:       r.OrderID,
		OrderLinkID:   r.OrderLinkID,
		Symbol:        r.Symbol,
		Side:          Side(r.Side),
		OrderType:     OrderType(r.OrderType),
		Qty:           qty,
		Price:         price,
		TriggerPrice:  trigger,
		Status:        OrderStatus(r.OrderStatus),
		ReduceOnly:    r.ReduceOnly,
		StopOrderType: StopOrderType(r.StopOrderType),
		CreatedAt:     parseMillis(r.CreatedTime),
	}, true
}

func (r rawExecution) toExecution() (Execution, bool) {
	price, ok := parseFloat(r.ExecPrice)
	if !ok {
		return Execution{}, false
	}
	qty, ok := parseFloat(r.ExecQty)
	if !ok {
		return Execution{}, false
	}
	fee, _ := parseFloat(r.ExecFee)

	return Execution{
		ExecID:   r.ExecID,
		OrderID:  r.OrderID,
		Symbol:   r.Symbol,
		Side:     Side(r.Side),
		Price:    price,
		Qty:      qty,
		Fee:      fee,
		ExecTime: parseMillis(r.ExecTime),
	}, true
}

func (r rawClosedPnl) toClosedPnl() (ClosedPnl, bool) {
	pnl, ok := parseFloat(r.ClosedPnl)
	if !ok {
		return ClosedPnl{}, false
	}
	qty, _ := parseFloat(r.Qty)

	closedAt := parseMillis(r.UpdatedTime)
	return ClosedPnl{
		// The venue has no dedicated record id; the closing order id plus
		// timestamp is unique per realized fill batch.
		ID:        r.OrderID + ":" + r.UpdatedTime,
		Symbol:    r.Symbol,
		Side:      Side(r.Side),
		ClosedPnl: pnl,
		Qty:       qty,
		ClosedAt:  closedAt,
	}, true
}
