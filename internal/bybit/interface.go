package bybit

import "time"

// Client is the venue surface the coordinator depends on. The production
// implementation is ClientImpl; tests substitute a mock.
type Client interface {
	// Account state
	GetPositions() ([]Position, error)
	GetOpenOrders() ([]Order, error)
	GetRecentExecutions(limit int) ([]Execution, error)
	GetWalletBalance() (*WalletBalance, error)
	GetClosedPnl(since time.Time, limit int) ([]ClosedPnl, error)
	GetReconcileReport() (*ReconcileReport, error)

	// Trading
	PlaceOrder(req OrderRequest) (*OrderAck, error)
	CancelOrder(symbol, orderID string) error
	SetTradingStop(req TradingStopRequest) error

	// LastLatency returns the round-trip time of the most recent call
	LastLatency() time.Duration
}
