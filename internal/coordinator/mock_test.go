package coordinator

import (
	"sync"
	"time"

	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/logging"
)

// mockClient is a hand-rolled bybit.Client for tests. Return values are
// set per field; submitted requests are recorded for assertions.
type mockClient struct {
	mu sync.Mutex

	positions    []bybit.Position
	positionsErr error
	orders       []bybit.Order
	ordersErr    error
	executions   []bybit.Execution
	execsErr     error
	wallet       *bybit.WalletBalance
	walletErr    error
	closedPnl    []bybit.ClosedPnl
	closedErr    error
	report       *bybit.ReconcileReport
	reportErr    error

	placeErr  error
	cancelErr error
	stopErr   error

	// placeGate, when non-nil, blocks PlaceOrder until closed so tests
	// can hold a dispatch in flight.
	placeGate chan struct{}

	placed       []bybit.OrderRequest
	cancelled    []string
	tradingStops []bybit.TradingStopRequest
}

func (m *mockClient) GetPositions() ([]bybit.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bybit.Position(nil), m.positions...), m.positionsErr
}

func (m *mockClient) GetOpenOrders() ([]bybit.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bybit.Order(nil), m.orders...), m.ordersErr
}

func (m *mockClient) GetRecentExecutions(limit int) ([]bybit.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bybit.Execution(nil), m.executions...), m.execsErr
}

func (m *mockClient) GetWalletBalance() (*bybit.WalletBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallet, m.walletErr
}

func (m *mockClient) GetClosedPnl(since time.Time, limit int) ([]bybit.ClosedPnl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bybit.ClosedPnl(nil), m.closedPnl...), m.closedErr
}

func (m *mockClient) GetReconcileReport() (*bybit.ReconcileReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report, m.reportErr
}

func (m *mockClient) PlaceOrder(req bybit.OrderRequest) (*bybit.OrderAck, error) {
	m.mu.Lock()
	gate := m.placeGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	m.placed = append(m.placed, req)
	return &bybit.OrderAck{OrderID: "order-" + req.Symbol, OrderLinkID: req.OrderLinkID}, nil
}

func (m *mockClient) CancelOrder(symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockClient) SetTradingStop(req bybit.TradingStopRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopErr != nil {
		return m.stopErr
	}
	m.tradingStops = append(m.tradingStops, req)
	return nil
}

func (m *mockClient) LastLatency() time.Duration { return 0 }

func (m *mockClient) placedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.placed)
}

func (m *mockClient) placedAt(i int) bybit.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placed[i]
}

func (m *mockClient) cancelledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

func (m *mockClient) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tradingStops)
}

var _ bybit.Client = (*mockClient)(nil)

// testLogger keeps test output quiet
func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "FATAL", Output: "stderr", Component: "test"})
}

// waitFor polls a condition until it holds or the deadline passes
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
