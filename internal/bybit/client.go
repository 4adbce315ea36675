package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Retry configuration for API calls
const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

const (
	// BaseURL is the production venue API URL
	BaseURL = "https://api.bybit.com"
	// TestnetURL is the practice-environment API URL
	TestnetURL = "https://api-testnet.bybit.com"

	category = "linear"
)

// envelope is the common response wrapper returned by every endpoint
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

// ClientImpl implements the Client interface against the venue REST API
type ClientImpl struct {
	apiKey     string
	secretKey  string
	baseURL    string
	recvWindow string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu          sync.Mutex
	lastLatency time.Duration
}

// NewClient creates a new venue client. Testnet selects the practice
// environment base URL.
func NewClient(apiKey, secretKey string, testnet bool, recvWindowMs int) *ClientImpl {
	baseURL := BaseURL
	if testnet {
		baseURL = TestnetURL
	}
	if recvWindowMs <= 0 {
		recvWindowMs = 10000
	}

	// Trim any whitespace from keys - critical for signature generation
	return &ClientImpl{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		recvWindow: strconv.Itoa(recvWindowMs),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
	}
}

// SetBaseURL overrides the venue endpoint. Used for self-hosted
// gateways and by tests pointing at a local server.
func (c *ClientImpl) SetBaseURL(url string) {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// LastLatency returns the round-trip time of the most recent call
func (c *ClientImpl) LastLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLatency
}

func (c *ClientImpl) recordLatency(d time.Duration) {
	c.mu.Lock()
	c.lastLatency = d
	c.mu.Unlock()
}

// ==================== ACCOUNT ====================

// GetPositions retrieves all open positions for the linear category
func (c *ClientImpl) GetPositions() ([]Position, error) {
	resp, err := c.signedGet("/v5/position/list", map[string]string{
		"category":   category,
		"settleCoin": "USDT",
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching positions: %w", err)
	}

	var result struct {
		List []rawPosition `json:"list"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("error parsing positions: %w", err)
	}

	positions := make([]Position, 0, len(result.List))
	for _, raw := range result.List {
		pos, ok := raw.toPosition()
		if !ok {
			// Bad numerics from the venue are dropped, not propagated
			log.Printf("[BYBIT] dropping position row with invalid numerics: %s", raw.Symbol)
			continue
		}
		if pos.Size == 0 {
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// GetOpenOrders retrieves all open orders for the linear category
func (c *ClientImpl) GetOpenOrders() ([]Order, error) {
	resp, err := c.signedGet("/v5/order/realtime", map[string]string{
		"category":   category,
		"settleCoin": "USDT",
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching open orders: %w", err)
	}

	var result struct {
		List []rawOrder `json:"list"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("error parsing open orders: %w", err)
	}

	orders := make([]Order, 0, len(result.List))
	for _, raw := range result.List {
		order, ok := raw.toOrder()
		if !ok {
			log.Printf("[BYBIT] dropping order row with invalid numerics: %s %s", raw.Symbol, raw.OrderID)
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetRecentExecutions retrieves recent fills, newest first
func (c *ClientImpl) GetRecentExecutions(limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	resp, err := c.signedGet("/v5/execution/list", map[string]string{
		"category": category,
		"limit":    strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching executions: %w", err)
	}

	var result struct {
		List []rawExecution `json:"list"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("error parsing executions: %w", err)
	}

	executions := make([]Execution, 0, len(result.List))
	for _, raw := range result.List {
		exec, ok := raw.toExecution()
		if !ok {
			continue
		}
		executions = append(executions, exec)
	}
	return executions, nil
}

// GetWalletBalance retrieves the unified account balance
func (c *ClientImpl) GetWalletBalance() (*WalletBalance, error) {
	resp, err := c.signedGet("/v5/account/wallet-balance", map[string]string{
		"accountType": "UNIFIED",
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching wallet balance: %w", err)
	}

	var result struct {
		List []struct {
			TotalEquity        string `json:"totalEquity"`
			TotalAvailable     string `json:"totalAvailableBalance"`
			TotalWalletBalance string `json:"totalWalletBalance"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("error parsing wallet balance: %w", err)
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("wallet balance response contained no accounts")
	}

	equity, ok1 := parseFloat(result.List[0].TotalEquity)
	avail, ok2 := parseFloat(result.List[0].TotalAvailable)
	wallet, ok3 := parseFloat(result.List[0].TotalWalletBalance)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("wallet balance response contained invalid numerics")
	}

	return &WalletBalance{
		TotalEquity:      equity,
		AvailableBalance: avail,
		WalletBalance:    wallet,
		UpdatedAt:        time.Now(),
	}, nil
}

// GetClosedPnl retrieves realized-PnL records since the given time
func (c *ClientImpl) GetClosedPnl(since time.Time, limit int) ([]ClosedPnl, error) {
	if limit <= 0 {
		limit = 100
	}
	resp, err := c.signedGet("/v5/position/closed-pnl", map[string]string{
		"category":  category,
		"startTime": strconv.FormatInt(since.UnixMilli(), 10),
		"limit":     strconv.Itoa(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("error fetching closed pnl: %w", err)
	}

	var result struct {
		List []rawClosedPnl `json:"list"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("error parsing closed pnl: %w", err)
	}

	records := make([]ClosedPnl, 0, len(result.List))
	for _, raw := range result.List {
		record, ok := raw.toClosedPnl()
		if !ok {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// GetReconcileReport builds a venue-truth summary used by the slow loop
// to cross-check the local mirrors. Counts come from the position and
// order endpoints; margin from the wallet endpoint.
func (c *ClientImpl) GetReconcileReport() (*ReconcileReport, error) {
	positions, err := c.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	orders, err := c.GetOpenOrders()
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	var totalIM float64
	resp, err := c.signedGet("/v5/account/wallet-balance", map[string]string{
		"accountType": "UNIFIED",
	})
	if err == nil {
		var result struct {
			List []struct {
				TotalPositionIM string `json:"totalPositionIM"`
			} `json:"list"`
		}
		if json.Unmarshal(resp, &result) == nil && len(result.List) > 0 {
			totalIM, _ = parseFloat(result.List[0].TotalPositionIM)
		}
	}

	return &ReconcileReport{
		OpenPositionCount: len(positions),
		OpenOrderCount:    len(orders),
		TotalPositionIM:   totalIM,
		GeneratedAt:       time.Now(),
	}, nil
}

// ==================== TRADING ====================

// PlaceOrder places a new order
func (c *ClientImpl) PlaceOrder(req OrderRequest) (*OrderAck, error) {
	body := map[string]interface{}{
		"category":    category,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   string(req.OrderType),
		"qty":         formatFloat(req.Qty),
		"positionIdx": int(req.PositionIdx),
	}

	if req.Price > 0 {
		body["price"] = formatFloat(req.Price)
	}
	if req.TriggerPrice > 0 {
		body["triggerPrice"] = formatFloat(req.TriggerPrice)
	}
	if req.TimeInForce != "" {
		body["timeInForce"] = string(req.TimeInForce)
	} else if req.OrderType == OrderTypeLimit {
		body["timeInForce"] = string(TimeInForceGTC)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = formatFloat(req.StopLoss)
	}
	if req.TakeProfit > 0 {
		body["takeProfit"] = formatFloat(req.TakeProfit)
	}
	if req.OrderLinkID != "" {
		body["orderLinkId"] = req.OrderLinkID
	}

	resp, err := c.signedPost("/v5/order/create", body)
	if err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}

	var ack struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(resp, &ack); err != nil {
		return nil, fmt.Errorf("error parsing order response: %w", err)
	}

	return &OrderAck{OrderID: ack.OrderID, OrderLinkID: ack.OrderLinkID}, nil
}

// CancelOrder cancels an existing order
func (c *ClientImpl) CancelOrder(symbol, orderID string) error {
	_, err := c.signedPost("/v5/order/cancel", map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	})
	if err != nil {
		return fmt.Errorf("error canceling order: %w", err)
	}
	return nil
}

// SetTradingStop updates position protection (SL/TP/trailing)
func (c *ClientImpl) SetTradingStop(req TradingStopRequest) error {
	body := map[string]interface{}{
		"category":    category,
		"symbol":      req.Symbol,
		"positionIdx": int(req.PositionIdx),
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = formatFloat(req.StopLoss)
	}
	if req.TakeProfit > 0 {
		body["takeProfit"] = formatFloat(req.TakeProfit)
	}
	if req.TrailingStop > 0 {
		body["trailingStop"] = formatFloat(req.TrailingStop)
	}
	if req.ActivePrice > 0 {
		body["activePrice"] = formatFloat(req.ActivePrice)
	}

	_, err := c.signedPost("/v5/position/trading-stop", body)
	if err != nil {
		return fmt.Errorf("error setting trading stop: %w", err)
	}
	return nil
}

// ==================== SIGNED REQUESTS ====================

// sign computes the v5 request signature over
// timestamp + apiKey + recvWindow + payload
func (c *ClientImpl) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + c.apiKey + c.recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *ClientImpl) setAuthHeaders(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, payload))
}

// signedGet performs an authenticated GET request with retry logic
func (c *ClientImpl) signedGet(endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	query := values.Encode()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return nil, err
		}

		req, err := http.NewRequest("GET", c.baseURL+endpoint+"?"+query, nil)
		if err != nil {
			return nil, err
		}
		c.setAuthHeaders(req, query)

		body, err := c.do(req, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt < maxRetries && isRetryableError(err) {
			delay := calculateRetryDelay(attempt)
			log.Printf("[BYBIT] GET %s failed (attempt %d/%d): %v, retrying in %v",
				endpoint, attempt+1, maxRetries+1, err, delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return nil, lastErr
}

// signedPost performs an authenticated POST request with retry logic
func (c *ClientImpl) signedPost(endpoint string, body map[string]interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(context.Background()); err != nil {
			return nil, err
		}

		req, err := http.NewRequest("POST", c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.setAuthHeaders(req, string(payload))

		respBody, err := c.do(req, endpoint)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		if attempt < maxRetries && isRetryableError(err) {
			delay := calculateRetryDelay(attempt)
			log.Printf("[BYBIT] POST %s failed (attempt %d/%d): %v, retrying in %v",
				endpoint, attempt+1, maxRetries+1, err, delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return nil, lastErr
}

// apiError is a non-transport failure reported by the venue
type apiError struct {
	Status  int
	RetCode int
	RetMsg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error: status=%d retCode=%d retMsg=%s", e.Status, e.RetCode, e.RetMsg)
}

// do executes one HTTP request, unwraps the response envelope, and
// records the call latency.
func (c *ClientImpl) do(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.recordLatency(time.Since(start))
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{Status: resp.StatusCode, RetMsg: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("error parsing response from %s: %w", endpoint, err)
	}
	if env.RetCode != 0 {
		return nil, &apiError{Status: resp.StatusCode, RetCode: env.RetCode, RetMsg: env.RetMsg}
	}

	return env.Result, nil
}

// isRetryableError reports whether a request should be retried:
// transport failures, 5xx, 429, and the venue's rate-limit ret code.
func isRetryableError(err error) bool {
	if apiErr, ok := err.(*apiError); ok {
		if apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests {
			return true
		}
		// 10006 = rate limit, 10016 = internal error
		return apiErr.RetCode == 10006 || apiErr.RetCode == 10016
	}
	// Network-level errors are retryable
	return true
}

// calculateRetryDelay returns an exponential backoff delay with jitter
func calculateRetryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add up to 25% jitter to avoid thundering herd
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Ensure ClientImpl implements Client
var _ Client = (*ClientImpl)(nil)
