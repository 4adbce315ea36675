package bybit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(serverURL string) *ClientImpl {
	c := NewClient("test-key", "test-secret", true, 5000)
	c.SetBaseURL(serverURL)
	return c
}

func TestGetPositionsDropsUnusableRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/position/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-BAPI-API-KEY") != "test-key" {
			t.Error("request missing api key header")
		}
		if r.Header.Get("X-BAPI-SIGN") == "" {
			t.Error("request missing signature header")
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","side":"Buy","size":"0.5","avgPrice":"60000","markPrice":"60100"},
			{"symbol":"ETHUSDT","side":"Sell","size":"NaN","avgPrice":"3000"},
			{"symbol":"SOLUSDT","side":"Buy","size":"0","avgPrice":"150"}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	positions, err := client.GetPositions()
	if err != nil {
		t.Fatalf("GetPositions failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position after dropping bad and flat rows, got %d", len(positions))
	}
	if positions[0].Symbol != "BTCUSDT" || positions[0].Size != 0.5 {
		t.Errorf("surviving position wrong: %+v", positions[0])
	}
}

func TestGetOpenOrdersParsesRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			{"orderId":"ord-1","orderLinkId":"gd-abc","symbol":"BTCUSDT","side":"Buy","orderType":"Limit","qty":"0.1","price":"59000","orderStatus":"New"},
			{"orderId":"ord-2","symbol":"ETHUSDT","side":"Sell","orderType":"Limit","qty":"bad","price":"3000","orderStatus":"New"}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	orders, err := client.GetOpenOrders()
	if err != nil {
		t.Fatalf("GetOpenOrders failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order after dropping bad row, got %d", len(orders))
	}
	if orders[0].OrderID != "ord-1" || orders[0].Status != OrderStatusNew {
		t.Errorf("order wrong: %+v", orders[0])
	}
}

func TestVenueErrorSurfacesRetMsg(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetPositions()
	if err == nil {
		t.Fatal("expected error for non-zero retCode")
	}
}

func TestPlaceOrderBodyAndAck(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/order/create" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"orderId":"ord-7","orderLinkId":"gd-xyz"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ack, err := client.PlaceOrder(OrderRequest{
		Symbol:      "BTCUSDT",
		Side:        SideBuy,
		OrderType:   OrderTypeLimit,
		Qty:         0.1,
		Price:       59000,
		StopLoss:    58000,
		OrderLinkID: "gd-xyz",
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if ack.OrderID != "ord-7" || ack.OrderLinkID != "gd-xyz" {
		t.Errorf("ack wrong: %+v", ack)
	}

	if gotBody["symbol"] != "BTCUSDT" || gotBody["side"] != "Buy" {
		t.Errorf("body identity fields wrong: %v", gotBody)
	}
	if gotBody["qty"] != "0.1" || gotBody["price"] != "59000" || gotBody["stopLoss"] != "58000" {
		t.Errorf("numeric fields should be string-encoded: %v", gotBody)
	}
	// Limit orders default to GTC when no time-in-force is given
	if gotBody["timeInForce"] != "GTC" {
		t.Errorf("timeInForce = %v, want GTC", gotBody["timeInForce"])
	}
	if _, present := gotBody["reduceOnly"]; present {
		t.Error("reduceOnly should be omitted when false")
	}
}

func TestGetWalletBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[
			{"totalEquity":"10000.5","totalAvailableBalance":"8000","totalWalletBalance":"9900"}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	wallet, err := client.GetWalletBalance()
	if err != nil {
		t.Fatalf("GetWalletBalance failed: %v", err)
	}
	if wallet.TotalEquity != 10000.5 || wallet.AvailableBalance != 8000 || wallet.WalletBalance != 9900 {
		t.Errorf("wallet fields wrong: %+v", wallet)
	}
}

func TestGetWalletBalanceRejectsEmptyAndInvalid(t *testing.T) {
	responses := []string{
		`{"retCode":0,"retMsg":"OK","result":{"list":[]}}`,
		`{"retCode":0,"retMsg":"OK","result":{"list":[{"totalEquity":"NaN","totalAvailableBalance":"1","totalWalletBalance":"1"}]}}`,
	}
	idx := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[idx]))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	for idx = range responses {
		if _, err := client.GetWalletBalance(); err == nil {
			t.Errorf("response %d should have been rejected", idx)
		}
	}
}

func TestSignProperties(t *testing.T) {
	client := NewClient("key-a", "secret-a", false, 5000)

	first := client.sign("1700000000000", "category=linear")
	second := client.sign("1700000000000", "category=linear")
	if first != second {
		t.Error("signature should be deterministic for identical inputs")
	}
	if len(first) != 64 {
		t.Errorf("signature should be 64 hex chars, got %d", len(first))
	}

	if client.sign("1700000000000", "category=linear&limit=50") == first {
		t.Error("different payloads should produce different signatures")
	}
	if client.sign("1700000000001", "category=linear") == first {
		t.Error("different timestamps should produce different signatures")
	}

	other := NewClient("key-a", "secret-b", false, 5000)
	if other.sign("1700000000000", "category=linear") == first {
		t.Error("different secrets should produce different signatures")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&apiError{Status: 500}, true},
		{&apiError{Status: 429}, true},
		{&apiError{Status: 200, RetCode: 10006}, true},
		{&apiError{Status: 200, RetCode: 10016}, true},
		{&apiError{Status: 200, RetCode: 10001}, false},
		{&apiError{Status: 400}, false},
		{io.ErrUnexpectedEOF, true},
	}

	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCalculateRetryDelayBounds(t *testing.T) {
	for attempt := 0; attempt < 6; attempt++ {
		delay := calculateRetryDelay(attempt)
		if delay < baseRetryDelay {
			t.Errorf("attempt %d: delay %v below base", attempt, delay)
		}
		// Jitter can add up to 25% on top of the cap
		if delay > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("attempt %d: delay %v exceeds jittered cap", attempt, delay)
		}
	}

	if calculateRetryDelay(1) < 2*baseRetryDelay-time.Millisecond {
		t.Error("second attempt should at least double the base delay")
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.1, "0.1"},
		{10, "10"},
		{59000, "59000"},
		{0.00012, "0.00012"},
	}
	for _, tt := range tests {
		if got := formatFloat(tt.in); got != tt.want {
			t.Errorf("formatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetBaseURLTrimsTrailingSlash(t *testing.T) {
	client := NewClient("k", "s", false, 5000)
	client.SetBaseURL("http://localhost:9000/")
	if client.baseURL != "http://localhost:9000" {
		t.Errorf("baseURL = %q", client.baseURL)
	}

	client.SetBaseURL("")
	if client.baseURL != "http://localhost:9000" {
		t.Error("empty override should be ignored")
	}
}
