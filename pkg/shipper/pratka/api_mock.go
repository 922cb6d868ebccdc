package pratka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/shopspring/decimal"
)

// MockAPIClient is a mock implementation of shipper.Carrier for testing.
// It records every call so tests can assert on what reached the carrier.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCheckShopRates func(ctx context.Context, ep shipper.Endpoint, req *shipper.RateRequest) (*shipper.RateQuote, error)
	OnCheckPrice     func(ctx context.Context, ep shipper.Endpoint, req *shipper.PriceCheckRequest) (*shipper.PriceCheck, error)
	OnCreateOrder    func(ctx context.Context, ep shipper.Endpoint, order *shipper.OrderPayload) (json.RawMessage, error)
	OnListOrders     func(ctx context.Context, ep shipper.Endpoint, page, size int) (*shipper.OrderPage, error)
	OnWallet         func(ctx context.Context, ep shipper.Endpoint) (*shipper.Wallet, error)
	OnInfo           func(ctx context.Context, ep shipper.Endpoint) (*shipper.Info, error)
	OnConnectShop    func(ctx context.Context, ep shipper.Endpoint, shop string) error
	OnPushStore      func(ctx context.Context, ep shipper.Endpoint, shop string, store json.RawMessage) error

	mu           sync.Mutex
	calls        map[string]int
	rateRequests []shipper.RateRequest
	orders       []shipper.OrderPayload
	endpoints    []shipper.Endpoint
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{calls: make(map[string]int)}
}

// Calls returns how many times the named operation was invoked.
func (m *MockAPIClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of carrier calls of any kind.
func (m *MockAPIClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// RateRequests returns the rate requests received, in order.
func (m *MockAPIClient) RateRequests() []shipper.RateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shipper.RateRequest(nil), m.rateRequests...)
}

// Orders returns the orders received, in order.
func (m *MockAPIClient) Orders() []shipper.OrderPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shipper.OrderPayload(nil), m.orders...)
}

// Endpoints returns the endpoints used by each call, in order.
func (m *MockAPIClient) Endpoints() []shipper.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shipper.Endpoint(nil), m.endpoints...)
}

func (m *MockAPIClient) record(op string, ep shipper.Endpoint) error {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
	m.endpoints = append(m.endpoints, ep)
	m.mu.Unlock()

	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return shipper.NewError(shipper.ErrCarrierUnavailable, op).WithStatusCode(503)
	}
	return nil
}

// CheckShopRates returns two mock rates with decimal string prices.
func (m *MockAPIClient) CheckShopRates(ctx context.Context, ep shipper.Endpoint, req *shipper.RateRequest) (*shipper.RateQuote, error) {
	m.mu.Lock()
	m.rateRequests = append(m.rateRequests, *req)
	m.mu.Unlock()

	if err := m.record("CheckShopRates", ep); err != nil {
		return nil, err
	}
	if m.OnCheckShopRates != nil {
		return m.OnCheckShopRates(ctx, ep, req)
	}

	return &shipper.RateQuote{Rates: []shipper.CarrierRate{
		{
			"service_name": json.RawMessage(`"Pratka Standard"`),
			"service_code": json.RawMessage(`"STD"`),
			"currency":     json.RawMessage(`"EUR"`),
			"total_price":  json.RawMessage(`"5.90"`),
		},
		{
			"service_name": json.RawMessage(`"Pratka Express"`),
			"service_code": json.RawMessage(`"EXP"`),
			"currency":     json.RawMessage(`"EUR"`),
			"total_price":  json.RawMessage(`"9.99"`),
		},
	}}, nil
}

// CheckPrice returns one mock priced service.
func (m *MockAPIClient) CheckPrice(ctx context.Context, ep shipper.Endpoint, req *shipper.PriceCheckRequest) (*shipper.PriceCheck, error) {
	if err := m.record("CheckPrice", ep); err != nil {
		return nil, err
	}
	if m.OnCheckPrice != nil {
		return m.OnCheckPrice(ctx, ep, req)
	}

	var result shipper.PriceCheck
	result.Data.Items = []shipper.PriceOption{
		{Price: decimal.RequireFromString("6.40"), Weight: decimal.NewFromInt(2), ServiceType: "standard"},
	}
	return &result, nil
}

// CreateOrder records the order and acknowledges it.
func (m *MockAPIClient) CreateOrder(ctx context.Context, ep shipper.Endpoint, order *shipper.OrderPayload) (json.RawMessage, error) {
	m.mu.Lock()
	m.orders = append(m.orders, *order)
	m.mu.Unlock()

	if err := m.record("CreateOrder", ep); err != nil {
		return nil, err
	}
	if m.OnCreateOrder != nil {
		return m.OnCreateOrder(ctx, ep, order)
	}
	return json.RawMessage(`{"status":"success"}`), nil
}

// ListOrders returns an empty page.
func (m *MockAPIClient) ListOrders(ctx context.Context, ep shipper.Endpoint, page, size int) (*shipper.OrderPage, error) {
	if err := m.record("ListOrders", ep); err != nil {
		return nil, err
	}
	if m.OnListOrders != nil {
		return m.OnListOrders(ctx, ep, page, size)
	}
	return &shipper.OrderPage{Data: []json.RawMessage{}, Page: page, Size: size}, nil
}

// Wallet returns a mock balance.
func (m *MockAPIClient) Wallet(ctx context.Context, ep shipper.Endpoint) (*shipper.Wallet, error) {
	if err := m.record("Wallet", ep); err != nil {
		return nil, err
	}
	if m.OnWallet != nil {
		return m.OnWallet(ctx, ep)
	}
	return &shipper.Wallet{
		Balance:  decimal.RequireFromString("120.50"),
		Currency: shipper.SettlementCurrency,
		Date:     time.Now().Unix(),
	}, nil
}

// Info accepts every key.
func (m *MockAPIClient) Info(ctx context.Context, ep shipper.Endpoint) (*shipper.Info, error) {
	if err := m.record("Info", ep); err != nil {
		return nil, err
	}
	if m.OnInfo != nil {
		return m.OnInfo(ctx, ep)
	}
	return &shipper.Info{Status: statusSuccess, Message: "API key is valid"}, nil
}

// ConnectShop succeeds unless overridden.
func (m *MockAPIClient) ConnectShop(ctx context.Context, ep shipper.Endpoint, shop string) error {
	if err := m.record("ConnectShop", ep); err != nil {
		return err
	}
	if m.OnConnectShop != nil {
		return m.OnConnectShop(ctx, ep, shop)
	}
	return nil
}

// PushStore succeeds unless overridden.
func (m *MockAPIClient) PushStore(ctx context.Context, ep shipper.Endpoint, shop string, store json.RawMessage) error {
	if err := m.record("PushStore", ep); err != nil {
		return err
	}
	if m.OnPushStore != nil {
		return m.OnPushStore(ctx, ep, shop, store)
	}
	return nil
}

// Ensure MockAPIClient implements shipper.Carrier
var _ shipper.Carrier = (*MockAPIClient)(nil)
