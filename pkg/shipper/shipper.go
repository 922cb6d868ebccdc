// Package shipper translates storefront shipping traffic into the carrier's API
// shapes and back.
package shipper

import (
	"context"
	"encoding/json"
)

// Carrier defines the operations the bridge needs from the carrier API.
// Every call is scoped to one shop through its Endpoint.
type Carrier interface {
	// CheckShopRates prices a platform rate callback.
	CheckShopRates(ctx context.Context, ep Endpoint, req *RateRequest) (*RateQuote, error)

	// CheckPrice prices a manually composed shipment.
	CheckPrice(ctx context.Context, ep Endpoint, req *PriceCheckRequest) (*PriceCheck, error)

	// CreateOrder submits an order. Any 2xx answer is a success; the body is returned as-is.
	CreateOrder(ctx context.Context, ep Endpoint, order *OrderPayload) (json.RawMessage, error)

	// ListOrders returns one page of the shop's carrier-side orders.
	ListOrders(ctx context.Context, ep Endpoint, page, size int) (*OrderPage, error)

	// Wallet returns the prepaid balance of the account behind the API key.
	Wallet(ctx context.Context, ep Endpoint) (*Wallet, error)

	// Info validates the API key.
	Info(ctx context.Context, ep Endpoint) (*Info, error)

	// ConnectShop links the API key to the shop.
	ConnectShop(ctx context.Context, ep Endpoint, shop string) error

	// PushStore sends the shop's metadata after ConnectShop succeeded.
	PushStore(ctx context.Context, ep Endpoint, shop string, store json.RawMessage) error
}

// Endpoint is the per-shop carrier target.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// String keeps the API key out of logs and error messages.
func (e Endpoint) String() string {
	if e.APIKey == "" {
		return e.BaseURL + " (no key)"
	}
	return e.BaseURL + " (key redacted)"
}
