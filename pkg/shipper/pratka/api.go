// Package pratka provides integration with the Pratka carrier plugin API.
package pratka

import (
	"encoding/json"

	"github.com/chandamin/Shipperman/pkg/shipper"
)

// Carrier API paths, relative to the shop's base URL.
const (
	pathShopRates   = "/plugin/shopify/orders/check-price"
	pathCheckPrice  = "/plugin/orders/check-price"
	pathCreateOrder = "/plugin/orders/create-order"
	pathOrders      = "/plugin/orders"
	pathWallet      = "/plugin/wallet"
	pathInfo        = "/plugin/info"
	pathConnectShop = "/plugin/shopify"
	pathPushStore   = "/plugin/shopify/store"
)

// APIKeyParam is both the query parameter and the header carrying the API key.
const APIKeyParam = "X-API-KEY"

const statusSuccess = "success"

// shopRatesRequest wraps the platform callback the way the carrier expects it.
type shopRatesRequest struct {
	Data shipper.RateCallback `json:"data"`
}

// walletResponse is the envelope of GET /plugin/wallet. The carrier puts the
// update date next to data, not inside it.
type walletResponse struct {
	Data *shipper.Wallet `json:"data"`
	Date int64           `json:"date"`
}

// ordersResponse is the envelope of GET /plugin/orders.
type ordersResponse struct {
	Data []json.RawMessage `json:"data"`
}

// connectRequest links an API key to a shop.
type connectRequest struct {
	APIKey string `json:"apiKey"`
	Store  string `json:"store"`
}

// storeRequest pushes shop metadata.
type storeRequest struct {
	APIKey    string          `json:"apiKey"`
	Store     string          `json:"store"`
	StoreData json.RawMessage `json:"storeData,omitempty"`
}

// statusResponse is the generic status envelope of the plugin endpoints.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
