package shipper

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementCurrency is the only currency the carrier settles in.
const SettlementCurrency = "EUR"

// DefaultPaymentType is the carrier payment type used when none is given.
const DefaultPaymentType = 1

// ============================================================================
// Rate callback
// ============================================================================

// RateCallback is the body the platform posts to the carrier-service callback.
type RateCallback struct {
	Rate RateRequest `json:"rate"`
}

// RateRequest is a platform shipping-rate request.
type RateRequest struct {
	Origin      Location   `json:"origin"`
	Destination Location   `json:"destination"`
	Items       []RateItem `json:"items"`
	Currency    string     `json:"currency"`
	Locale      string     `json:"locale,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Location is an origin or destination of a rate request.
type Location struct {
	Country     string   `json:"country"`
	PostalCode  string   `json:"postal_code"`
	Province    string   `json:"province"`
	City        string   `json:"city"`
	Name        string   `json:"name"`
	Address1    string   `json:"address1"`
	Address2    string   `json:"address2"`
	Address3    string   `json:"address3"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Phone       string   `json:"phone"`
	Fax         string   `json:"fax"`
	Email       string   `json:"email"`
	AddressType string   `json:"address_type"`
	CompanyName string   `json:"company_name"`

	Extra map[string]json.RawMessage `json:"-"`
}

// RateItem is a cart line of a rate request. Properties is kept raw because the
// platform sends null, an object or an array depending on the storefront.
type RateItem struct {
	Name               string          `json:"name"`
	SKU                string          `json:"sku"`
	Quantity           int             `json:"quantity"`
	Grams              int64           `json:"grams"`
	Price              int64           `json:"price"`
	Vendor             string          `json:"vendor"`
	RequiresShipping   bool            `json:"requires_shipping"`
	Taxable            bool            `json:"taxable"`
	FulfillmentService string          `json:"fulfillment_service"`
	Properties         json.RawMessage `json:"properties"`
	ProductID          int64           `json:"product_id"`
	VariantID          int64           `json:"variant_id"`

	Extra map[string]json.RawMessage `json:"-"`
}

// CarrierRate is one rate entry as returned by the carrier. Fields other than
// total_price are passed through untouched.
type CarrierRate map[string]json.RawMessage

// ServiceName returns the rate's service_name, or "" when absent.
func (r CarrierRate) ServiceName() string {
	var name string
	if raw, ok := r["service_name"]; ok {
		_ = json.Unmarshal(raw, &name)
	}
	return name
}

// TotalPrice returns total_price as an integer, valid after MapRateQuote.
func (r CarrierRate) TotalPrice() (int64, bool) {
	var v int64
	raw, ok := r["total_price"]
	if !ok || json.Unmarshal(raw, &v) != nil {
		return 0, false
	}
	return v, true
}

// RateQuote is the carrier's rate answer and, after mapping, the callback response.
type RateQuote struct {
	Rates []CarrierRate `json:"rates"`
}

// ============================================================================
// Manual price check
// ============================================================================

// PriceCheckRequest prices a manually composed shipment.
type PriceCheckRequest struct {
	Items     []OrderItem `json:"items"`
	Recipient Recipient   `json:"recipient"`
	Currency  string      `json:"currency"`
}

// PriceCheck is the carrier's answer to a manual price check.
type PriceCheck struct {
	Data struct {
		Items []PriceOption `json:"items"`
	} `json:"data"`
}

// PriceOption is one priced service. Amounts are in major units.
type PriceOption struct {
	Price       decimal.Decimal `json:"price"`
	Weight      decimal.Decimal `json:"weight"`
	ServiceType string          `json:"service_type"`
}

// ============================================================================
// Orders
// ============================================================================

// OrderPayload is the carrier's order-creation schema.
type OrderPayload struct {
	Items       []OrderItem `json:"items"`
	Recipient   Recipient   `json:"recipient"`
	ReferenceID string      `json:"referenceId"`
	PaymentType int         `json:"paymentType"`
}

// OrderItem is a parcel line. Weight is in kilograms.
type OrderItem struct {
	ID          int64   `json:"id"`
	Weight      float64 `json:"weight"`
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Length      float64 `json:"length"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// Recipient is the delivery contact. Every field is always serialized; the
// empty string means unknown.
type Recipient struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Company         string `json:"company"`
	CompanyVAT      string `json:"companyVat"`
	CountryCode     string `json:"countryCode"`
	Country         string `json:"country"`
	State           string `json:"state"`
	City            string `json:"city"`
	Zip             string `json:"zip"`
	Address         string `json:"address"`
	AddressNumber   string `json:"addressNumber"`
	BuildingNumber  string `json:"buildingNumber"`
	EntranceNumber  string `json:"entranceNumber"`
	FloorNumber     string `json:"floorNumber"`
	ApartmentNumber string `json:"apartmentNumber"`
	DeliveryNote    string `json:"deliveryNote"`
}

// OrderForm is a manually composed order. Numeric fields accept numbers or
// numeric strings as produced by form inputs.
type OrderForm struct {
	Items       []OrderFormItem `json:"items"`
	Recipient   Recipient       `json:"recipient"`
	ReferenceID string          `json:"referenceId"`
	PaymentType Number          `json:"paymentType"`
}

// OrderFormItem is a loosely typed OrderItem.
type OrderFormItem struct {
	ID          Number `json:"id"`
	Weight      Number `json:"weight"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Price       Number `json:"price"`
	Description string `json:"description"`
	Length      Number `json:"length"`
	Width       Number `json:"width"`
	Height      Number `json:"height"`
}

// OrderWebhook is the subset of the platform orders/create payload the bridge reads.
type OrderWebhook struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	OrderStatusURL string         `json:"order_status_url"`
	ShippingLines  []ShippingLine `json:"shipping_lines"`
	LineItems      []LineItem     `json:"line_items"`
	BillingAddress *Address       `json:"billing_address"`
}

// ShippingLine is a selected shipping method of an order.
type ShippingLine struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Code   string `json:"code"`
}

// LineItem is an order line of the webhook.
type LineItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	SKU      string `json:"sku"`
	Grams    Number `json:"grams"`
	Price    Number `json:"price"`
	Quantity int    `json:"quantity"`
}

// Address is a platform postal address.
type Address struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Company     string `json:"company"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Zip         string `json:"zip"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
}

// OrderPage is one page of carrier-side orders. Entries are passed through raw.
type OrderPage struct {
	Data []json.RawMessage `json:"data"`
	Page int               `json:"page"`
	Size int               `json:"size"`
}

// ============================================================================
// Account
// ============================================================================

// Wallet is the prepaid balance of a carrier account.
type Wallet struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Date     int64           `json:"date"`
}

// UpdatedAt converts the Unix-seconds date.
func (w *Wallet) UpdatedAt() time.Time {
	return time.Unix(w.Date, 0).UTC()
}

// Info is the answer of the key validation endpoint.
type Info struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Valid reports whether the key was accepted.
func (i *Info) Valid() bool {
	return i.Status == "success" && i.Message != ""
}
