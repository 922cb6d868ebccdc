package shipper

import (
	"fmt"
	"regexp"
	"strings"
)

// OrderDefaults holds the deployment values used when a webhook lacks data.
type OrderDefaults struct {
	CountryCode string
	Country     string
	Zip         string
	PaymentType int
}

// OrderTranslator maps platform orders onto the carrier's order schema.
type OrderTranslator struct {
	carrierService string
	statusURL      *regexp.Regexp
	defaults       OrderDefaults
}

// NewOrderTranslator creates an OrderTranslator. carrierService is the name the
// platform reports as shipping_lines[].source for rates this bridge served;
// platformDomain is the shop host suffix, e.g. "myshopify.com".
func NewOrderTranslator(carrierService, platformDomain string, defaults OrderDefaults) *OrderTranslator {
	if defaults.CountryCode == "" {
		defaults.CountryCode = "IT"
	}
	if defaults.Country == "" {
		defaults.Country = "Italy"
	}
	if defaults.Zip == "" {
		defaults.Zip = "00000"
	}
	if defaults.PaymentType == 0 {
		defaults.PaymentType = DefaultPaymentType
	}
	return &OrderTranslator{
		carrierService: carrierService,
		statusURL:      regexp.MustCompile(`^https://([a-zA-Z0-9-]+\.` + regexp.QuoteMeta(platformDomain) + `)`),
		defaults:       defaults,
	}
}

// Accepts reports whether the webhook's order was shipped with this carrier.
// Orders that are not yield ErrNotApplicable and must not reach the carrier.
func (t *OrderTranslator) Accepts(wh *OrderWebhook) error {
	if len(wh.ShippingLines) == 0 {
		return fmt.Errorf("order has no shipping lines: %w", ErrNotApplicable)
	}
	if src := wh.ShippingLines[0].Source; src != t.carrierService {
		return fmt.Errorf("shipping source %q: %w", src, ErrNotApplicable)
	}
	return nil
}

// ShopFromStatusURL extracts the shop identifier from the order status URL host.
func (t *OrderTranslator) ShopFromStatusURL(statusURL string) (string, error) {
	m := t.statusURL.FindStringSubmatch(statusURL)
	if m == nil {
		return "", fmt.Errorf("order status url %q: %w", statusURL, ErrUnrecognizedShop)
	}
	return m[1], nil
}

// FromWebhook builds the carrier order for a webhook that passed Accepts. The
// reference id is supplied by the caller so that retries of the same delivery
// reuse it.
func (t *OrderTranslator) FromWebhook(wh *OrderWebhook, referenceID string) *OrderPayload {
	items := make([]OrderItem, len(wh.LineItems))
	for i, li := range wh.LineItems {
		weight := li.Grams.Float64() / 1000
		if weight <= 0 {
			weight = 1
		}
		items[i] = OrderItem{
			ID:          li.ID,
			Weight:      weight,
			Name:        orDefault(li.Name, "Unknown Item"),
			SKU:         orDefault(li.SKU, "Unknown SKU"),
			Price:       li.Price.Float64(),
			Description: orDefault(li.Title, "No description"),
		}
	}

	addr := wh.BillingAddress
	if addr == nil {
		addr = &Address{}
	}

	return &OrderPayload{
		Items:       items,
		ReferenceID: referenceID,
		PaymentType: t.defaults.PaymentType,
		Recipient: Recipient{
			Name:        orDefault(addr.Name, "Unknown Name"),
			Phone:       orDefault(addr.Phone, "Unknown Phone"),
			Email:       orDefault(wh.Email, "Unknown Email"),
			Company:     orDefault(addr.Company, "Unknown Company"),
			CompanyVAT:  "Unknown VAT",
			CountryCode: orDefault(addr.CountryCode, t.defaults.CountryCode),
			Country:     orDefault(addr.Country, t.defaults.Country),
			State:       orDefault(addr.Province, "Unknown State"),
			City:        orDefault(addr.City, "Unknown City"),
			Zip:         orDefault(addr.Zip, t.defaults.Zip),
			Address:     orDefault(addr.Address1, "Unknown Address"),
		},
	}
}

// FromForm builds the carrier order for a manual submission. Non-numeric values
// were already coerced to 0 while decoding the form. A well-formed reference id on
// the form is kept; otherwise referenceID is used.
func (t *OrderTranslator) FromForm(form *OrderForm, referenceID string) *OrderPayload {
	items := make([]OrderItem, len(form.Items))
	for i, fi := range form.Items {
		items[i] = OrderItem{
			ID:          int64(fi.ID),
			Weight:      nonNegative(fi.Weight.Float64()),
			Name:        fi.Name,
			SKU:         fi.SKU,
			Price:       nonNegative(fi.Price.Float64()),
			Description: fi.Description,
			Length:      nonNegative(fi.Length.Float64()),
			Width:       nonNegative(fi.Width.Float64()),
			Height:      nonNegative(fi.Height.Float64()),
		}
	}

	ref := strings.ToUpper(strings.TrimSpace(form.ReferenceID))
	if !ValidReferenceID(ref) {
		ref = referenceID
	}

	paymentType := form.PaymentType.Int()
	if paymentType <= 0 {
		paymentType = t.defaults.PaymentType
	}

	return &OrderPayload{
		Items:       items,
		Recipient:   form.Recipient,
		ReferenceID: ref,
		PaymentType: paymentType,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
