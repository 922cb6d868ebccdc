package shipper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	emptyProperties = json.RawMessage("[]")
	hundred         = decimal.NewFromInt(100)
)

// RateQuoter translates platform rate requests for one deployment: a fixed
// destination allow-list and a fixed settlement currency.
type RateQuoter struct {
	countries map[string]struct{}
	currency  string
}

// NewRateQuoter creates a RateQuoter. Country codes are matched case-insensitively.
// An empty currency means SettlementCurrency.
func NewRateQuoter(countries []string, currency string) *RateQuoter {
	set := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	if currency == "" {
		currency = SettlementCurrency
	}
	return &RateQuoter{countries: set, currency: currency}
}

// Applicable reports whether rates are offered for the destination country.
func (q *RateQuoter) Applicable(country string) bool {
	_, ok := q.countries[strings.ToLower(strings.TrimSpace(country))]
	return ok
}

// Translate returns the carrier pricing request for req, or ErrNotApplicable when
// the destination is outside the allow-list. req is not modified.
func (q *RateQuoter) Translate(req RateRequest) (*RateRequest, error) {
	if !q.Applicable(req.Destination.Country) {
		return nil, fmt.Errorf("destination %q: %w", req.Destination.Country, ErrNotApplicable)
	}
	out := q.Normalize(req)
	return &out, nil
}

// Normalize applies the rate-request defaulting rules. Each rule is idempotent,
// so normalizing twice yields the same request.
func (q *RateQuoter) Normalize(req RateRequest) RateRequest {
	if req.Destination.Province == "" && req.Destination.City != "" {
		req.Destination.Province = req.Destination.City
	}
	if req.Currency != q.currency {
		req.Currency = q.currency
	}
	if req.Origin.Province == "" && req.Origin.City != "" {
		req.Origin.Province = req.Origin.City
	}
	if req.Destination.Latitude == nil {
		req.Destination.Latitude = new(float64)
	}
	if req.Destination.Longitude == nil {
		req.Destination.Longitude = new(float64)
	}

	items := make([]RateItem, len(req.Items))
	for i, item := range req.Items {
		if !isJSONArray(item.Properties) {
			item.Properties = emptyProperties
		}
		items[i] = item
	}
	req.Items = items
	return req
}

// MapRateQuote converts every carrier total_price from a decimal amount to integer
// minor units. A missing or non-numeric price fails the whole mapping.
func MapRateQuote(quote *RateQuote) (*RateQuote, error) {
	if quote == nil || quote.Rates == nil {
		return nil, NewError(ErrCarrierProtocol, "map rates").
			WithCause(fmt.Errorf("response has no rates"))
	}

	rates := make([]CarrierRate, len(quote.Rates))
	for i, rate := range quote.Rates {
		minor, err := minorUnits(rate["total_price"])
		if err != nil {
			return nil, NewError(ErrCarrierProtocol, "map rates").
				WithCause(fmt.Errorf("rate %d total_price: %w", i, err))
		}

		mapped := make(CarrierRate, len(rate))
		for k, v := range rate {
			mapped[k] = v
		}
		mapped["total_price"] = json.RawMessage(strconv.FormatInt(minor, 10))
		rates[i] = mapped
	}
	return &RateQuote{Rates: rates}, nil
}

// minorUnits parses a JSON number or numeric string and scales it by 100.
func minorUnits(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing")
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(raw); err != nil {
		return 0, fmt.Errorf("not numeric: %s", raw)
	}
	return amount.Mul(hundred).Round(0).IntPart(), nil
}

func isJSONArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '[' && json.Valid(raw)
}
