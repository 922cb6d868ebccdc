package shipper

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Number is a lenient JSON number. It accepts numbers and numeric strings;
// anything else, including null and the empty string, decodes to 0.
type Number float64

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number(parseNumber(data))
	return nil
}

// Float64 returns the value as float64.
func (n Number) Float64() float64 {
	return float64(n)
}

// Int returns the value truncated to int.
func (n Number) Int() int {
	return int(n)
}

func parseNumber(data []byte) float64 {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return 0
		}
	}
	return parseDecimal(s)
}

// parseDecimal parses s as a decimal, returning 0 when it is not numeric.
func parseDecimal(s string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
