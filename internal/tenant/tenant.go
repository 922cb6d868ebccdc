// Package tenant resolves per-shop carrier credentials.
package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/chandamin/Shipperman/pkg/shipper"
	"go.uber.org/zap/zapcore"
)

// Credential is the carrier account configured for one shop.
type Credential struct {
	ShopURL string
	APIKey  string
	BaseURL string
}

// Endpoint returns the carrier endpoint of the credential.
func (c Credential) Endpoint() shipper.Endpoint {
	return shipper.Endpoint{BaseURL: c.BaseURL, APIKey: c.APIKey}
}

// String keeps the API key out of logs.
func (c Credential) String() string {
	return fmt.Sprintf("shop=%s base_url=%s api_key=[redacted]", c.ShopURL, c.BaseURL)
}

// MarshalLogObject implements zapcore.ObjectMarshaler without the API key.
func (c Credential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("shop", c.ShopURL)
	enc.AddString("base_url", c.BaseURL)
	enc.AddBool("has_api_key", c.APIKey != "")
	return nil
}

// Resolver maps a shop to its credential. Implementations must support concurrent
// reads. A shop without a credential yields shipper.ErrNotConfigured.
type Resolver interface {
	Resolve(ctx context.Context, shop string) (Credential, error)
}

// Store is a Resolver that can also record credentials from the setup flow.
type Store interface {
	Resolver
	Save(ctx context.Context, cred Credential) error
}

// NormalizeShop canonicalizes a shop identifier for lookups.
func NormalizeShop(shop string) string {
	return strings.ToLower(strings.TrimSpace(shop))
}

func notConfigured(shop string) error {
	return fmt.Errorf("shop %q: %w", shop, shipper.ErrNotConfigured)
}
