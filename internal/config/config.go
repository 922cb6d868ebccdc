package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Gateway
	TargetCountries    []string `envconfig:"TARGET_COUNTRIES" default:"IT,BG,GR,RO"`
	CarrierServiceName string   `envconfig:"CARRIER_SERVICE_NAME" default:"Pratka Shipping"`
	PlatformDomain     string   `envconfig:"PLATFORM_DOMAIN" default:"myshopify.com"`
	PlatformAPISecret  string   `envconfig:"PLATFORM_API_SECRET"`
	AdminAPIToken      string   `envconfig:"ADMIN_API_TOKEN"`
	SettlementCurrency string   `envconfig:"SETTLEMENT_CURRENCY" default:"EUR"`
	DefaultCountryCode string   `envconfig:"DEFAULT_COUNTRY_CODE" default:"IT"`
	DefaultCountry     string   `envconfig:"DEFAULT_COUNTRY" default:"Italy"`
	DefaultZip         string   `envconfig:"DEFAULT_ZIP" default:"00000"`
	DefaultPaymentType int      `envconfig:"DEFAULT_PAYMENT_TYPE" default:"1"`

	// Carrier
	CarrierBaseURL   string        `envconfig:"CARRIER_BASE_URL" default:"https://stage.pratkabg.com"`
	CarrierTimeout   time.Duration `envconfig:"CARRIER_TIMEOUT" default:"10s"`
	CarrierRateLimit float64       `envconfig:"CARRIER_RATE_LIMIT" default:"0"`
	CarrierRateBurst int           `envconfig:"CARRIER_RATE_BURST" default:"5"`
	CarrierUseMock   bool          `envconfig:"CARRIER_USE_MOCK" default:"false"`

	// Storage
	DatabaseURL  string        `envconfig:"DATABASE_URL"`
	RedisURL     string        `envconfig:"REDIS_URL"`
	ReferenceTTL time.Duration `envconfig:"REFERENCE_TTL" default:"72h"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"shipperman"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.TargetCountries = cleanList(cfg.TargetCountries)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CarrierServiceName) == "" {
		return errors.New("CARRIER_SERVICE_NAME must not be empty")
	}
	if len(cleanList(c.TargetCountries)) == 0 {
		return errors.New("TARGET_COUNTRIES must list at least one country")
	}
	if strings.TrimSpace(c.PlatformDomain) == "" {
		return errors.New("PLATFORM_DOMAIN must not be empty")
	}
	if c.CarrierTimeout <= 0 {
		return errors.New("CARRIER_TIMEOUT must be positive")
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.StringSlice("gateway.target_countries", c.TargetCountries),
		attribute.String("gateway.carrier_service", c.CarrierServiceName),
		attribute.Bool("storage.postgres", c.DatabaseURL != ""),
		attribute.Bool("storage.redis", c.RedisURL != ""),
		attribute.Bool("carrier.mock", c.CarrierUseMock),
	}
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
