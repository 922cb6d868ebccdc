package main

import (
	"context"
	"fmt"

	"github.com/chandamin/Shipperman/internal/config"
	"github.com/chandamin/Shipperman/internal/gateway"
	"github.com/chandamin/Shipperman/internal/refstore"
	"github.com/chandamin/Shipperman/internal/telemetry"
	"github.com/chandamin/Shipperman/internal/tenant"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/chandamin/Shipperman/pkg/shipper/pratka"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Version)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Attributes()...)
	return shutdown, err
}

// stores holds the backing stores of the gateway and their connections.
type stores struct {
	credentials tenant.Store
	references  refstore.Store
	pool        *pgxpool.Pool
	redis       *redis.Client
}

// Ping reports whether the configured external stores answer.
func (s *stores) Ping(ctx context.Context) error {
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the store connections.
func (s *stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// initStores connects Postgres and Redis when configured and falls back to
// in-process stores otherwise.
func initStores(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*stores, error) {
	s := &stores{}

	if cfg.DatabaseURL != "" {
		pool, err := tenant.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := tenant.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		s.pool = pool
		s.credentials = pg
	} else {
		logger.Warn("DATABASE_URL not set, shop credentials are kept in memory")
		s.credentials = tenant.NewMemory()
	}

	if cfg.RedisURL != "" {
		rdb, err := refstore.Dial(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rdb
		s.references = refstore.NewRedis(rdb, cfg.ReferenceTTL)
	} else {
		logger.Info("REDIS_URL not set, webhook reference ids are remembered in memory")
		s.references = refstore.NewMemory(cfg.ReferenceTTL)
	}

	return s, nil
}

func initCarrier(cfg *config.Config) shipper.Carrier {
	if cfg.CarrierUseMock {
		return pratka.NewMockAPIClient()
	}
	return pratka.NewHTTPAPIClient(pratka.HTTPAPIClientConfig{
		Timeout:   cfg.CarrierTimeout,
		RateLimit: cfg.CarrierRateLimit,
		RateBurst: cfg.CarrierRateBurst,
		UserAgent: cfg.ServiceName + "/" + cfg.Version,
		Tracer:    otel.Tracer("pratka"),
	})
}

func initDispatcher(cfg *config.Config, s *stores, reg prometheus.Registerer, logger *otelzap.Logger) *gateway.Dispatcher {
	return gateway.New(gateway.Config{
		TargetCountries:    cfg.TargetCountries,
		CarrierServiceName: cfg.CarrierServiceName,
		PlatformDomain:     cfg.PlatformDomain,
		SettlementCurrency: cfg.SettlementCurrency,
		CarrierBaseURL:     cfg.CarrierBaseURL,
		CarrierTimeout:     cfg.CarrierTimeout,
		OrderDefaults: shipper.OrderDefaults{
			CountryCode: cfg.DefaultCountryCode,
			Country:     cfg.DefaultCountry,
			Zip:         cfg.DefaultZip,
			PaymentType: cfg.DefaultPaymentType,
		},
	}, gateway.Deps{
		Credentials: s.credentials,
		Carrier:     initCarrier(cfg),
		References:  s.references,
		Metrics:     telemetry.NewMetrics(reg),
		Logger:      logger,
		Tracer:      otel.Tracer(cfg.ServiceName),
	})
}
