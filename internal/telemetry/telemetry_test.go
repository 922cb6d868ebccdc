package telemetry_test

import (
	"testing"

	"github.com/chandamin/Shipperman/internal/config"
	"github.com/chandamin/Shipperman/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error", "bogus", ""} {
		logger, err := telemetry.NewLogger(level, "shipperman", "test")
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.RecordRequest("quote_rates", "ok", 0.2)
	m.RecordRequest("quote_rates", "ok", 0.1)
	m.RecordError("submit_order", "carrier_unavailable")
	m.RecordHandshake("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("quote_rates", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CarrierErrors.WithLabelValues("submit_order", "carrier_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakesTotal.WithLabelValues("failed")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		telemetry.NewMetrics(prometheus.NewRegistry())
		telemetry.NewMetrics(prometheus.NewRegistry())
	})
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("op", "ok", 1)
		m.RecordError("op", "kind")
		m.RecordHandshake("ok")
	})
}

func TestNewResource_CarriesConfigAttributes(t *testing.T) {
	cfg := &config.Config{
		ServiceName:        "shipperman",
		Version:            "1.2.3",
		TargetCountries:    []string{"IT", "BG"},
		CarrierServiceName: "Pratka Shipping",
		RedisURL:           "redis://localhost:6379/0",
	}

	res := telemetry.NewResource(cfg.ServiceName, cfg.Attributes()...)
	set := res.Set()

	v, ok := set.Value(attribute.Key("service.version"))
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v.AsString())

	v, ok = set.Value(attribute.Key("gateway.target_countries"))
	require.True(t, ok)
	assert.Equal(t, []string{"IT", "BG"}, v.AsStringSlice())

	v, ok = set.Value(attribute.Key("storage.redis"))
	require.True(t, ok)
	assert.True(t, v.AsBool())
}

func TestNewResource_ServiceNameFallback(t *testing.T) {
	v, ok := telemetry.NewResource("shipperman").Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "shipperman", v.AsString())
}
