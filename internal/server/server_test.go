package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chandamin/Shipperman/internal/gateway"
	"github.com/chandamin/Shipperman/internal/refstore"
	"github.com/chandamin/Shipperman/internal/server"
	"github.com/chandamin/Shipperman/internal/telemetry"
	"github.com/chandamin/Shipperman/internal/tenant"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/chandamin/Shipperman/pkg/shipper/pratka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	testShop = "acme-shop.myshopify.com"
	secret   = "shpss_test"
)

type fixture struct {
	handler http.Handler
	carrier *pratka.MockAPIClient
	creds   *tenant.Memory
	disp    *gateway.Dispatcher
}

func newFixture(t *testing.T, cfg server.Config) *fixture {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	reg := prometheus.NewRegistry()
	carrier := pratka.NewMockAPIClient()
	creds := tenant.NewMemory(tenant.Credential{ShopURL: testShop, APIKey: "key"})

	disp := gateway.New(gateway.Config{
		TargetCountries:    []string{"IT"},
		CarrierServiceName: "Pratka Shipping",
		PlatformDomain:     "myshopify.com",
		CarrierBaseURL:     "https://stage.pratkabg.com",
		CarrierTimeout:     time.Second,
	}, gateway.Deps{
		Credentials: creds,
		Carrier:     carrier,
		References:  refstore.NewMemory(time.Hour),
		Metrics:     telemetry.NewMetrics(reg),
		Logger:      logger,
	})

	cfg.Gatherer = reg
	srv := server.New(cfg, disp, logger)
	return &fixture{handler: srv.Handler(), carrier: carrier, creds: creds, disp: disp}
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Health_NotReady(t *testing.T) {
	f := newFixture(t, server.Config{Ready: func(context.Context) error { return errors.New("db down") }})

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, server.Config{})
	f.do(t, http.MethodGet, "/api/shops/"+testShop+"/wallet", "", nil)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shipperman_requests_total{operation="wallet",outcome="ok"} 1`)
}

func TestServer_Rates(t *testing.T) {
	f := newFixture(t, server.Config{})
	body := `{"rate":{"destination":{"country":"IT","province":null,"city":"Milan"},"currency":"USD","items":[{}]}}`

	rec := f.do(t, http.MethodPost, "/webhooks/rates", body, map[string]string{"X-Shopify-Shop-Domain": testShop})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Rates []map[string]interface{} `json:"rates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rates, 2)
	assert.Equal(t, 590.0, resp.Rates[0]["total_price"])
	assert.Equal(t, 999.0, resp.Rates[1]["total_price"])
}

func TestServer_Rates_ShopFromReferer(t *testing.T) {
	f := newFixture(t, server.Config{})
	body := `{"rate":{"destination":{"country":"IT","city":"Rome"},"items":[]}}`

	rec := f.do(t, http.MethodPost, "/webhooks/rates", body, map[string]string{"Referer": "https://" + testShop + "/admin"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.carrier.Calls("CheckShopRates"))
}

func TestServer_Rates_NotApplicable(t *testing.T) {
	f := newFixture(t, server.Config{})
	body := `{"rate":{"destination":{"country":"US","city":"Boston"}}}`

	rec := f.do(t, http.MethodPost, "/webhooks/rates", body, map[string]string{"X-Shopify-Shop-Domain": testShop})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rates":[]}`, rec.Body.String())
	assert.Equal(t, 0, f.carrier.TotalCalls())
}

func TestServer_Rates_InvalidJSON(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(t, http.MethodPost, "/webhooks/rates", "invalid json", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func orderWebhookBody(source string) string {
	return `{
		"order_status_url": "https://acme-shop.myshopify.com/1/orders/abc",
		"shipping_lines": [{"source": "` + source + `"}],
		"line_items": [{"id": 1, "name": "Mug", "grams": 500, "price": "9.90", "quantity": 1}],
		"billing_address": {"name": "Ana", "city": "Sofia", "country_code": "BG"}
	}`
}

func TestServer_OrderWebhook(t *testing.T) {
	f := newFixture(t, server.Config{})
	header := map[string]string{"X-Shopify-Webhook-Id": "wh-1"}

	rec := f.do(t, http.MethodPost, "/webhooks/orders/create", orderWebhookBody("Pratka Shipping"), header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result gateway.OrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, testShop, result.Shop)
	assert.True(t, shipper.ValidReferenceID(result.ReferenceID))

	orders := f.carrier.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, 0.5, orders[0].Items[0].Weight)
	assert.Equal(t, "Sofia", orders[0].Recipient.City)
}

func TestServer_OrderWebhook_Skipped(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(t, http.MethodPost, "/webhooks/orders/create", orderWebhookBody("shopify"), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"skipped"}`, rec.Body.String())
	assert.Equal(t, 0, f.carrier.TotalCalls())
}

func TestServer_OrderWebhook_RetryAfterOutage(t *testing.T) {
	f := newFixture(t, server.Config{})
	f.carrier.SimulateErrors = true
	header := map[string]string{"X-Shopify-Webhook-Id": "wh-9"}

	rec := f.do(t, http.MethodPost, "/webhooks/orders/create", orderWebhookBody("Pratka Shipping"), header)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var failed gateway.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.True(t, failed.Retryable)
	require.NotEmpty(t, failed.ReferenceID)

	f.carrier.SimulateErrors = false
	rec = f.do(t, http.MethodPost, "/webhooks/orders/create", orderWebhookBody("Pratka Shipping"), header)
	require.Equal(t, http.StatusOK, rec.Code)
	var ok gateway.OrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, failed.ReferenceID, ok.ReferenceID)
}

func TestServer_WebhookSignature(t *testing.T) {
	f := newFixture(t, server.Config{WebhookSecret: secret})
	body := orderWebhookBody("shopify")

	rec := f.do(t, http.MethodPost, "/webhooks/orders/create", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/webhooks/orders/create", body, map[string]string{server.HMACHeader: server.SignWebhook("wrong", []byte(body))})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/webhooks/orders/create", body, map[string]string{server.HMACHeader: server.SignWebhook(secret, []byte(body))})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"id":1}`)
	sig := server.SignWebhook(secret, body)

	assert.True(t, server.VerifyWebhook(secret, body, sig))
	assert.False(t, server.VerifyWebhook(secret, []byte(`{"id":2}`), sig))
	assert.False(t, server.VerifyWebhook(secret, body, "not base64!"))
}

func TestServer_SubmitOrder(t *testing.T) {
	f := newFixture(t, server.Config{})
	body := `{"items":[{"id":"7","weight":"1.5","name":"Box","price":"abc"}],"recipient":{"name":"Ana"},"paymentType":"2"}`

	rec := f.do(t, http.MethodPost, "/api/shops/"+testShop+"/orders", body, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orders := f.carrier.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, int64(7), orders[0].Items[0].ID)
	assert.Equal(t, 1.5, orders[0].Items[0].Weight)
	assert.Equal(t, 0.0, orders[0].Items[0].Price)
	assert.Equal(t, 2, orders[0].PaymentType)
}

func TestServer_NotConfiguredPointsToSetup(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(t, http.MethodGet, "/api/shops/unknown.myshopify.com/wallet", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body gateway.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_configured", body.Error)
	assert.Contains(t, body.Hint, "/credentials")
}

func TestServer_ListOrders(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(t, http.MethodGet, "/api/shops/"+testShop+"/orders?page=2&size=5", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"page":2,"size":5}`, rec.Body.String())
}

func TestServer_Credentials(t *testing.T) {
	f := newFixture(t, server.Config{})

	rec := f.do(t, http.MethodPut, "/api/shops/new.myshopify.com/credentials", `{"api_key":"fresh"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f.disp.Wait()

	cred, err := f.creds.Resolve(context.Background(), "new.myshopify.com")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.APIKey)
	assert.Equal(t, 1, f.carrier.Calls("ConnectShop"))
}

func TestServer_AdminToken(t *testing.T) {
	f := newFixture(t, server.Config{AdminToken: "s3cret"})
	path := "/api/shops/" + testShop + "/wallet"

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, path, "", map[string]string{"Authorization": "Bearer nope"}).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, "", map[string]string{"Authorization": "Bearer s3cret"}).Code)
}

func TestServer_CarrierDown(t *testing.T) {
	f := newFixture(t, server.Config{})
	f.carrier.SimulateErrors = true

	rec := f.do(t, http.MethodGet, "/api/shops/"+testShop+"/info", "", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "carrier_unavailable")
}
