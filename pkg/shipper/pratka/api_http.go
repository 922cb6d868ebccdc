package pratka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chandamin/Shipperman/pkg/shipper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every carrier call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

const maxResponseBody = 4 << 20

// HTTPAPIClient is the production implementation of shipper.Carrier using HTTP.
// It never retries: order creation is not idempotent on the carrier side.
type HTTPAPIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
	userAgent  string
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	Timeout   time.Duration
	RateLimit float64 // Requests per second across all shops; 0 disables throttling
	RateBurst int
	UserAgent string
	Tracer    trace.Tracer
}

// NewHTTPAPIClient creates a new HTTP-based API client.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pratka")
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "shipperman/1.0"
	}

	return &HTTPAPIClient{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		tracer:     tracer,
		userAgent:  userAgent,
	}
}

// CheckShopRates prices a platform rate callback.
func (c *HTTPAPIClient) CheckShopRates(ctx context.Context, ep shipper.Endpoint, req *shipper.RateRequest) (*shipper.RateQuote, error) {
	var quote shipper.RateQuote
	body := shopRatesRequest{Data: shipper.RateCallback{Rate: *req}}
	if _, err := c.Send(ctx, ep, http.MethodPost, pathShopRates, nil, body, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CheckPrice prices a manually composed shipment.
func (c *HTTPAPIClient) CheckPrice(ctx context.Context, ep shipper.Endpoint, req *shipper.PriceCheckRequest) (*shipper.PriceCheck, error) {
	var result shipper.PriceCheck
	if _, err := c.Send(ctx, ep, http.MethodPost, pathCheckPrice, nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateOrder submits an order. The carrier has no response contract beyond a 2xx
// status, so a non-JSON body is not an error.
func (c *HTTPAPIClient) CreateOrder(ctx context.Context, ep shipper.Endpoint, order *shipper.OrderPayload) (json.RawMessage, error) {
	body, err := c.Send(ctx, ep, http.MethodPost, pathCreateOrder, nil, order, nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, nil
	}
	return body, nil
}

// ListOrders returns one page of carrier-side orders.
func (c *HTTPAPIClient) ListOrders(ctx context.Context, ep shipper.Endpoint, page, size int) (*shipper.OrderPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	var result ordersResponse
	body, err := c.Send(ctx, ep, http.MethodGet, pathOrders, query, nil, &result)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, shipper.NewError(shipper.ErrCarrierProtocol, "list orders").
			WithCause(errors.New("response has no data")).WithBody(body)
	}
	return &shipper.OrderPage{Data: result.Data, Page: page, Size: size}, nil
}

// Wallet returns the account balance.
func (c *HTTPAPIClient) Wallet(ctx context.Context, ep shipper.Endpoint) (*shipper.Wallet, error) {
	var result walletResponse
	body, err := c.Send(ctx, ep, http.MethodGet, pathWallet, nil, nil, &result)
	if err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, shipper.NewError(shipper.ErrCarrierProtocol, "wallet").
			WithCause(errors.New("response has no data")).WithBody(body)
	}
	if result.Data.Date == 0 {
		result.Data.Date = result.Date
	}
	return result.Data, nil
}

// Info validates the API key. A rejected key is reported through Info.Valid,
// not as an error.
func (c *HTTPAPIClient) Info(ctx context.Context, ep shipper.Endpoint) (*shipper.Info, error) {
	var result shipper.Info
	if _, err := c.Send(ctx, ep, http.MethodGet, pathInfo, nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ConnectShop links the API key to the shop.
func (c *HTTPAPIClient) ConnectShop(ctx context.Context, ep shipper.Endpoint, shop string) error {
	return c.sendStatus(ctx, ep, pathConnectShop, connectRequest{APIKey: ep.APIKey, Store: shop})
}

// PushStore sends shop metadata.
func (c *HTTPAPIClient) PushStore(ctx context.Context, ep shipper.Endpoint, shop string, store json.RawMessage) error {
	return c.sendStatus(ctx, ep, pathPushStore, storeRequest{APIKey: ep.APIKey, Store: shop, StoreData: store})
}

func (c *HTTPAPIClient) sendStatus(ctx context.Context, ep shipper.Endpoint, path string, req interface{}) error {
	var result statusResponse
	body, err := c.Send(ctx, ep, http.MethodPost, path, nil, req, &result)
	if err != nil {
		return err
	}
	if result.Status != statusSuccess {
		return shipper.NewError(shipper.ErrCarrierProtocol, "POST "+path).
			WithCause(fmt.Errorf("status %q: %s", result.Status, result.Message)).WithBody(body)
	}
	return nil
}

// Send performs one JSON call against the shop's carrier endpoint. The API key is
// attached both as query parameter and header. When out is non-nil the response
// body is decoded into it. The raw body is returned on success.
func (c *HTTPAPIClient) Send(ctx context.Context, ep shipper.Endpoint, method, path string, query url.Values, body, out interface{}) ([]byte, error) {
	op := method + " " + path

	ctx, span := c.tracer.Start(ctx, "pratka "+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	respBody, status, err := c.do(ctx, ep, method, path, query, body, out)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "carrier call failed")
	}
	return respBody, err
}

func (c *HTTPAPIClient) do(ctx context.Context, ep shipper.Endpoint, method, path string, query url.Values, body, out interface{}) ([]byte, int, error) {
	op := method + " " + path

	u, err := url.Parse(strings.TrimRight(ep.BaseURL, "/") + path)
	if err != nil || u.Host == "" {
		return nil, 0, shipper.NewError(shipper.ErrNotConfigured, op).
			WithCause(errors.New("invalid carrier base url"))
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set(APIKeyParam, ep.APIKey)
	u.RawQuery = q.Encode()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, shipper.NewError(shipper.ErrCarrierUnavailable, op).WithCause(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyParam, ep.APIKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, shipper.NewError(shipper.ErrCarrierUnavailable, op).WithCause(stripURL(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, shipper.NewError(shipper.ErrCarrierUnavailable, op).
			WithStatusCode(resp.StatusCode).WithCause(stripURL(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, classifyStatus(op, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, resp.StatusCode, shipper.NewError(shipper.ErrCarrierProtocol, op).
				WithStatusCode(resp.StatusCode).WithCause(err).WithBody(respBody)
		}
	}
	return respBody, resp.StatusCode, nil
}

// classifyStatus maps a non-2xx answer onto the error taxonomy. Server-side and
// throttling statuses are transient; everything else means the request or the
// contract is wrong.
func classifyStatus(op string, status int, body []byte) error {
	kind := shipper.ErrCarrierProtocol
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		kind = shipper.ErrCarrierUnavailable
	}
	return shipper.NewError(kind, op).
		WithStatusCode(status).
		WithCause(errors.New(carrierMessage(body))).
		WithBody(body)
}

// carrierMessage extracts a human readable message from an error body.
func carrierMessage(body []byte) string {
	var msg struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &msg); err == nil {
		if msg.Message != "" {
			return msg.Message
		}
		if msg.Error != "" {
			return msg.Error
		}
	}
	return "unexpected status"
}

// stripURL drops the request URL from transport errors: it carries the API key.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// Ensure HTTPAPIClient implements shipper.Carrier
var _ shipper.Carrier = (*HTTPAPIClient)(nil)
