// Package gateway is the single entry point for every external trigger: platform
// rate callbacks, order webhooks and manual operator actions. It resolves the
// shop's credential, runs the matching translator, calls the carrier and maps the
// outcome back.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chandamin/Shipperman/internal/refstore"
	"github.com/chandamin/Shipperman/internal/telemetry"
	"github.com/chandamin/Shipperman/internal/tenant"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// Config holds the deployment settings of the dispatcher.
type Config struct {
	TargetCountries    []string
	CarrierServiceName string
	PlatformDomain     string
	SettlementCurrency string
	CarrierBaseURL     string // used when a credential has no base URL
	CarrierTimeout     time.Duration
	OrderDefaults      shipper.OrderDefaults
}

// Deps are the collaborators injected into the dispatcher.
type Deps struct {
	Credentials tenant.Store
	Carrier     shipper.Carrier
	References  refstore.Store
	Metrics     *telemetry.Metrics
	Logger      *otelzap.Logger
	Tracer      trace.Tracer

	// Observer, when set, receives the final snapshot of every request.
	Observer func(Snapshot)
}

// Dispatcher drives each request through Received, CredentialResolved, Translated,
// CarrierCalled, ResponseMapped and Done. It keeps no per-request state between
// calls.
type Dispatcher struct {
	cfg      Config
	creds    tenant.Store
	carrier  shipper.Carrier
	refs     refstore.Store
	quoter   *shipper.RateQuoter
	orders   *shipper.OrderTranslator
	metrics  *telemetry.Metrics
	logger   *otelzap.Logger
	tracer   trace.Tracer
	observer func(Snapshot)

	handshakes sync.WaitGroup
}

// OrderResult describes an order submission. ReferenceID is set as soon as the
// order was translated, also when the carrier call failed, so the caller can retry
// with it.
type OrderResult struct {
	Shop        string          `json:"shop"`
	ReferenceID string          `json:"reference_id"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// Account combines key validation and wallet balance.
type Account struct {
	Info   *shipper.Info   `json:"info"`
	Wallet *shipper.Wallet `json:"wallet"`
}

// New creates a Dispatcher.
func New(cfg Config, deps Deps) *Dispatcher {
	if cfg.CarrierTimeout <= 0 {
		cfg.CarrierTimeout = 10 * time.Second
	}
	if cfg.SettlementCurrency == "" {
		cfg.SettlementCurrency = shipper.SettlementCurrency
	}

	refs := deps.References
	if refs == nil {
		refs = refstore.NewMemory(refstore.DefaultTTL)
	}
	logger := deps.Logger
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gateway")
	}

	return &Dispatcher{
		cfg:      cfg,
		creds:    deps.Credentials,
		carrier:  deps.Carrier,
		refs:     refs,
		quoter:   shipper.NewRateQuoter(cfg.TargetCountries, cfg.SettlementCurrency),
		orders:   shipper.NewOrderTranslator(cfg.CarrierServiceName, cfg.PlatformDomain, cfg.OrderDefaults),
		metrics:  deps.Metrics,
		logger:   logger,
		tracer:   tracer,
		observer: deps.Observer,
	}
}

// Wait blocks until all background registration handshakes have finished.
func (d *Dispatcher) Wait() {
	d.handshakes.Wait()
}

// QuoteRates prices a platform rate callback for shop. Destinations outside the
// allow-list yield ErrNotApplicable without touching the credential store or the
// carrier.
func (d *Dispatcher) QuoteRates(ctx context.Context, shop string, req shipper.RateRequest) (quote *shipper.RateQuote, err error) {
	ctx, tr, span := d.begin(ctx, "quote_rates", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	if !d.quoter.Applicable(req.Destination.Country) {
		return nil, tr.fail(fmt.Errorf("destination %q: %w", req.Destination.Country, shipper.ErrNotApplicable))
	}

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}

	translated, err := d.quoter.Translate(req)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	raw, err := d.carrier.CheckShopRates(cctx, ep, translated)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)

	mapped, err := shipper.MapRateQuote(raw)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return mapped, nil
}

// HandleOrderWebhook forwards a platform order-created event to the carrier. Orders
// not shipped with this carrier yield ErrNotApplicable with no carrier call. The
// reference id is remembered per delivery id so platform retries reuse it.
func (d *Dispatcher) HandleOrderWebhook(ctx context.Context, deliveryID string, wh *shipper.OrderWebhook) (result *OrderResult, err error) {
	ctx, tr, span := d.begin(ctx, "order_webhook", "")
	defer func() { d.finish(ctx, span, tr, err) }()

	if wh == nil {
		return nil, tr.fail(fmt.Errorf("empty webhook: %w", shipper.ErrInvalidRequest))
	}
	if err := d.orders.Accepts(wh); err != nil {
		return nil, tr.fail(err)
	}

	shop, err := d.orders.ShopFromStatusURL(wh.OrderStatusURL)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.snap.Shop = tenant.NormalizeShop(shop)

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}

	ref := d.webhookReference(ctx, tr.snap.Shop, deliveryID)
	tr.snap.ReferenceID = ref
	payload := d.orders.FromWebhook(wh, ref)
	tr.advance(StateTranslated)

	return d.createOrder(ctx, tr, ep, payload)
}

// SubmitOrder forwards a manually composed order. A well-formed reference id on the
// form is reused, which is how callers retry a failed submission without creating
// a duplicate order.
func (d *Dispatcher) SubmitOrder(ctx context.Context, shop string, form *shipper.OrderForm) (result *OrderResult, err error) {
	ctx, tr, span := d.begin(ctx, "submit_order", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	if form == nil || len(form.Items) == 0 {
		return nil, tr.fail(fmt.Errorf("order has no items: %w", shipper.ErrInvalidRequest))
	}

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}

	payload := d.orders.FromForm(form, shipper.NewReferenceID())
	tr.snap.ReferenceID = payload.ReferenceID
	tr.advance(StateTranslated)

	return d.createOrder(ctx, tr, ep, payload)
}

func (d *Dispatcher) createOrder(ctx context.Context, tr *tracker, ep shipper.Endpoint, payload *shipper.OrderPayload) (*OrderResult, error) {
	result := &OrderResult{Shop: tr.snap.Shop, ReferenceID: payload.ReferenceID}

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	resp, err := d.carrier.CreateOrder(cctx, ep, payload)
	if err != nil {
		return result, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)

	result.Response = resp
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return result, nil
}

// webhookReference returns the reference id for a delivery. Without a delivery id,
// or when the store is unreachable, a fresh id is used.
func (d *Dispatcher) webhookReference(ctx context.Context, shop, deliveryID string) string {
	if deliveryID == "" {
		return shipper.NewReferenceID()
	}
	ref, err := d.refs.GetOrCreate(ctx, shop+":"+deliveryID, shipper.NewReferenceID)
	if err != nil {
		d.logger.Ctx(ctx).Warn("reference store unavailable, platform retries may duplicate the order",
			zap.String("shop", shop),
			zap.String("delivery_id", deliveryID),
			zap.Error(err),
		)
		return shipper.NewReferenceID()
	}
	return ref
}

// CheckPrice prices a manually composed shipment.
func (d *Dispatcher) CheckPrice(ctx context.Context, shop string, req *shipper.PriceCheckRequest) (result *shipper.PriceCheck, err error) {
	ctx, tr, span := d.begin(ctx, "check_price", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	if req == nil || len(req.Items) == 0 {
		return nil, tr.fail(fmt.Errorf("price check has no items: %w", shipper.ErrInvalidRequest))
	}

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}

	out := *req
	out.Currency = d.cfg.SettlementCurrency
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	result, err = d.carrier.CheckPrice(cctx, ep, &out)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return result, nil
}

// ListOrders returns one page of the shop's carrier orders. Page defaults to 1 and
// size to 10, capped at 100.
func (d *Dispatcher) ListOrders(ctx context.Context, shop string, page, size int) (result *shipper.OrderPage, err error) {
	ctx, tr, span := d.begin(ctx, "list_orders", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = defaultPage
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	result, err = d.carrier.ListOrders(cctx, ep, page, size)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return result, nil
}

// Wallet returns the shop's carrier account balance.
func (d *Dispatcher) Wallet(ctx context.Context, shop string) (result *shipper.Wallet, err error) {
	ctx, tr, span := d.begin(ctx, "wallet", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	result, err = d.carrier.Wallet(cctx, ep)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return result, nil
}

// VerifyKey asks the carrier whether the shop's stored key is valid.
func (d *Dispatcher) VerifyKey(ctx context.Context, shop string) (result *shipper.Info, err error) {
	ctx, tr, span := d.begin(ctx, "verify_key", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	result, err = d.carrier.Info(cctx, ep)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return result, nil
}

// Account fetches key status and wallet balance in parallel.
func (d *Dispatcher) Account(ctx context.Context, shop string) (result *Account, err error) {
	ctx, tr, span := d.begin(ctx, "account", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	ep, err := d.resolve(ctx, tr)
	if err != nil {
		return nil, err
	}
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()

	result = &Account{}
	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error {
		info, err := d.carrier.Info(gctx, ep)
		result.Info = info
		return err
	})
	g.Go(func() error {
		wallet, err := d.carrier.Wallet(gctx, ep)
		result.Wallet = wallet
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)
	return result, nil
}

// ConnectShop validates apiKey with the carrier, stores it for shop and starts the
// registration handshake in the background. baseURL may be empty to use the
// deployment default. storeData is forwarded to the carrier as shop metadata.
func (d *Dispatcher) ConnectShop(ctx context.Context, shop, apiKey, baseURL string, storeData json.RawMessage) (result *shipper.Info, err error) {
	shop = tenant.NormalizeShop(shop)
	ctx, tr, span := d.begin(ctx, "connect_shop", shop)
	defer func() { d.finish(ctx, span, tr, err) }()

	if shop == "" {
		return nil, tr.fail(fmt.Errorf("missing shop: %w", shipper.ErrUnrecognizedShop))
	}
	if apiKey == "" {
		return nil, tr.fail(fmt.Errorf("missing api key: %w", shipper.ErrInvalidRequest))
	}

	cred := tenant.Credential{ShopURL: shop, APIKey: apiKey, BaseURL: baseURL}
	ep := cred.Endpoint()
	if ep.BaseURL == "" {
		ep.BaseURL = d.cfg.CarrierBaseURL
	}
	tr.advance(StateCredentialResolved)
	tr.advance(StateTranslated)

	cctx, cancel := d.carrierContext(ctx)
	defer cancel()
	result, err = d.carrier.Info(cctx, ep)
	if err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateCarrierCalled)

	if !result.Valid() {
		return result, tr.fail(fmt.Errorf("api key rejected by carrier (%s): %w", result.Message, shipper.ErrInvalidRequest))
	}
	if err := d.creds.Save(ctx, cred); err != nil {
		return nil, tr.fail(err)
	}
	tr.advance(StateResponseMapped)
	tr.advance(StateDone)

	d.startHandshake(tr.snap.RequestID, shop, ep, storeData)
	return result, nil
}

// startHandshake registers the shop with the carrier. It runs detached from the
// request and only logs its outcome.
func (d *Dispatcher) startHandshake(requestID, shop string, ep shipper.Endpoint, storeData json.RawMessage) {
	if len(storeData) == 0 {
		storeData, _ = json.Marshal(map[string]string{"domain": shop})
	}

	d.handshakes.Add(1)
	go func() {
		defer d.handshakes.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 2*d.cfg.CarrierTimeout)
		defer cancel()

		fields := []zap.Field{zap.String("request_id", requestID), zap.String("shop", shop)}

		if err := d.carrier.ConnectShop(ctx, ep, shop); err != nil {
			d.metrics.RecordHandshake("failed")
			d.logger.Warn("Registration handshake failed", append(fields, zap.String("step", "connect"), zap.Error(err))...)
			return
		}
		if err := d.carrier.PushStore(ctx, ep, shop, storeData); err != nil {
			d.metrics.RecordHandshake("failed")
			d.logger.Warn("Registration handshake failed", append(fields, zap.String("step", "store"), zap.Error(err))...)
			return
		}
		d.metrics.RecordHandshake("ok")
		d.logger.Info("Registration handshake completed", fields...)
	}()
}

// resolve moves the request to CredentialResolved or fails it with
// ErrUnrecognizedShop or ErrNotConfigured.
func (d *Dispatcher) resolve(ctx context.Context, tr *tracker) (shipper.Endpoint, error) {
	if tr.snap.Shop == "" {
		return shipper.Endpoint{}, tr.fail(fmt.Errorf("missing shop: %w", shipper.ErrUnrecognizedShop))
	}
	cred, err := d.creds.Resolve(ctx, tr.snap.Shop)
	if err != nil {
		return shipper.Endpoint{}, tr.fail(err)
	}
	ep := cred.Endpoint()
	if ep.BaseURL == "" {
		ep.BaseURL = d.cfg.CarrierBaseURL
	}
	tr.advance(StateCredentialResolved)
	return ep, nil
}

// carrierContext detaches carrier calls from the inbound transport: a disconnected
// caller does not cancel a call that may already have side effects. The carrier
// timeout still applies.
func (d *Dispatcher) carrierContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.cfg.CarrierTimeout)
}

func (d *Dispatcher) begin(ctx context.Context, operation, shop string) (context.Context, *tracker, trace.Span) {
	tr := newTracker(uuid.NewString(), operation, tenant.NormalizeShop(shop))
	ctx, span := d.tracer.Start(ctx, "gateway."+operation, trace.WithAttributes(
		attribute.String("gateway.request_id", tr.snap.RequestID),
	))
	return ctx, tr, span
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, tr *tracker, err error) {
	if err != nil && !tr.state().Terminal() {
		tr.fail(err)
	}
	snap := tr.finish()

	fields := []zap.Field{
		zap.String("request_id", snap.RequestID),
		zap.String("operation", snap.Operation),
		zap.String("shop", snap.Shop),
		zap.String("state", snap.State.String()),
		zap.Duration("duration", snap.Duration),
	}
	if snap.ReferenceID != "" {
		fields = append(fields, zap.String("reference_id", snap.ReferenceID))
	}
	span.SetAttributes(
		attribute.String("gateway.shop", snap.Shop),
		attribute.String("gateway.state", snap.State.String()),
		attribute.String("gateway.reference_id", snap.ReferenceID),
	)

	log := d.logger.Ctx(ctx)
	outcome := "ok"
	switch {
	case err == nil:
		log.Info("Request completed", fields...)
	case errors.Is(err, shipper.ErrNotApplicable):
		outcome = "skipped"
		log.Info("Request not applicable", append(fields, zap.Error(err))...)
	default:
		outcome = "error"
		kind := KindName(err)
		d.metrics.RecordError(snap.Operation, kind)

		fields = append(fields, zap.String("kind", kind), zap.Bool("retryable", shipper.IsRetryable(err)), zap.Error(err))
		var carrierErr *shipper.Error
		if errors.As(err, &carrierErr) {
			if carrierErr.StatusCode != 0 {
				fields = append(fields, zap.Int("status_code", carrierErr.StatusCode))
			}
			if carrierErr.Body != "" {
				fields = append(fields, zap.String("carrier_body", carrierErr.Body))
			}
		}
		switch snap.Kind {
		case shipper.ErrCarrierUnavailable, shipper.ErrCarrierProtocol, nil:
			log.Error("Request failed", fields...)
		default:
			log.Warn("Request rejected", fields...)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
	}
	d.metrics.RecordRequest(snap.Operation, outcome, snap.Duration.Seconds())
	span.End()

	if d.observer != nil {
		d.observer(snap)
	}
}
