package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chandamin/Shipperman/internal/gateway"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP server of the gateway.
type Server struct {
	port          int
	webhookSecret string
	adminToken    string
	dispatcher    *gateway.Dispatcher
	gatherer      prometheus.Gatherer
	ready         func(context.Context) error
	logger        *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int

	// WebhookSecret verifies platform webhook signatures. Empty disables the check.
	WebhookSecret string

	// AdminToken protects the /api routes with a bearer token. Empty leaves them open.
	AdminToken string

	// Gatherer is exposed on /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer

	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(context.Context) error
}

// New creates a new server instance.
func New(cfg Config, dispatcher *gateway.Dispatcher, logger *otelzap.Logger) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port:          cfg.Port,
		webhookSecret: cfg.WebhookSecret,
		adminToken:    cfg.AdminToken,
		dispatcher:    dispatcher,
		gatherer:      gatherer,
		ready:         cfg.Ready,
		logger:        logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(s.verifyWebhook)
		r.Post("/rates", s.handleRates)
		r.Post("/orders/create", s.handleOrderWebhook)
	})

	r.Route("/api/shops/{shop}", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/orders", s.handleListOrders)
		r.Post("/orders", s.handleSubmitOrder)
		r.Post("/check-price", s.handleCheckPrice)
		r.Get("/wallet", s.handleWallet)
		r.Get("/info", s.handleInfo)
		r.Get("/account", s.handleAccount)
		r.Put("/credentials", s.handleCredentials)
	})

	return r
}

// Run starts the HTTP server and blocks until context is cancelled. Background
// registration handshakes are awaited before it returns.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.dispatcher.Wait()
		return err
	})
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Ctx(r.Context()).Warn("Health check failed", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Ctx(r.Context()).Debug("HTTP request",
			zap.String("http_request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
