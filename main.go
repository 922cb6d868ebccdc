package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chandamin/Shipperman/internal/server"
	"github.com/chandamin/Shipperman/internal/tenant"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "shipperman",
	Short:   "Shipperman - Shopify storefront bridge to the Pratka carrier",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the shop credential table",
	RunE:  runMigrate,
}

var refidCmd = &cobra.Command{
	Use:   "refid",
	Short: "Print fresh order reference ids",
	RunE:  runRefID,
}

func init() {
	refidCmd.Flags().IntP("count", "n", 1, "number of reference ids to print")

	rootCmd.AddCommand(serveCmd, migrateCmd, refidCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Initialize telemetry
	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(context.Background())
	}

	// Storage
	stores, err := initStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	dispatcher := initDispatcher(cfg, stores, reg, logger)

	logger.Info("Starting Shipperman gateway",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Strings("target_countries", cfg.TargetCountries),
		zap.Bool("carrier_mock", cfg.CarrierUseMock),
	)

	// Start HTTP server
	srv := server.New(server.Config{
		Port:          cfg.Port,
		WebhookSecret: cfg.PlatformAPISecret,
		AdminToken:    cfg.AdminAPIToken,
		Gatherer:      reg,
		Ready:         stores.Ping,
	}, dispatcher, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	pool, err := tenant.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := tenant.NewPostgres(pool).EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "api_data ready")
	return nil
}

func runRefID(cmd *cobra.Command, args []string) error {
	n, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		fmt.Fprintln(cmd.OutOrStdout(), shipper.NewReferenceID())
	}
	return nil
}
