package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"foodmarket/internal/common/database"
	"foodmarket/internal/common/events"
	"foodmarket/internal/common/metrics"
	"foodmarket/internal/common/middleware"
	natsclient "foodmarket/internal/common/nats"
	"foodmarket/internal/notify"
	"foodmarket/internal/orders"
	orderapi "foodmarket/internal/orders/api"
	orderstore "foodmarket/internal/orders/store"
	"foodmarket/internal/providers/flutterwave"
	"foodmarket/internal/sweeper"
	"foodmarket/internal/vendors"
	"foodmarket/internal/wallet"
	walletapi "foodmarket/internal/wallet/api"
	walletstore "foodmarket/internal/wallet/store"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"ORDERS_PORT" default:"8086"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	AdminToken  string `envconfig:"ADMIN_TOKEN"`

	Database    database.Config
	NATS        natsclient.Config
	Flutterwave flutterwave.Config
	Orders      orders.Config
	Sweeper     sweeper.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Run migrations
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// Connect to database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	var (
		natsClient *natsclient.Client
		publisher  events.EventPublisher = events.NewLogPublisher(logger)
	)
	if cfg.NATS.Enabled {
		natsClient, err = natsclient.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		streamCfg := natsclient.DefaultStreamConfig(cfg.NATS.Stream, []string{natsclient.Subject(">")})
		streamCfg.Description = "Order lifecycle and wallet events"
		if _, err := natsClient.EnsureStream(ctx, streamCfg); err != nil {
			logger.Error("failed to ensure stream", "error", err)
			os.Exit(1)
		}
		publisher = natsclient.NewPublisher(natsClient, logger)
	}

	reg := metrics.NewRegistry()

	// Create stores
	wallets := walletstore.New(db)
	orderStore := orderstore.New(db, wallets)
	vendorStore := vendors.New(db)

	// Create services
	gateway := flutterwave.NewAdapter(cfg.Flutterwave, logger)
	orderService := orders.NewService(cfg.Orders, orderStore, vendorStore, gateway, publisher, reg, logger)
	orderService.SetNotifier(notify.NewDispatcher(publisher))
	walletService := wallet.NewService(wallets, logger)

	// Create handlers
	orderHandler := orderapi.NewHandler(orderService, cfg.AdminToken, cfg.Sweeper.MaxAge)
	walletHandler := walletapi.NewHandler(walletService)
	webhookHandler := flutterwave.NewWebhookHandler(cfg.Flutterwave.WebhookHash, orderService, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.VendorExtractor)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if natsClient != nil {
			if err := natsClient.HealthCheck(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"not ready"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", reg.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/", orderHandler.Routes())
		r.Mount("/vendors", walletHandler.Routes())
		r.Method(http.MethodPost, "/webhooks/flutterwave", webhookHandler)
	})

	// Start stale order sweeper
	sw := sweeper.New(cfg.Sweeper, orderService, logger)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		if err := sw.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sweeper stopped", "error", err)
		}
	}()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting orders service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"nats", cfg.NATS.Enabled,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// The pool closes on return; let an in-flight sweep finish first.
	select {
	case <-sweeperDone:
	case <-shutdownCtx.Done():
		logger.Warn("sweeper did not stop before shutdown deadline")
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
