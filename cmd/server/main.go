package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	billingapp "github.com/spa/backend/internal/application/billing"
	"github.com/spa/backend/internal/domain/billing"
	"github.com/spa/backend/internal/domain/shared"
	"github.com/spa/backend/internal/infrastructure/cache"
	"github.com/spa/backend/internal/infrastructure/config"
	"github.com/spa/backend/internal/infrastructure/event"
	"github.com/spa/backend/internal/infrastructure/logger"
	"github.com/spa/backend/internal/infrastructure/persistence"
	"github.com/spa/backend/internal/infrastructure/telemetry"
	"github.com/spa/backend/internal/interfaces/http/handler"
	"github.com/spa/backend/internal/interfaces/http/middleware"
	"github.com/spa/backend/internal/interfaces/http/router"
)

//	@title			Spa Billing API
//	@version		1.0
//	@description	Back-office billing for spa and health clubs: invoices, the payment ledger, refunds with approval, guest deposits and ledger reconciliation.

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize metrics
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Idempotency store: Redis, with in-memory fallback outside production
	idemFactory := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	var idemStore shared.IdempotencyStore
	if cfg.Idempotency.Enabled {
		idemStore, err = idemFactory.CreateStore()
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer func() {
			if err := idemStore.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
	}
	idemConfig := shared.IdempotencyConfig{
		Enabled: cfg.Idempotency.Enabled,
		TTL:     cfg.Idempotency.TTL,
	}

	// Charge policy from the club's configured rates
	chargePolicy, err := billing.NewChargePolicy(cfg.Billing.VATRate, cfg.Billing.ServiceChargeRate)
	if err != nil {
		log.Fatal("Invalid charge policy configuration", zap.Error(err))
	}
	policyProvider := billingapp.NewStaticChargePolicyProvider(chargePolicy)

	// Domain events fan out in process after each transaction commits
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eventBus.Stop(stopCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services share one transaction scope over the database
	txScope := persistence.NewGormTransactionScope(db.DB)
	invoiceService := billingapp.NewInvoiceService(txScope, policyProvider, log)
	paymentService := billingapp.NewPaymentService(txScope, policyProvider, idemStore, idemConfig, log)
	refundService := billingapp.NewRefundService(txScope, policyProvider, log)
	depositService := billingapp.NewDepositService(txScope, policyProvider, log)
	reconciliationService := billingapp.NewReconciliationService(txScope, policyProvider, log)

	invoiceService.SetEventPublisher(eventBus)
	paymentService.SetEventPublisher(eventBus)
	refundService.SetEventPublisher(eventBus)
	depositService.SetEventPublisher(eventBus)

	// Ledger metrics ride on the shared meter provider
	if meterProvider.IsEnabled() {
		ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
			Meter:  meterProvider.Meter("billing"),
			Logger: log,
		})
		if err != nil {
			log.Fatal("Failed to initialize ledger metrics", zap.Error(err))
		}
		invoiceService.SetMetrics(ledgerMetrics)
		paymentService.SetMetrics(ledgerMetrics)
		refundService.SetMetrics(ledgerMetrics)
		depositService.SetMetrics(ledgerMetrics)
	}

	// Initialize HTTP handlers
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get underlying sql.DB", zap.Error(err))
	}
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, paymentService, refundService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	refundHandler := handler.NewRefundHandler(refundService)
	depositHandler := handler.NewDepositHandler(depositService)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationService)
	systemHandler := handler.NewSystemHandler(sqlDB)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. Tracing/Metrics - OpenTelemetry instrumentation
	// 8. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Liveness/readiness endpoints (outside API versioning)
	engine.GET("/healthz", systemHandler.Healthz)
	engine.GET("/readyz", systemHandler.Readyz)

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Invoices and everything hanging off an invoice
	invoiceRoutes := router.NewDomainGroup("invoices", "/invoices")
	invoiceRoutes.POST("", invoiceHandler.CreateInvoice)
	invoiceRoutes.GET("", invoiceHandler.ListInvoices)
	invoiceRoutes.GET("/:id", invoiceHandler.GetInvoice)
	invoiceRoutes.POST("/:id/items", invoiceHandler.AddLineItem)
	invoiceRoutes.POST("/:id/discount", invoiceHandler.ApplyDiscount)
	invoiceRoutes.POST("/:id/cancel", invoiceHandler.CancelInvoice)
	invoiceRoutes.POST("/:id/payments", paymentHandler.RecordPayment)
	invoiceRoutes.GET("/:id/payments", paymentHandler.ListPayments)
	invoiceRoutes.POST("/:id/refunds", refundHandler.RequestRefund)
	invoiceRoutes.GET("/:id/refunds", refundHandler.ListInvoiceRefunds)
	invoiceRoutes.POST("/:id/deposits/apply", depositHandler.ApplyDeposit)
	invoiceRoutes.POST("/:id/reconcile", reconciliationHandler.VerifyInvoice)

	// Refund workflow
	refundRoutes := router.NewDomainGroup("refunds", "/refunds")
	refundRoutes.GET("", refundHandler.ListRefunds)
	refundRoutes.GET("/:id", refundHandler.GetRefund)
	refundRoutes.POST("/:id/approve", refundHandler.ApproveRefund)
	refundRoutes.POST("/:id/reject", refundHandler.RejectRefund)
	refundRoutes.POST("/:id/cancel", refundHandler.CancelRefund)
	refundRoutes.POST("/:id/process", refundHandler.ProcessRefund)

	// Guest deposits
	depositRoutes := router.NewDomainGroup("deposits", "/deposits")
	depositRoutes.POST("", depositHandler.CreateDeposit)
	depositRoutes.GET("/:id", depositHandler.GetDeposit)
	depositRoutes.POST("/:id/refund", depositHandler.RefundDeposit)
	depositRoutes.POST("/expire", depositHandler.ExpireDeposits)

	guestRoutes := router.NewDomainGroup("guests", "/guests")
	guestRoutes.GET("/:id/deposits", depositHandler.ListGuestDeposits)

	// Ledger housekeeping
	reconciliationRoutes := router.NewDomainGroup("reconciliation", "/reconciliation")
	reconciliationRoutes.POST("/run", reconciliationHandler.VerifyAll)

	// System endpoints
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(invoiceRoutes).
		Register(refundRoutes).
		Register(depositRoutes).
		Register(guestRoutes).
		Register(reconciliationRoutes).
		Register(systemRoutes)

	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
