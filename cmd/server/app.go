package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	appinvoicing "github.com/invoicing/backend/internal/application/invoicing"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/invoicing/backend/internal/domain/shared"
	"github.com/invoicing/backend/internal/infrastructure/cache"
	"github.com/invoicing/backend/internal/infrastructure/config"
	"github.com/invoicing/backend/internal/infrastructure/event"
	"github.com/invoicing/backend/internal/infrastructure/notification"
	"github.com/invoicing/backend/internal/infrastructure/payment"
	"github.com/invoicing/backend/internal/infrastructure/persistence"
	"github.com/invoicing/backend/internal/infrastructure/scheduler"
	"github.com/invoicing/backend/internal/infrastructure/storage"
	"github.com/invoicing/backend/internal/infrastructure/telemetry"
	"github.com/invoicing/backend/internal/interfaces/http/handler"
	"github.com/invoicing/backend/internal/interfaces/http/middleware"
	"github.com/invoicing/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// app holds the assembled services and everything that needs stopping
type app struct {
	engine    *gin.Engine
	bus       *event.InMemoryEventBus
	scheduler *scheduler.Scheduler
	limiter   *middleware.RateLimiter
	closers   []namedCloser
	log       *zap.Logger
}

type namedCloser struct {
	name string
	io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, db *persistence.Database, meter metric.Meter, log *zap.Logger) (*app, error) {
	a := &app{bus: event.NewInMemoryEventBus(log), log: log}

	metrics, err := telemetry.NewPaymentMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("payment metrics: %w", err)
	}

	invoices := persistence.NewGormInvoiceRepository(db.DB)
	payments := persistence.NewGormPaymentRepository(db.DB)
	allocations := persistence.NewGormAllocationRepository(db.DB)
	receiptRepo := persistence.NewGormReceiptRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	notifier, notifierCloser, err := notification.New(cfg.Notification, log)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}
	a.closers = append(a.closers, namedCloser{"notifier", notifierCloser})

	store, err := cache.NewIdempotencyStoreFactory(cfg.Idempotency.Driver, cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, namedCloser{"idempotency store", c})
	}
	notifications := appinvoicing.NewNotificationHandler(notifier, store, shared.IdempotencyConfig{
		TTL:     cfg.Idempotency.TTL,
		Enabled: true,
	}, log)
	a.bus.Subscribe(notifications, notifications.EventTypes()...)

	var archive appinvoicing.ReceiptArchive
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3ReceiptArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return nil, fmt.Errorf("receipt archive: %w", err)
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("receipt archive bucket: %w", err)
		}
		archive = s3Archive
	}

	receipts := appinvoicing.NewReceiptService(appinvoicing.ReceiptServiceConfig{
		Invoices:    invoices,
		Payments:    payments,
		Allocations: allocations,
		Receipts:    receiptRepo,
		Issuer: appinvoicing.StaticIssuer{
			Name:    cfg.Receipt.IssuerName,
			Email:   cfg.Receipt.IssuerEmail,
			Phone:   cfg.Receipt.IssuerPhone,
			Address: cfg.Receipt.IssuerAddress,
		},
		Archive:        archive,
		HashTailLength: cfg.Receipt.HashTailLength,
		Metrics:        metrics,
		Logger:         log,
	})
	allocator := appinvoicing.NewAllocationService(appinvoicing.AllocationServiceConfig{
		Invoices:       invoices,
		Payments:       payments,
		Scope:          scope,
		Receipts:       receipts,
		EventPublisher: a.bus,
		Metrics:        metrics,
		Logger:         log,
	})

	var gateways []invoicing.PaymentGateway
	if cfg.Gateway.FlutterwaveSecretKey != "" {
		flutterwave, err := payment.NewFlutterwaveAdapter(&payment.FlutterwaveConfig{
			BaseURL:     cfg.Gateway.FlutterwaveBaseURL,
			SecretKey:   cfg.Gateway.FlutterwaveSecretKey,
			WebhookHash: cfg.Gateway.FlutterwaveWebhookHash,
			Timeout:     cfg.Gateway.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("flutterwave gateway: %w", err)
		}
		gateways = append(gateways, flutterwave)
	} else {
		log.Warn("No payment gateway configured; webhook and verify endpoints will reject every provider")
	}
	gatewayPayments := appinvoicing.NewGatewayPaymentService(appinvoicing.GatewayPaymentServiceConfig{
		Gateways:  gateways,
		Invoices:  invoices,
		Guard:     appinvoicing.NewIdempotencyGuard(payments, metrics, log),
		Allocator: allocator,
		Logger:    log,
	})

	invoiceService := appinvoicing.NewInvoiceService(appinvoicing.InvoiceServiceConfig{
		Invoices:       invoices,
		Payments:       payments,
		EventPublisher: a.bus,
		Logger:         log,
	})
	sweeper := appinvoicing.NewOverdueSweeper(appinvoicing.OverdueSweeperConfig{
		Scope:          scope,
		EventPublisher: a.bus,
		Metrics:        metrics,
		BatchSize:      cfg.Scheduler.SweepBatchSize,
		Logger:         log,
	})
	reconciler := appinvoicing.NewReconciliationService(appinvoicing.ReconciliationServiceConfig{
		Payments:    payments,
		Allocator:   allocator,
		Receipts:    receipts,
		Concurrency: cfg.Scheduler.ReconcileWorkers,
		GracePeriod: cfg.Scheduler.ReconcileGrace,
		Logger:      log,
	})

	if cfg.Scheduler.Enabled {
		a.scheduler = scheduler.New(scheduler.Config{JobTimeout: cfg.Scheduler.JobTimeout}, log)
		if err := a.scheduler.Register(scheduler.OverdueSweepJob{Sweeper: sweeper}, scheduler.Daily{Hour: cfg.Scheduler.SweepHourUTC}); err != nil {
			return nil, err
		}
		if cfg.Scheduler.ReconcileInterval > 0 {
			if err := a.scheduler.Register(scheduler.ReconcileJob{Reconciler: reconciler}, scheduler.Every{Interval: cfg.Scheduler.ReconcileInterval}); err != nil {
				return nil, err
			}
		}
	}

	if cfg.HTTP.PublicRateLimit > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.HTTP.PublicRateLimit, cfg.HTTP.PublicRateWindow)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	now := func() time.Time { return time.Now().UTC() }
	a.engine, err = router.NewEngine(router.EngineConfig{
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		CORS:           cors,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Logger:         log,
		TracingEnabled: cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracerProvider: otel.GetTracerProvider(),
		Meter:          meter,
		PublicLimiter:  a.limiter,
	}, router.Handlers{
		Invoices: handler.NewInvoiceHandler(invoiceService, now),
		Payments: handler.NewPaymentHandler(allocator, gatewayPayments),
		Webhooks: handler.NewWebhookHandler(gatewayPayments),
		Receipts: handler.NewReceiptHandler(receipts),
		Admin:    handler.NewAdminHandler(sweeper, reconciler, now),
		Health:   handler.NewHealthHandler(db),
	})
	if err != nil {
		return nil, fmt.Errorf("http engine: %w", err)
	}
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	if err := a.bus.Start(ctx); err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	return nil
}

// stop drains background work before the connections it uses are closed
func (a *app) stop(ctx context.Context) {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.log.Warn("Scheduler stop failed", zap.Error(err))
		}
	}
	if err := a.bus.Stop(ctx); err != nil {
		a.log.Warn("Event bus stop failed", zap.Error(err))
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("Close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
}
