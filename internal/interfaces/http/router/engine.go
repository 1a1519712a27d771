package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/invoicing/backend/internal/infrastructure/logger"
	"github.com/invoicing/backend/internal/interfaces/http/handler"
	"github.com/invoicing/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EngineConfig holds the engine-level settings
type EngineConfig struct {
	MaxBodySize    int64
	CORS           middleware.CORSConfig
	TrustedProxies []string
	Logger         *zap.Logger

	TracingEnabled bool
	ServiceName    string
	TracerProvider trace.TracerProvider
	// Meter records HTTP server metrics; nil disables them
	Meter metric.Meter

	// PublicLimiter throttles the unauthenticated /public routes; nil disables it
	PublicLimiter *middleware.RateLimiter
}

// Handlers are the endpoint groups served by the engine
type Handlers struct {
	Invoices *handler.InvoiceHandler
	Payments *handler.PaymentHandler
	Webhooks *handler.WebhookHandler
	Receipts *handler.ReceiptHandler
	Admin    *handler.AdminHandler
	Health   *handler.HealthHandler
}

// NewEngine builds the gin engine with the full middleware chain and route table
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}

	httpMetrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("create http metrics: %w", err)
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName:    cfg.ServiceName,
			Enabled:        cfg.TracingEnabled,
			TracerProvider: cfg.TracerProvider,
		}),
		middleware.SpanErrorMarker(),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(maxBody),
		httpMetrics,
		middleware.TenantMiddlewareWithConfig(middleware.TenantMiddlewareConfig{
			SkipPaths: middleware.DefaultTenantConfig().SkipPaths,
			Logger:    log,
		}),
		middleware.TracingAttributeInjector(),
	)

	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}
	if h.Receipts != nil {
		public := engine.Group("/public")
		if cfg.PublicLimiter != nil {
			public.Use(middleware.RateLimit(cfg.PublicLimiter))
		}
		public.GET("/receipts/:id", h.Receipts.PublicView)
		public.GET("/receipts/:id/verify", h.Receipts.PublicVerify)
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	for _, group := range apiGroups(h) {
		r.Register(group)
	}
	r.Setup()

	return engine, nil
}

func apiGroups(h Handlers) []*DomainGroup {
	var groups []*DomainGroup

	if h.Invoices != nil {
		invoices := NewDomainGroup("invoices", "/invoices").
			POST("", h.Invoices.Create).
			GET("", h.Invoices.List).
			GET("/:id", h.Invoices.Get).
			GET("/:id/payments", h.Invoices.ListPayments).
			POST("/:id/send", h.Invoices.Send).
			POST("/:id/viewed", h.Invoices.MarkViewed).
			POST("/:id/cancel", h.Invoices.Cancel)
		if h.Payments != nil {
			invoices.POST("/:id/payments", h.Payments.Allocate)
		}
		groups = append(groups, invoices)
	}
	if h.Payments != nil {
		groups = append(groups, NewDomainGroup("payments", "/payments").
			POST("/verify", h.Payments.Verify))
	}
	if h.Webhooks != nil {
		groups = append(groups, NewDomainGroup("webhooks", "/webhooks").
			POST("/payments/:provider", h.Webhooks.HandlePayment))
	}
	if h.Receipts != nil {
		groups = append(groups, NewDomainGroup("receipts", "/receipts").
			POST("/verify", h.Receipts.Verify).
			GET("/:id", h.Receipts.Get).
			POST("/:id/audit", h.Receipts.Audit))
	}
	if h.Admin != nil {
		groups = append(groups, NewDomainGroup("admin", "/admin").
			POST("/overdue-sweep", h.Admin.SweepOverdue).
			POST("/reconcile", h.Admin.Reconcile))
	}
	return groups
}
