package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables in spans; development only
	SlowQueryThresh time.Duration // default 200ms
	DBSystem        string        // default "postgresql"
	TracerProvider  trace.TracerProvider
}

// DefaultDBTracingConfig returns the disabled configuration with secure defaults.
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		SlowQueryThresh: 200 * time.Millisecond,
		DBSystem:        "postgresql",
	}
}

// DBTracingPlugin registers otelgorm plus slow query marking on a gorm DB.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates a new database tracing plugin.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

type queryStartKey struct{}

// RegisterOtelGorm installs otelgorm and the timing callbacks on db.
func (p *DBTracingPlugin) RegisterOtelGorm(db *gorm.DB) error {
	if !p.config.Enabled {
		p.logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if p.config.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(p.config.TracerProvider))
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	register := []struct {
		op     string
		before func(string) error
		after  func(string) error
	}{
		{"create",
			func(n string) error { return db.Callback().Create().Before("gorm:create").Register(n, p.startTimer) },
			func(n string) error { return db.Callback().Create().After("gorm:create").Register(n, p.finish) }},
		{"query",
			func(n string) error { return db.Callback().Query().Before("gorm:query").Register(n, p.startTimer) },
			func(n string) error { return db.Callback().Query().After("gorm:query").Register(n, p.finish) }},
		{"update",
			func(n string) error { return db.Callback().Update().Before("gorm:update").Register(n, p.startTimer) },
			func(n string) error { return db.Callback().Update().After("gorm:update").Register(n, p.finish) }},
		{"delete",
			func(n string) error { return db.Callback().Delete().Before("gorm:delete").Register(n, p.startTimer) },
			func(n string) error { return db.Callback().Delete().After("gorm:delete").Register(n, p.finish) }},
		{"row",
			func(n string) error { return db.Callback().Row().Before("gorm:row").Register(n, p.startTimer) },
			func(n string) error { return db.Callback().Row().After("gorm:row").Register(n, p.finish) }},
		{"raw",
			func(n string) error { return db.Callback().Raw().Before("gorm:raw").Register(n, p.startTimer) },
			func(n string) error { return db.Callback().Raw().After("gorm:raw").Register(n, p.finish) }},
	}
	for _, r := range register {
		if err := r.before("otel_timing:before_" + r.op); err != nil {
			return err
		}
		if err := r.after("otel_timing:after_" + r.op); err != nil {
			return err
		}
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.config.LogFullSQL),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
		zap.String("db_system", p.config.DBSystem),
	)
	return nil
}

func (p *DBTracingPlugin) startTimer(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

// finish annotates the current span with row counts, errors and slowness.
func (p *DBTracingPlugin) finish(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > p.config.SlowQueryThresh {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query_warning", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", p.config.SlowQueryThresh.Milliseconds()),
		))
	}
}

// RegisterDBPoolMetrics reports connection pool usage as observable gauges
// read from stats on every collection.
func RegisterDBPoolMetrics(meter metric.Meter, stats func() sql.DBStats) (metric.Registration, error) {
	open, err := meter.Int64ObservableGauge("invoicing_db_pool_connections",
		metric.WithDescription("Database connections by state"),
		metric.WithUnit("{connections}"))
	if err != nil {
		return nil, err
	}
	waits, err := meter.Int64ObservableCounter("invoicing_db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{waits}"))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(open, int64(s.InUse), metric.WithAttributes(AttrDBPoolState.String("in_use")))
		o.ObserveInt64(open, int64(s.Idle), metric.WithAttributes(AttrDBPoolState.String("idle")))
		o.ObserveInt64(open, int64(s.MaxOpenConnections), metric.WithAttributes(AttrDBPoolState.String("max")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, open, waits)
}
