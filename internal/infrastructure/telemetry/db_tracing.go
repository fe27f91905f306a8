package telemetry

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls the database span instrumentation
type DBTracingConfig struct {
	Enabled bool
	// SlowQueryThreshold marks queries slower than this on their span
	SlowQueryThreshold time.Duration
	// LogFullSQL includes query variables in spans; keep off outside dev
	LogFullSQL bool
}

// DefaultDBTracingConfig returns the database tracing defaults
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:            false,
		SlowQueryThreshold: 200 * time.Millisecond,
		LogFullSQL:         false,
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin plus callbacks that mark
// slow queries and errors on the active span. A disabled config is a no-op.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, log *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = DefaultDBTracingConfig().SlowQueryThreshold
	}

	opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(db *gorm.DB) {
		if db.Statement.Context != nil {
			db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(db *gorm.DB) { annotateSpan(db, cfg.SlowQueryThreshold) }

	if err := db.Callback().Create().Before("gorm:create").Register("sync_timing:before_create", before); err != nil {
		return err
	}
	if err := db.Callback().Create().After("gorm:create").Register("sync_timing:after_create", after); err != nil {
		return err
	}
	if err := db.Callback().Query().Before("gorm:query").Register("sync_timing:before_query", before); err != nil {
		return err
	}
	if err := db.Callback().Query().After("gorm:query").Register("sync_timing:after_query", after); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("sync_timing:before_update", before); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("sync_timing:after_update", after); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("sync_timing:before_delete", before); err != nil {
		return err
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("sync_timing:after_delete", after); err != nil {
		return err
	}

	log.Info("Database tracing enabled",
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
		zap.Bool("log_full_sql", cfg.LogFullSQL),
	)
	return nil
}

// annotateSpan adds row counts, table names, errors and slow-query marks to
// the span otelgorm opened for this statement
func annotateSpan(db *gorm.DB, slowThreshold time.Duration) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}

	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > slowThreshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
