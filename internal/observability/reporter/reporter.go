package reporter

import (
	"context"
	"fmt"

	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/observability/logger"
	"github.com/smallbiznis/academy/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reporter forwards failures to telemetry. It is best effort: nothing it
// does may fail or panic into the caller.
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]any)
	ReportMessage(ctx context.Context, message string, severity apperror.Severity, fields map[string]any)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type reporter struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) Reporter {
	return &reporter{
		log:     p.Log.Named("error.reporter"),
		metrics: p.Metrics,
	}
}

// Nop discards every report.
func Nop() Reporter { return nopReporter{} }

type nopReporter struct{}

func (nopReporter) Report(context.Context, error, map[string]any)                            {}
func (nopReporter) ReportMessage(context.Context, string, apperror.Severity, map[string]any) {}

func (r *reporter) Report(ctx context.Context, err error, fields map[string]any) {
	if err == nil {
		return
	}
	defer r.recover()

	severity := apperror.SeverityCritical
	zapFields := []zap.Field{zap.Error(err)}
	code, category := "UNKNOWN_ERROR", string(apperror.CategoryInfrastructure)

	if appErr, ok := apperror.As(err); ok {
		severity = appErr.Severity()
		code, category = appErr.Code(), string(appErr.Category())
		zapFields = append(zapFields,
			zap.String("error_name", string(appErr.Kind())),
			zap.String("error_code", code),
			zap.String("category", category),
			zap.Int("status_code", appErr.StatusCode()),
		)
		if ctxFields := appErr.Context(); len(ctxFields) > 0 {
			zapFields = append(zapFields, zap.Any("error_context", ctxFields))
		}
		if cause := appErr.Cause(); cause != nil {
			zapFields = append(zapFields, zap.NamedError("cause", cause))
		}
	}
	if len(fields) > 0 {
		zapFields = append(zapFields, zap.Any("fields", fields))
	}

	r.emit(ctx, severity, err.Error(), zapFields)
	r.metrics.RecordError(ctx, code, category, string(severity))
}

func (r *reporter) ReportMessage(ctx context.Context, message string, severity apperror.Severity, fields map[string]any) {
	defer r.recover()

	zapFields := []zap.Field{}
	if len(fields) > 0 {
		zapFields = append(zapFields, zap.Any("fields", fields))
	}
	r.emit(ctx, severity, message, zapFields)
}

func (r *reporter) emit(ctx context.Context, severity apperror.Severity, message string, fields []zap.Field) {
	log := logger.WithContext(ctx, r.log)
	fields = append(fields, zap.String("severity", string(severity)))
	switch severity {
	case apperror.SeverityCritical:
		log.Error(message, fields...)
	case apperror.SeverityWarning:
		log.Warn(message, fields...)
	default:
		log.Info(message, fields...)
	}
}

func (r *reporter) recover() {
	if rec := recover(); rec != nil {
		// the reporter must never take a request down with it
		zap.L().Warn("error reporter failed", zap.String("panic", fmt.Sprint(rec)))
	}
}
