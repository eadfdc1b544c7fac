package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/portal-credential-exchange/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "portal-credential-exchange"

type AppMetrics struct {
	magicLinkIssueCounter    metric.Int64Counter
	magicLinkExchangeCounter metric.Int64Counter
	storeOperationCounter    metric.Int64Counter
	directoryLookupCounter   metric.Int64Counter
	accessTokenCounter       metric.Int64Counter
	rateLimitCounter         metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	var mp *sdkmetric.MeterProvider
	if !cfg.OTELMetricsEnabled {
		mp = sdkmetric.NewMeterProvider()
		logger.Info("otel metrics disabled")
	} else {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create metric resource: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	}
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	issue, err := meter.Int64Counter("auth.magic_link.issue")
	if err != nil {
		return nil, err
	}
	exchange, err := meter.Int64Counter("auth.magic_link.exchange")
	if err != nil {
		return nil, err
	}
	store, err := meter.Int64Counter("store.operations")
	if err != nil {
		return nil, err
	}
	directory, err := meter.Int64Counter("directory.lookups")
	if err != nil {
		return nil, err
	}
	access, err := meter.Int64Counter("auth.access_token.validations")
	if err != nil {
		return nil, err
	}
	rateLimit, err := meter.Int64Counter("http.rate_limit.decisions")
	if err != nil {
		return nil, err
	}
	return &AppMetrics{
		magicLinkIssueCounter:    issue,
		magicLinkExchangeCounter: exchange,
		storeOperationCounter:    store,
		directoryLookupCounter:   directory,
		accessTokenCounter:       access,
		rateLimitCounter:         rateLimit,
	}, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordMagicLinkIssue(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.magicLinkIssueCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordMagicLinkExchange(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.magicLinkExchangeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordStoreOperation(ctx context.Context, backend, op, outcome string) {
	if m := current(); m != nil {
		m.storeOperationCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordDirectoryLookup(ctx context.Context, backend, strategy, outcome string) {
	if m := current(); m != nil {
		m.directoryLookupCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("strategy", strategy),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordAccessTokenValidation(ctx context.Context, outcome string) {
	if m := current(); m != nil {
		m.accessTokenCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome string) {
	if m := current(); m != nil {
		m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
		))
	}
}
