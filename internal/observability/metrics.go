package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/config"
)

const meterName = "secure-loader-auth-service"

type AppMetrics struct {
	authLoginCounter        metric.Int64Counter
	authRefreshCounter      metric.Int64Counter
	authLogoutCounter       metric.Int64Counter
	loaderHandshakeCounter  metric.Int64Counter
	loaderLoginCounter      metric.Int64Counter
	loaderHeartbeatCounter  metric.Int64Counter
	licenseActivateCounter  metric.Int64Counter
	securityEventCounter    metric.Int64Counter
	repositoryCounter       metric.Int64Counter
	rateLimitCounter        metric.Int64Counter
	rateLimitRetryHistogram metric.Float64Histogram
	tokenValidationCounter  metric.Int64Counter
	capabilityCounter       metric.Int64Counter
	cryptoPoolWaitHistogram metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

// InitMetrics installs the global meter provider. The returned handler is
// non-nil only for the prometheus exporter and serves /metrics.
func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, http.Handler, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		if err := registerMetrics(mp); err != nil {
			return nil, nil, err
		}
		logger.Info("otel metrics disabled")
		return mp, nil, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric resource: %w", err)
	}

	var (
		reader  sdkmetric.Reader
		handler http.Handler
	)
	switch cfg.MetricsExporter {
	case "prometheus":
		exporter, err := otelprom.New()
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		reader = exporter
		handler = promhttp.Handler()
	default:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	if err := registerMetrics(mp); err != nil {
		return nil, nil, err
	}
	logger.Info("otel metrics initialized", "exporter", cfg.MetricsExporter, "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, handler, nil
}

func registerMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(meterName)
	m := &AppMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authLoginCounter, "auth.login.attempts"},
		{&m.authRefreshCounter, "auth.refresh.attempts"},
		{&m.authLogoutCounter, "auth.logout.attempts"},
		{&m.loaderHandshakeCounter, "loader.handshake.attempts"},
		{&m.loaderLoginCounter, "loader.login.attempts"},
		{&m.loaderHeartbeatCounter, "loader.heartbeat.attempts"},
		{&m.licenseActivateCounter, "license.activation.attempts"},
		{&m.securityEventCounter, "security.events"},
		{&m.repositoryCounter, "repository.operations"},
		{&m.rateLimitCounter, "http.rate_limit.decisions"},
		{&m.tokenValidationCounter, "auth.access_token.validations"},
		{&m.capabilityCounter, "auth.capability.checks"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return err
		}
		*c.dst = counter
	}
	retry, err := meter.Float64Histogram("http.rate_limit.retry_after", metric.WithUnit("s"))
	if err != nil {
		return err
	}
	m.rateLimitRetryHistogram = retry
	wait, err := meter.Float64Histogram("crypto.pool.wait", metric.WithUnit("s"))
	if err != nil {
		return err
	}
	m.cryptoPoolWaitHistogram = wait

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return nil
}

func loadMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(channel, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		),
	)
}

func RecordAuthRefresh(status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.authRefreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordLoaderHandshake(ctx context.Context, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.loaderHandshakeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordLoaderLogin(ctx context.Context, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.loaderLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordLoaderHeartbeat(ctx context.Context, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.loaderHeartbeatCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordLicenseActivation(ctx context.Context, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.licenseActivateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSecurityEvent(ctx context.Context, eventType string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.securityEventCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, d time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.rateLimitRetryHistogram.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.tokenValidationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordCapabilityCheck(ctx context.Context, capability, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.capabilityCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("outcome", outcome),
	))
}

func RecordCryptoPoolWait(ctx context.Context, op string, d time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.cryptoPoolWaitHistogram.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("operation", op)))
}
