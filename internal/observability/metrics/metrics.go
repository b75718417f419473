package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes settlement instruments. A nil *Metrics records nothing.
type Metrics struct {
	paymentsConfirmed metric.Int64Counter
	paymentAmount     metric.Int64Counter
	gatewayCallbacks  metric.Int64Counter
	ledgerMutations   metric.Int64Counter
	invoicesGenerated metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
	schedulerJobs     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pharmasettle"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.paymentsConfirmed, err = meter.Int64Counter("pharmasettle_payments_confirmed_total"); err != nil {
		return nil, err
	}
	if m.paymentAmount, err = meter.Int64Counter("pharmasettle_payment_amount_total", metric.WithUnit("VND")); err != nil {
		return nil, err
	}
	if m.gatewayCallbacks, err = meter.Int64Counter("pharmasettle_gateway_callbacks_total"); err != nil {
		return nil, err
	}
	if m.ledgerMutations, err = meter.Int64Counter("pharmasettle_ledger_mutations_total"); err != nil {
		return nil, err
	}
	if m.invoicesGenerated, err = meter.Int64Counter("pharmasettle_invoices_generated_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("pharmasettle_rate_limit_denied_total"); err != nil {
		return nil, err
	}
	if m.schedulerJobs, err = meter.Int64Counter("pharmasettle_scheduler_job_runs_total"); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RecordPaymentConfirmed(ctx context.Context, method, paymentType string, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("payment_method", strings.TrimSpace(method)),
		attribute.String("payment_type", strings.TrimSpace(paymentType)),
	)...)
	m.paymentsConfirmed.Add(ctx, 1, attrs)
	m.paymentAmount.Add(ctx, amount, attrs)
}

func (m *Metrics) RecordGatewayCallback(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCallbacks.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func (m *Metrics) RecordLedgerMutation(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ledgerMutations.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	)...))
}

func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, paymentStatus string) {
	if m == nil {
		return
	}
	m.invoicesGenerated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("payment_status", strings.TrimSpace(paymentStatus)),
	)...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)...))
}

// RecordSchedulerJob counts one job run by outcome (ok, error or timeout).
func (m *Metrics) RecordSchedulerJob(ctx context.Context, job, outcome string) {
	if m == nil {
		return
	}
	m.schedulerJobs.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":       {},
	"status_code":    {},
	"route":          {},
	"method":         {},
	"payment_method": {},
	"payment_type":   {},
	"payment_status": {},
	"outcome":        {},
	"kind":           {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
