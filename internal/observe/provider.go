// Package observe wires OpenTelemetry metrics with a Prometheus exporter and
// serves them on /metrics.
package observe

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "discord-mixer"

// Provider bundles the meter provider with the registry its exporter writes to.
type Provider struct {
	MeterProvider metric.MeterProvider

	registry     *prometheus.Registry
	mp           *sdkmetric.MeterProvider
	shutdownOnce sync.Once
	shutdownErr  error
}

// InitProvider builds an SDK MeterProvider backed by a Prometheus exporter on
// a private registry and registers it as the global provider.
func InitProvider(version string) (*Provider, error) {
	// Schemaless, so the merge never conflicts with the schema URL the SDK
	// stamps on its default resource.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	return &Provider{MeterProvider: mp, registry: registry, mp: mp}, nil
}

// Handler serves the exporter's registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the provider. Later calls return the first result.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.mp.Shutdown(ctx)
	})
	return p.shutdownErr
}
