package observe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
)

// Module provides the meter provider and the /metrics endpoint.
var Module = fx.Module("observe",
	fx.Provide(NewProvider),
	fx.Provide(func(p *Provider) metric.MeterProvider { return p.MeterProvider }),
	fx.Invoke(RegisterMetricsServer),
)

// NewProviderParams holds dependencies for NewProvider.
type NewProviderParams struct {
	fx.In
	Version string `name:"version"`
	LC      fx.Lifecycle
}

// NewProvider creates the OpenTelemetry provider and shuts it down with the app.
func NewProvider(params NewProviderParams) (*Provider, error) {
	p, err := InitProvider(params.Version)
	if err != nil {
		return nil, err
	}
	params.LC.Append(fx.Hook{
		OnStop: p.Shutdown,
	})
	return p, nil
}

// RegisterMetricsServerParams holds dependencies for RegisterMetricsServer.
type RegisterMetricsServerParams struct {
	fx.In
	Cfg      *config.Config
	Provider *Provider
	Logger   *zap.Logger
	LC       fx.Lifecycle
}

// NewMetricsHandler returns the mux serving /metrics.
func NewMetricsHandler(p *Provider) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	return mux
}

// RegisterMetricsServer serves /metrics on metrics.listen_addr. Nothing is
// started when the address is empty.
func RegisterMetricsServer(params RegisterMetricsServerParams) {
	addr := params.Cfg.Metrics.ListenAddr
	if addr == "" {
		return
	}

	logger := params.Logger.Named("metrics")
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMetricsHandler(params.Provider),
		ReadHeaderTimeout: 5 * time.Second,
	}

	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server stopped", zap.Error(err))
				}
			}()
			logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
