// Package observability wires logging, metrics and tracing into one
// fx module.
package observability

import (
	"github.com/lumenadtech/lumen/internal/config"
	"github.com/lumenadtech/lumen/internal/observability/logger"
	"github.com/lumenadtech/lumen/internal/observability/metrics"
	"github.com/lumenadtech/lumen/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(logger.New),
	fx.Provide(func(cfg config.Config) *metrics.CoreMetrics {
		return metrics.CoreWithConfig(metrics.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
		})
	}),
	fx.Provide(func(cfg config.Config) tracing.Config {
		return tracing.Config{
			Enabled:          cfg.Tracing.Enabled,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
			ExporterProtocol: cfg.Tracing.ExporterProtocol,
			SamplingRatio:    cfg.Tracing.SamplingRatio,
		}
	}),
	fx.Invoke(tracing.NewProvider),
)
