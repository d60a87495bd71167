package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/yairfalse/converge/internal/config"
)

// Export writes the run's metrics to the configured sinks. A run is short
// lived, so nothing is scraped: metrics go to a node exporter textfile,
// a Pushgateway, or both.
func (p *Provider) Export(ctx context.Context, cfg config.MetricsConfig) error {
	return exportRegistry(ctx, p.registry, cfg)
}

func exportRegistry(ctx context.Context, reg *prometheus.Registry, cfg config.MetricsConfig) error {
	if cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Textfile, reg); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}

	if cfg.Pushgateway != "" {
		pusher := push.New(cfg.Pushgateway, cfg.Job).Gatherer(reg)
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("push metrics: %w", err)
		}
	}

	return nil
}
