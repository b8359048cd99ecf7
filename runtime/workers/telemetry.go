package workers

import (
	"context"
	"log/slog"
	"profilebook/observability"
	"time"
)

// TelemetryWorker refreshes the monitoring snapshot served by the inspector.
type TelemetryWorker struct {
	log            *slog.Logger
	monitoring     *observability.MonitoringManager
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, monitoring *observability.MonitoringManager, metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, monitoring: monitoring, metricInterval: metricInterval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.monitoring.Listen(ctx, w.metricInterval)
	return nil
}
