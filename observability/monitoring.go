package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

const (
	OutcomeDelivered = "delivered"
	OutcomeMissed    = "missed"
	OutcomeEvicted   = "evicted"
)

// MonitoringStats is the snapshot served by the debug inspector.
type MonitoringStats struct {
	Connections   int     `json:"connections"`
	Delivered     uint64  `json:"delivered"`
	Missed        uint64  `json:"missed"`
	Evicted       uint64  `json:"evicted"`
	DeliveryRate  float64 `json:"delivery_rate"`
	AllocMemMb    uint64  `json:"alloc_mem_mb"`
	NumGC         uint32  `json:"num_gc"`
	NumGoroutines int     `json:"num_goroutines"`
}

// MonitoringManager keeps cumulative delivery counters next to their
// Prometheus series and periodically refreshes a snapshot for the inspector.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	connections func() int

	delivered    uint64
	missed       uint64
	evicted      uint64
	lastCheck    time.Time
	lastDelivery uint64
}

func NewMonitoringManager(log *slog.Logger, connections func() int) *MonitoringManager {
	return &MonitoringManager{log: log, connections: connections, lastCheck: time.Now()}
}

func (mm *MonitoringManager) IncrDelivered(kind string) {
	atomic.AddUint64(&mm.delivered, 1)
	Deliveries.WithLabelValues(kind, OutcomeDelivered).Inc()
}

func (mm *MonitoringManager) IncrMissed(kind string) {
	atomic.AddUint64(&mm.missed, 1)
	Deliveries.WithLabelValues(kind, OutcomeMissed).Inc()
}

func (mm *MonitoringManager) IncrEvicted(kind string) {
	atomic.AddUint64(&mm.evicted, 1)
	Deliveries.WithLabelValues(kind, OutcomeEvicted).Inc()
}

// Listen refreshes the snapshot every interval until ctx is done.
func (mm *MonitoringManager) Listen(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Monitoring manager stopped")
			return
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	delivered := atomic.LoadUint64(&mm.delivered)
	if duration := now.Sub(mm.lastCheck).Seconds(); duration > 0 {
		mm.latestStats.DeliveryRate = float64(delivered-mm.lastDelivery) / duration
	}
	mm.lastCheck = now
	mm.lastDelivery = delivered

	mm.latestStats.Delivered = delivered
	mm.latestStats.Missed = atomic.LoadUint64(&mm.missed)
	mm.latestStats.Evicted = atomic.LoadUint64(&mm.evicted)
	if mm.connections != nil {
		mm.latestStats.Connections = mm.connections()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.NumGoroutines = runtime.NumGoroutine()

	mm.log.Debug("Stats updated",
		"connections", mm.latestStats.Connections,
		"delivered", mm.latestStats.Delivered,
		"missed", mm.latestStats.Missed,
		"evicted", mm.latestStats.Evicted,
	)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

// AsMap adapts the snapshot to the debug inspector's stats provider.
func (mm *MonitoringManager) AsMap() map[string]any {
	mm.updateStats()
	stats := mm.GetLatest()
	return map[string]any{
		"connections":    stats.Connections,
		"delivered":      stats.Delivered,
		"missed":         stats.Missed,
		"evicted":        stats.Evicted,
		"delivery_rate":  stats.DeliveryRate,
		"alloc_mem_mb":   stats.AllocMemMb,
		"num_gc":         stats.NumGC,
		"num_goroutines": stats.NumGoroutines,
	}
}
