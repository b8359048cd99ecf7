package workers

import (
	"context"
	"log/slog"
	"profilebook/contract"
	"time"
)

// JanitorWorker evicts connections that have not shown any sign of life for
// longer than idleTimeout. A half-open socket otherwise stays registered until
// the next push to it fails.
type JanitorWorker struct {
	log         *slog.Logger
	registry    contract.IRegistry
	idleTimeout time.Duration
	interval    time.Duration
	now         func() time.Time
}

func NewJanitorWorker(log *slog.Logger, registry contract.IRegistry, idleTimeout, interval time.Duration) *JanitorWorker {
	return &JanitorWorker{
		log:         log,
		registry:    registry,
		idleTimeout: idleTimeout,
		interval:    interval,
		now:         time.Now,
	}
}

func (w *JanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping janitor")
			return nil
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep closes every idle handle and returns how many were evicted.
func (w *JanitorWorker) Sweep() int {
	deadline := w.now().Add(-w.idleTimeout)
	evicted := 0
	for _, conn := range w.registry.Snapshot() {
		if conn.LastSeen().After(deadline) {
			continue
		}
		w.registry.Unregister(conn)
		if err := conn.Close(); err != nil {
			w.log.Debug("Closing idle connection", "connection", conn.ID(), "error", err)
		}
		w.log.Info("Idle connection evicted", "connection", conn.ID(), "subject", conn.Subject())
		evicted++
	}
	return evicted
}
