package runtime

import (
	"context"
	"log/slog"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/domain/event"
	"profilebook/observability"
	"time"
)

// Dispatcher pushes domain events to every live connection of a subject.
//
// Delivery is best effort: the event is already durable when Deliver is
// called, so a failed push never surfaces to the caller. A handle that
// fails or stalls past the delivery timeout is unregistered and closed,
// and its owner recovers through catch-up.
//
// Dispatcher is safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	log             *slog.Logger
	registry        contract.IRegistry
	monitoring      *observability.MonitoringManager
	deliveryTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, registry contract.IRegistry,
	monitoring *observability.MonitoringManager, deliveryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:             log,
		registry:        registry,
		monitoring:      monitoring,
		deliveryTimeout: deliveryTimeout,
	}
}

// Deliver pushes evt to the target's connections in creation order.
func (d *Dispatcher) Deliver(ctx context.Context, evt event.DomainEvent, target domain.SubjectID) contract.Outcome {
	start := time.Now()
	defer func() { observability.DeliveryDuration.Observe(time.Since(start).Seconds()) }()

	kind := string(evt.Kind())
	conns := d.registry.ConnectionsFor(target)
	if len(conns) == 0 {
		d.log.Debug("No live connection for target", "kind", kind, "target", target)
		d.monitoring.IncrMissed(kind)
		return contract.Outcome{Missed: true}
	}

	var outcome contract.Outcome
	for _, conn := range conns {
		if err := d.push(ctx, conn, evt); err != nil {
			d.log.Warn("Push failed, evicting connection",
				"kind", kind, "target", target, "connection", conn.ID(), "error", err)
			d.evict(conn)
			d.monitoring.IncrEvicted(kind)
			continue
		}
		outcome.Delivered = append(outcome.Delivered, conn.ID())
		d.monitoring.IncrDelivered(kind)
	}
	if len(outcome.Delivered) == 0 {
		d.log.Debug("Every push failed, event left for catch-up", "kind", kind, "target", target)
		d.monitoring.IncrMissed(kind)
		outcome.Missed = true
	}
	return outcome
}

func (d *Dispatcher) push(ctx context.Context, conn contract.Connection, evt event.DomainEvent) error {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deliveryTimeout)
	defer cancel()
	return conn.Push(pushCtx, evt)
}

func (d *Dispatcher) evict(conn contract.Connection) {
	d.registry.Unregister(conn)
	if err := conn.Close(); err != nil {
		d.log.Debug("Closing evicted connection", "connection", conn.ID(), "error", err)
	}
}
