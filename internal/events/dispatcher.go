package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/contract-factory/contract-factory/internal/factory"
	"github.com/contract-factory/contract-factory/internal/safego"
	"github.com/contract-factory/contract-factory/internal/telemetry"
)

// DefaultQueueSize is the number of events a Dispatcher buffers before dropping.
const DefaultQueueSize = 1024

var _ factory.EventSink = (*Dispatcher)(nil)

// Dispatcher is a factory.EventSink that hands events to a Shipper on a single
// background worker, so events are shipped in creation order. When the queue
// is full new events are dropped and counted rather than blocking the caller.
type Dispatcher struct {
	shipper Shipper
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan *Envelope
	closed bool
	group  safego.Group
}

// NewDispatcher starts a dispatcher feeding shipper. queueSize <= 0 uses DefaultQueueSize.
func NewDispatcher(shipper Shipper, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		shipper: shipper,
		timeout: 30 * time.Second,
		queue:   make(chan *Envelope, queueSize),
	}
	d.group.Go(d.run)
	return d
}

// Publish enqueues ev for delivery. It never blocks.
func (d *Dispatcher) Publish(_ context.Context, ev factory.ContractCreated) {
	env := NewEnvelope(ev)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		slog.Warn("event dispatcher closed, dropping event", "sequence", ev.Sequence)
		return
	}
	select {
	case d.queue <- env:
	default:
		telemetry.EventShipErrorsTotal.WithLabelValues("queue").Inc()
		slog.Warn("event queue full, dropping event", "sequence", ev.Sequence, "event_id", env.ID)
	}
}

func (d *Dispatcher) run() {
	for env := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.shipper.Ship(ctx, env); err != nil {
			slog.Debug("event delivery failed", "event_id", env.ID, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events, ships everything already queued, and closes
// the shipper.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.group.Wait()
	return d.shipper.Close()
}
