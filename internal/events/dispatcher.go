package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
)

// Dispatcher hands committed-transition events to a Publisher in the
// background. Emit never blocks the caller: when the buffer is full the
// event is dropped and counted.
type Dispatcher struct {
	publisher Publisher
	queue     chan model.Event
	timeout   time.Duration
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker draining a queue of the given size.
func NewDispatcher(publisher Publisher, buffer int, publishTimeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan model.Event, buffer),
		timeout:   publishTimeout,
		done:      make(chan struct{}),
	}
	go d.startWorker()
	return d
}

// Emit queues an event for publishing.
func (d *Dispatcher) Emit(event model.Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn().Str("event", string(event.Type)).Msg("Dispatcher closed, dropping event")
		return
	}

	select {
	case d.queue <- event:
	default:
		monitoring.EventsPublished.WithLabelValues(string(event.Type), "dropped").Inc()
		log.Warn().Str("event", string(event.Type)).Str("event_id", event.ID.String()).Msg("Event queue full, dropping event")
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) startWorker() {
	defer close(d.done)
	for event := range d.queue {
		d.publish(event)
	}
}

func (d *Dispatcher) publish(event model.Event) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.publisher.Publish(ctx, event); err != nil {
		monitoring.EventsPublished.WithLabelValues(string(event.Type), "failed").Inc()
		log.Error().Err(err).Str("event", string(event.Type)).Str("event_id", event.ID.String()).Msg("Failed to publish event")
		return
	}
	monitoring.EventsPublished.WithLabelValues(string(event.Type), "published").Inc()
}
