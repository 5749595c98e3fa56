package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var (
	busPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events accepted onto the in-process bus.",
		},
		[]string{"topic"},
	)
	busDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Domain events dropped because the bus queue was full.",
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(busPublished, busDropped)
}

// Publisher is the producer side of the Bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) bool
}

// Handler consumes events from the Bus.
type Handler interface {
	Handle(ctx context.Context, e Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event)

func (f HandlerFunc) Handle(ctx context.Context, e Event) { f(ctx, e) }

// Sink receives a copy of every event before it is handled. Sink errors are
// logged and never block local delivery.
type Sink interface {
	Mirror(ctx context.Context, e Event) error
}

// Bus is a bounded FIFO queue with one consumer. Delivery is at-most-once:
// Publish never blocks, so a full queue drops the event.
type Bus struct {
	ch    chan queued
	sinks []Sink
}

// queued carries the producer's span so consumers continue its trace.
type queued struct {
	span  trace.SpanContext
	event Event
}

// NewBus returns a Bus holding up to buffer pending events.
func NewBus(buffer int, sinks ...Sink) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{ch: make(chan queued, buffer), sinks: sinks}
}

// Publish enqueues e and reports whether it was accepted. Only the span
// context of ctx is kept; cancellation does not reach the consumer.
func (b *Bus) Publish(ctx context.Context, e Event) bool {
	select {
	case b.ch <- queued{span: trace.SpanContextFromContext(ctx), event: e}:
		busPublished.WithLabelValues(e.Topic()).Inc()
		return true
	default:
		busDropped.WithLabelValues(e.Topic()).Inc()
		log.Warn().Str("topic", e.Topic()).Msg("event bus full; event dropped")
		return false
	}
}

// Len reports the number of queued events.
func (b *Bus) Len() int { return len(b.ch) }

// Run delivers events to h in publish order until ctx is cancelled. It must
// be called from exactly one goroutine.
func (b *Bus) Run(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-b.ch:
			ectx := ctx
			if q.span.IsValid() {
				ectx = trace.ContextWithSpanContext(ctx, q.span)
			}
			for _, s := range b.sinks {
				if err := s.Mirror(ectx, q.event); err != nil {
					log.Error().Err(err).Str("topic", q.event.Topic()).Msg("event mirror failed")
				}
			}
			h.Handle(ectx, q.event)
		}
	}
}
