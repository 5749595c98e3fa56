package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MsgPublisher is the subset of *nats.Conn used by NATSSink.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink mirrors events to subject "<prefix>.<topic>".
type NATSSink struct {
	pub    MsgPublisher
	prefix string
}

// NewNATSSink wraps an established connection.
func NewNATSSink(pub MsgPublisher, prefix string) *NATSSink {
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(strings.TrimSpace(prefix), ".")}
}

type envelope struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Data  Event     `json:"data"`
}

// Subject returns the NATS subject for a topic.
func (s *NATSSink) Subject(topic string) string {
	if s.prefix == "" {
		return topic
	}
	return s.prefix + "." + topic
}

// Mirror implements Sink.
func (s *NATSSink) Mirror(ctx context.Context, e Event) error {
	data, err := json.Marshal(envelope{Topic: e.Topic(), At: time.Now().UTC(), Data: e})
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Topic(), err)
	}
	msg := nats.NewMsg(s.Subject(e.Topic()))
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Event-Topic", e.Topic())
	// subscribers continue the producer's trace
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// ConnectNATS dials url with reconnects enabled for the lifetime of the process.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
}
