package events

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Transport is the cross-process leg of the bus. The broker client
// implements it; tests substitute a recording fake.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Publisher serializes payloads and fans them out to the in-process bus
// and (best-effort) to the broker. Publish never returns an error: the
// event fabric is at-most-once by contract, and a broker outage must not
// fail a polling cycle. One publisher per producer service is enough;
// publishes are serialized through it by the owning service's loop.
type Publisher struct {
	transport Transport
	bus       *Bus
	log       zerolog.Logger
}

// NewPublisher creates a publisher. Either leg may be nil: a nil transport
// keeps events in-process only, a nil bus skips local fan-out.
func NewPublisher(transport Transport, bus *Bus, log zerolog.Logger) *Publisher {
	return &Publisher{
		transport: transport,
		bus:       bus,
		log:       log.With().Str("component", "publisher").Logger(),
	}
}

// Publish marshals one payload and delivers it on the topic.
func (p *Publisher) Publish(ctx context.Context, topic Topic, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("topic", string(topic)).Msg("Failed to marshal event payload")
		return
	}
	p.deliver(ctx, topic, data)
}

// PublishBatch marshals a list of payloads as a single JSON array event.
// Used by the moisture reader, whose topic carries one array per cycle.
func (p *Publisher) PublishBatch(ctx context.Context, topic Topic, payloads any) {
	p.Publish(ctx, topic, payloads)
}

func (p *Publisher) deliver(ctx context.Context, topic Topic, data []byte) {
	if p.bus != nil {
		p.bus.Publish(topic, data)
	}
	if p.transport == nil {
		return
	}
	if err := p.transport.Publish(ctx, string(topic), data); err != nil {
		p.log.Warn().Err(err).Str("topic", string(topic)).Msg("Broker publish failed, event dropped")
	}
}
