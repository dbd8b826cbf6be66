package events

import (
	"context"

	"github.com/rs/zerolog"

	"verdant/internal/broker"
)

// Message is one delivered event: the topic it arrived on and its raw
// JSON payload, in broker delivery order.
type Message struct {
	Topic   Topic
	Payload []byte
}

// Subscriber consumes topics from the broker and exposes them as a single
// channel. It is a single-consumer stream; fan-out to many readers is the
// caller's job (the HTTP server's broadcast manager does exactly that).
type Subscriber struct {
	out  chan Message
	stop context.CancelFunc
	done chan struct{}
	log  zerolog.Logger
}

// NewSubscriber subscribes to the given topics and starts pumping messages.
// The stream closes when Close is called or the parent context is cancelled.
func NewSubscriber(ctx context.Context, client *broker.Client, log zerolog.Logger, topics ...Topic) *Subscriber {
	ctx, cancel := context.WithCancel(ctx)

	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = string(t)
	}
	pubsub := client.Subscribe(ctx, channels...)

	s := &Subscriber{
		out:  make(chan Message, 100),
		stop: cancel,
		done: make(chan struct{}),
		log:  log.With().Str("component", "subscriber").Logger(),
	}

	go func() {
		defer close(s.done)
		defer close(s.out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case s.out <- Message{Topic: Topic(msg.Channel), Payload: []byte(msg.Payload)}:
				default:
					// Slow consumer: dropping is acceptable, readings are
					// the durable record.
					s.log.Warn().Str("topic", msg.Channel).Msg("Subscriber channel full, dropping event")
				}
			}
		}
	}()

	return s
}

// Messages returns the delivery stream. The channel closes on shutdown.
func (s *Subscriber) Messages() <-chan Message {
	return s.out
}

// Close stops the subscription and waits for the pump to exit.
func (s *Subscriber) Close() {
	s.stop()
	<-s.done
}
