// Package humidifier turns low-humidity alerts into actuator commands on
// a smart plug and reports the resulting state on the event bus.
package humidifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"verdant/internal/clock"
	"verdant/internal/events"
	"verdant/internal/notify"
	"verdant/internal/sensors"
)

// Plug is the actuator. Hardware drivers (smart plug APIs, GPIO relays)
// and the console mock both implement it.
type Plug interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
	Close() error
}

// Service drives the plug from alert events. Only low-humidity alerts in
// the DHT namespace qualify; a qualifying active alert switches the plug
// on, its resolution switches it off.
type Service struct {
	plug      Plug
	publisher *events.Publisher
	policy    notify.RetryPolicy
	log       zerolog.Logger

	isOn bool
}

// NewService creates the humidifier controller.
func NewService(plug Plug, publisher *events.Publisher, policy notify.RetryPolicy, log zerolog.Logger) *Service {
	return &Service{
		plug:      plug,
		publisher: publisher,
		policy:    policy,
		log:       log.With().Str("component", "humidifier").Logger(),
	}
}

// Run consumes the message stream until it closes. The plug is always
// switched off and closed on the way out, whatever path got us here: a
// humidifier left running unattended is the one failure mode that can do
// physical damage.
func (s *Service) Run(ctx context.Context, messages <-chan events.Message) {
	defer s.shutdown()

	for msg := range messages {
		if msg.Topic != events.TopicAlert {
			continue
		}
		var alert events.AlertEvent
		if err := json.Unmarshal(msg.Payload, &alert); err != nil {
			s.log.Warn().Err(err).Msg("Discarding malformed alert event")
			continue
		}
		if !qualifies(alert) {
			continue
		}
		if err := s.apply(ctx, !alert.IsResolved); err != nil {
			s.log.Error().Err(err).Bool("on", !alert.IsResolved).Msg("Failed to switch humidifier")
		}
	}
}

// qualifies accepts low-humidity DHT alerts and their resolutions. An
// active alert must sit below its threshold: high-humidity alerts share
// the namespace and sensor but must never switch the humidifier on.
func qualifies(alert events.AlertEvent) bool {
	if alert.Namespace != events.NamespaceDHT || alert.SensorName.String() != sensors.SensorHumidity {
		return false
	}
	if alert.IsResolved {
		return true
	}
	return alert.Threshold != nil && alert.Value < *alert.Threshold
}

// apply switches the plug with retries and publishes the new state.
func (s *Service) apply(ctx context.Context, on bool) error {
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		if on {
			return s.plug.On(ctx)
		}
		return s.plug.Off(ctx)
	})
	if err != nil {
		return fmt.Errorf("plug switch failed: %w", err)
	}

	s.isOn = on
	s.log.Info().Bool("on", on).Msg("Humidifier switched")
	s.publisher.Publish(ctx, events.TopicHumidifierState, events.HumidifierState{
		IsOn:          on,
		RecordingTime: clock.FormatRecording(clock.NowUTC()),
	})
	return nil
}

func (s *Service) shutdown() {
	ctx := context.Background()
	if err := s.plug.Off(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to switch humidifier off during shutdown")
	} else if s.isOn {
		s.publisher.Publish(ctx, events.TopicHumidifierState, events.HumidifierState{
			IsOn:          false,
			RecordingTime: clock.FormatRecording(clock.NowUTC()),
		})
	}
	if err := s.plug.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close plug")
	}
}

// ConsolePlug logs switches instead of driving hardware; the default in
// mock mode.
type ConsolePlug struct {
	log zerolog.Logger
}

// NewConsolePlug creates a console plug.
func NewConsolePlug(log zerolog.Logger) *ConsolePlug {
	return &ConsolePlug{log: log.With().Str("component", "console-plug").Logger()}
}

func (p *ConsolePlug) On(ctx context.Context) error {
	p.log.Info().Msg("Plug ON")
	return nil
}

func (p *ConsolePlug) Off(ctx context.Context) error {
	p.log.Info().Msg("Plug OFF")
	return nil
}

func (p *ConsolePlug) Close() error { return nil }
