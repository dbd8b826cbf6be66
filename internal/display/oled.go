// Package display renders readings and alerts on the small screens
// mounted on the greenhouse: an OLED for live climate numbers and a 16x2
// character LCD that scrolls active alerts. Hardware drivers sit behind
// the Screen and CharDisplay interfaces; console implementations cover
// development machines.
package display

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"verdant/internal/events"
)

// Screen draws full frames; the OLED renderer targets it.
type Screen interface {
	Render(lines []string) error
	Close() error
}

// OLED renders each climate reading as it arrives.
type OLED struct {
	screen Screen
	log    zerolog.Logger
}

// NewOLED creates the OLED renderer.
func NewOLED(screen Screen, log zerolog.Logger) *OLED {
	return &OLED{
		screen: screen,
		log:    log.With().Str("component", "oled").Logger(),
	}
}

// Run consumes climate readings until the stream closes.
func (o *OLED) Run(ctx context.Context, messages <-chan events.Message) {
	defer func() {
		if err := o.screen.Close(); err != nil {
			o.log.Warn().Err(err).Msg("Failed to close screen")
		}
	}()

	for msg := range messages {
		if msg.Topic != events.TopicDHTReading {
			continue
		}
		var reading events.DHTReading
		if err := json.Unmarshal(msg.Payload, &reading); err != nil {
			o.log.Warn().Err(err).Msg("Discarding malformed reading")
			continue
		}
		lines := []string{
			fmt.Sprintf("Temp %5.1f C", reading.Temperature),
			fmt.Sprintf("Hum  %5.1f %%", reading.Humidity),
		}
		if err := o.screen.Render(lines); err != nil {
			o.log.Error().Err(err).Msg("Failed to render reading")
		}
	}
}

// ConsoleScreen logs frames instead of driving a panel.
type ConsoleScreen struct {
	log zerolog.Logger
}

// NewConsoleScreen creates a console screen.
func NewConsoleScreen(log zerolog.Logger) *ConsoleScreen {
	return &ConsoleScreen{log: log.With().Str("component", "console-screen").Logger()}
}

func (s *ConsoleScreen) Render(lines []string) error {
	for _, line := range lines {
		s.log.Info().Str("line", line).Msg("OLED")
	}
	return nil
}

func (s *ConsoleScreen) Close() error { return nil }
