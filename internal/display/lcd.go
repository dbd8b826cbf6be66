package display

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"verdant/internal/events"
)

// CharDisplay is a fixed-width character display (16x2 typical). The LCD
// renderer writes one row at a time.
type CharDisplay interface {
	WriteRow(row int, text string) error
	Close() error
}

// LCD keeps the set of currently active alerts and scrolls a formatted
// summary across the bottom row. The top row shows the alert count.
type LCD struct {
	display CharDisplay
	columns int
	scroll  time.Duration
	log     zerolog.Logger

	active map[string]events.AlertEvent
	offset int
}

// NewLCD creates the LCD renderer.
func NewLCD(display CharDisplay, columns int, scroll time.Duration, log zerolog.Logger) *LCD {
	return &LCD{
		display: display,
		columns: columns,
		scroll:  scroll,
		log:     log.With().Str("component", "lcd").Logger(),
		active:  make(map[string]events.AlertEvent),
	}
}

// Run consumes alert events and repaints on every scroll tick until the
// stream closes or the context is cancelled.
func (l *LCD) Run(ctx context.Context, messages <-chan events.Message) {
	defer func() {
		if err := l.display.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to close display")
		}
	}()

	ticker := time.NewTicker(l.scroll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Topic != events.TopicAlert {
				continue
			}
			var alert events.AlertEvent
			if err := json.Unmarshal(msg.Payload, &alert); err != nil {
				l.log.Warn().Err(err).Msg("Discarding malformed alert event")
				continue
			}
			l.Apply(alert)
			l.paint()
		case <-ticker.C:
			l.advance()
			l.paint()
		}
	}
}

// Apply updates the active-alert set: active alerts are keyed in,
// resolutions keyed out. The scroll restarts so the new set is read from
// the beginning.
func (l *LCD) Apply(alert events.AlertEvent) {
	key := fmt.Sprintf("%s:%s", alert.Namespace, alert.SensorName.String())
	if alert.IsResolved {
		delete(l.active, key)
	} else {
		l.active[key] = alert
	}
	l.offset = 0
}

// Line renders the scrolling summary of active alerts, ordered by key so
// the text is stable between repaints.
func (l *LCD) Line() string {
	if len(l.active) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l.active))
	for k := range l.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		a := l.active[k]
		parts = append(parts, fmt.Sprintf("%s %.1f%s", a.SensorName.String(), a.Value, a.Unit))
	}
	return strings.Join(parts, " | ")
}

// Window returns the currently visible columns of the scroll line.
// Columns count runes, not bytes: units like "°C" must never be split
// mid-character at the window edge.
func (l *LCD) Window() string {
	line := l.Line()
	if line == "" {
		return pad("all ok", l.columns)
	}
	runes := []rune(line)
	if len(runes) <= l.columns {
		return pad(line, l.columns)
	}
	// Wrap with a separator so the end scrolls into the start.
	wrapped := append(runes, ' ', ' ')
	start := l.offset % len(wrapped)
	doubled := append(append([]rune(nil), wrapped...), wrapped...)
	return string(doubled[start : start+l.columns])
}

func (l *LCD) advance() {
	if utf8.RuneCountInString(l.Line()) > l.columns {
		l.offset++
	}
}

func (l *LCD) paint() {
	top := pad(fmt.Sprintf("Alerts: %d", len(l.active)), l.columns)
	if err := l.display.WriteRow(0, top); err != nil {
		l.log.Error().Err(err).Msg("Failed to write top row")
	}
	if err := l.display.WriteRow(1, l.Window()); err != nil {
		l.log.Error().Err(err).Msg("Failed to write bottom row")
	}
}

func pad(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return s + strings.Repeat(" ", width-len(runes))
}

// ConsoleCharDisplay logs rows instead of driving a panel.
type ConsoleCharDisplay struct {
	log zerolog.Logger
}

// NewConsoleCharDisplay creates a console character display.
func NewConsoleCharDisplay(log zerolog.Logger) *ConsoleCharDisplay {
	return &ConsoleCharDisplay{log: log.With().Str("component", "console-lcd").Logger()}
}

func (d *ConsoleCharDisplay) WriteRow(row int, text string) error {
	d.log.Info().Int("row", row).Str("text", text).Msg("LCD")
	return nil
}

func (d *ConsoleCharDisplay) Close() error { return nil }
