package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"verdant/internal/events"
)

// Notifier delivers one alert event to one backend.
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert events.AlertEvent) error
}

// PartialError reports which backends failed while others succeeded.
type PartialError struct {
	Failed map[string]error
}

func (e *PartialError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("notification failed for: %s", strings.Join(names, ", "))
}

// Dispatcher fans one alert out to every enabled backend concurrently,
// each under the retry policy. All backends are attempted regardless of
// individual failures.
type Dispatcher struct {
	backends []Notifier
	policy   RetryPolicy
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given backends.
func NewDispatcher(backends []Notifier, policy RetryPolicy, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		backends: backends,
		policy:   policy,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

// Send delivers the alert to all backends. Nil on full success; a
// *PartialError naming every failed backend otherwise.
func (d *Dispatcher) Send(ctx context.Context, alert events.AlertEvent) error {
	if len(d.backends) == 0 {
		return nil
	}

	var mu sync.Mutex
	failed := make(map[string]error)
	var wg sync.WaitGroup

	for _, backend := range d.backends {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			err := d.policy.Do(ctx, func(ctx context.Context) error {
				return n.Send(ctx, alert)
			})
			if err != nil {
				d.log.Error().Err(err).Str("backend", n.Name()).Msg("Notification delivery failed")
				mu.Lock()
				failed[n.Name()] = err
				mu.Unlock()
			}
		}(backend)
	}
	wg.Wait()

	if len(failed) > 0 {
		return &PartialError{Failed: failed}
	}
	return nil
}

// Subject renders the one-line summary used by all backends.
func Subject(alert events.AlertEvent) string {
	if alert.IsResolved {
		return fmt.Sprintf("Resolved: %s %s back in range", alert.Namespace, alert.SensorName.String())
	}
	return fmt.Sprintf("Alert: %s %s out of range", alert.Namespace, alert.SensorName.String())
}

// Body renders the full notification text.
func Body(alert events.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sensor %s/%s reported %.1f%s at %s.",
		alert.Namespace, alert.SensorName.String(), alert.Value, alert.Unit, alert.RecordingTime)
	if alert.Threshold != nil {
		fmt.Fprintf(&b, " Threshold: %.1f%s.", *alert.Threshold, alert.Unit)
	}
	if alert.IsResolved {
		b.WriteString(" The value is back within the configured range.")
	}
	return b.String()
}
