package humidifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdant/internal/events"
	"verdant/internal/notify"
)

// fakePlug records the switch sequence.
type fakePlug struct {
	mu     sync.Mutex
	ops    []string
	onErr  error
	offErr error
}

func (p *fakePlug) On(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "on")
	return p.onErr
}

func (p *fakePlug) Off(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "off")
	return p.offErr
}

func (p *fakePlug) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "close")
	return nil
}

func (p *fakePlug) sequence() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func fastPolicy() notify.RetryPolicy {
	return notify.RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, AttemptTimeout: time.Second}
}

func alertMsg(t *testing.T, alert events.AlertEvent) events.Message {
	t.Helper()
	payload, err := json.Marshal(alert)
	require.NoError(t, err)
	return events.Message{Topic: events.TopicAlert, Payload: payload}
}

func lowHumidityAlert(resolved bool) events.AlertEvent {
	threshold := 40.0
	return events.AlertEvent{
		Namespace:     events.NamespaceDHT,
		SensorName:    events.NamedSensor("humidity"),
		Value:         30,
		Unit:          "%",
		Threshold:     &threshold,
		RecordingTime: "2026-08-24 10:00:00",
		IsResolved:    resolved,
	}
}

func runService(t *testing.T, plug Plug, bus *events.Bus, msgs ...events.Message) {
	t.Helper()
	svc := NewService(plug, events.NewPublisher(nil, bus, zerolog.Nop()), fastPolicy(), zerolog.Nop())
	messages := make(chan events.Message, len(msgs))
	for _, m := range msgs {
		messages <- m
	}
	close(messages)
	svc.Run(context.Background(), messages)
}

func TestLowHumidityAlertTurnsPlugOn(t *testing.T) {
	plug := &fakePlug{}
	bus := events.NewBus(zerolog.Nop())

	var states []events.HumidifierState
	bus.Subscribe(events.TopicHumidifierState, func(_ events.Topic, payload []byte) {
		var st events.HumidifierState
		require.NoError(t, json.Unmarshal(payload, &st))
		states = append(states, st)
	})

	runService(t, plug, bus, alertMsg(t, lowHumidityAlert(false)))

	// on (alert), then the shutdown off+close.
	assert.Equal(t, []string{"on", "off", "close"}, plug.sequence())
	require.NotEmpty(t, states)
	assert.True(t, states[0].IsOn)
	assert.NotEmpty(t, states[0].RecordingTime)
	// Shutdown while on publishes the final off state.
	assert.False(t, states[len(states)-1].IsOn)
}

func TestResolutionTurnsPlugOff(t *testing.T) {
	plug := &fakePlug{}
	resolved := lowHumidityAlert(true)
	resolved.Value = 45
	resolved.Threshold = nil

	runService(t, plug, events.NewBus(zerolog.Nop()),
		alertMsg(t, lowHumidityAlert(false)), alertMsg(t, resolved))

	assert.Equal(t, []string{"on", "off", "off", "close"}, plug.sequence())
}

func TestNonQualifyingAlertsIgnored(t *testing.T) {
	plug := &fakePlug{}
	high := lowHumidityAlert(false)
	high.Value = 90
	threshold := 80.0
	high.Threshold = &threshold

	temp := lowHumidityAlert(false)
	temp.SensorName = events.NamedSensor("temperature")

	pico := lowHumidityAlert(false)
	pico.Namespace = events.NamespacePico
	pico.SensorName = events.PlantSensor(1)

	runService(t, plug, events.NewBus(zerolog.Nop()),
		alertMsg(t, high), alertMsg(t, temp), alertMsg(t, pico))

	// Only the shutdown sequence; no alert qualified.
	assert.Equal(t, []string{"off", "close"}, plug.sequence())
}

func TestShutdownAlwaysTurnsOffBeforeClose(t *testing.T) {
	plug := &fakePlug{}
	runService(t, plug, events.NewBus(zerolog.Nop()))

	seq := plug.sequence()
	require.Equal(t, []string{"off", "close"}, seq)
}

func TestSwitchFailureDoesNotStopTheLoop(t *testing.T) {
	plug := &fakePlug{onErr: errors.New("plug unreachable")}
	bus := events.NewBus(zerolog.Nop())

	var published int
	bus.Subscribe(events.TopicHumidifierState, func(events.Topic, []byte) { published++ })

	runService(t, plug, bus, alertMsg(t, lowHumidityAlert(false)))

	assert.Zero(t, published, "failed switches must not report a state change")
	seq := plug.sequence()
	assert.Equal(t, "close", seq[len(seq)-1], "plug still closed on exit")
}
