package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdant/internal/events"
)

// fakeBackend scripts per-call outcomes.
type fakeBackend struct {
	name  string
	calls atomic.Int64
	fn    func(call int64) error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Send(ctx context.Context, _ events.AlertEvent) error {
	call := f.calls.Add(1)
	if f.fn == nil {
		return nil
	}
	return f.fn(call)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond, AttemptTimeout: time.Second}
}

func sampleAlert() events.AlertEvent {
	threshold := 18.0
	return events.AlertEvent{
		Namespace:     events.NamespaceDHT,
		SensorName:    events.NamedSensor("temperature"),
		Value:         12.5,
		Unit:          "°C",
		Threshold:     &threshold,
		RecordingTime: "2026-08-24 10:00:00",
	}
}

func TestDispatcherAllSucceed(t *testing.T) {
	a := &fakeBackend{name: "gmail"}
	b := &fakeBackend{name: "slack"}
	d := NewDispatcher([]Notifier{a, b}, fastPolicy(), zerolog.Nop())

	require.NoError(t, d.Send(context.Background(), sampleAlert()))
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestDispatcherPartialFailure(t *testing.T) {
	a := &fakeBackend{name: "gmail"}
	b := &fakeBackend{name: "slack", fn: func(int64) error { return errors.New("bad token") }}
	d := NewDispatcher([]Notifier{a, b}, fastPolicy(), zerolog.Nop())

	err := d.Send(context.Background(), sampleAlert())
	require.Error(t, err)

	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, partial.Failed, "slack")
	assert.NotContains(t, partial.Failed, "gmail")
	assert.EqualValues(t, 1, a.calls.Load(), "healthy backend runs despite the failing one")
}

func TestRetryPolicyRetriesTransientFailures(t *testing.T) {
	backend := &fakeBackend{name: "slack", fn: func(call int64) error {
		if call < 3 {
			return Retryable(errors.New("503"))
		}
		return nil
	}}
	d := NewDispatcher([]Notifier{backend}, fastPolicy(), zerolog.Nop())

	require.NoError(t, d.Send(context.Background(), sampleAlert()))
	assert.EqualValues(t, 3, backend.calls.Load())
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors must not retry")
}

func TestRetryPolicyExhaustsRetries(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("flaky"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus MaxRetries")
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestRetryPolicyHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, InitialBackoff: time.Hour, AttemptTimeout: time.Second}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, func(ctx context.Context) error {
		return Retryable(errors.New("flaky"))
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubjectAndBody(t *testing.T) {
	alert := sampleAlert()
	assert.Contains(t, Subject(alert), "Alert")
	assert.Contains(t, Body(alert), "12.5°C")
	assert.Contains(t, Body(alert), "Threshold: 18.0°C")

	alert.IsResolved = true
	alert.Threshold = nil
	assert.Contains(t, Subject(alert), "Resolved")
	assert.NotContains(t, Body(alert), "Threshold")
}
