package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/settings"
)

var dbSeq atomic.Int64

func testStore(t *testing.T, enabled bool, backends []string) *settings.Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:notify_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
		Mode: database.ModePoller,
		Name: "notify-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Bootstrap(context.Background()))
	return settings.NewStore(db, nil, settings.Defaults{
		NotificationsEnabled: enabled,
		NotificationBackends: backends,
		RetentionDays:        7,
	}, zerolog.Nop())
}

func alertMessage(t *testing.T) events.Message {
	t.Helper()
	payload, err := json.Marshal(sampleAlert())
	require.NoError(t, err)
	return events.Message{Topic: events.TopicAlert, Payload: payload}
}

func TestServiceDispatchesEnabledBackends(t *testing.T) {
	gmail := &fakeBackend{name: "gmail"}
	slack := &fakeBackend{name: "slack"}
	svc := NewService(testStore(t, true, []string{"gmail"}),
		map[string]Notifier{"gmail": gmail, "slack": slack}, fastPolicy(), zerolog.Nop())

	messages := make(chan events.Message, 1)
	messages <- alertMessage(t)
	close(messages)
	svc.Run(context.Background(), messages)

	assert.EqualValues(t, 1, gmail.calls.Load())
	assert.EqualValues(t, 0, slack.calls.Load(), "only configured backends run")
}

func TestServiceSkipsWhenDisabled(t *testing.T) {
	gmail := &fakeBackend{name: "gmail"}
	svc := NewService(testStore(t, false, []string{"gmail"}),
		map[string]Notifier{"gmail": gmail}, fastPolicy(), zerolog.Nop())

	messages := make(chan events.Message, 1)
	messages <- alertMessage(t)
	close(messages)
	svc.Run(context.Background(), messages)

	assert.EqualValues(t, 0, gmail.calls.Load())
}

func TestServiceDisabledRoutesThroughNoOp(t *testing.T) {
	gmail := &fakeBackend{name: "gmail"}
	noop := &fakeBackend{name: "noop"}
	svc := NewService(testStore(t, false, []string{"gmail"}),
		map[string]Notifier{"gmail": gmail}, fastPolicy(), zerolog.Nop())
	svc.noop = noop

	messages := make(chan events.Message, 1)
	messages <- alertMessage(t)
	close(messages)
	svc.Run(context.Background(), messages)

	assert.EqualValues(t, 1, noop.calls.Load(), "disabled alerts still take the no-op path")
	assert.EqualValues(t, 0, gmail.calls.Load())
}

func TestNoOpBackendSucceeds(t *testing.T) {
	n := NewNoOpBackend(zerolog.Nop())
	assert.Equal(t, "noop", n.Name())
	assert.NoError(t, n.Send(context.Background(), sampleAlert()))
}

func TestServiceIgnoresOtherTopicsAndMalformedPayloads(t *testing.T) {
	gmail := &fakeBackend{name: "gmail"}
	svc := NewService(testStore(t, true, []string{"gmail"}),
		map[string]Notifier{"gmail": gmail}, fastPolicy(), zerolog.Nop())

	messages := make(chan events.Message, 2)
	messages <- events.Message{Topic: events.TopicDHTReading, Payload: []byte(`{}`)}
	messages <- events.Message{Topic: events.TopicAlert, Payload: []byte(`not json`)}
	close(messages)
	svc.Run(context.Background(), messages)

	assert.EqualValues(t, 0, gmail.calls.Load())
}

func TestServiceDrainsPendingSends(t *testing.T) {
	done := make(chan struct{})
	slow := &fakeBackend{name: "gmail", fn: func(int64) error {
		time.Sleep(20 * time.Millisecond)
		close(done)
		return nil
	}}
	svc := NewService(testStore(t, true, []string{"gmail"}),
		map[string]Notifier{"gmail": slow}, fastPolicy(), zerolog.Nop())

	messages := make(chan events.Message, 1)
	messages <- alertMessage(t)
	close(messages)
	svc.Run(context.Background(), messages)

	select {
	case <-done:
	default:
		t.Fatal("Run returned before the pending send finished")
	}
}
