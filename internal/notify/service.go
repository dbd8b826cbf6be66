package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"verdant/internal/events"
	"verdant/internal/settings"
)

// Service consumes alert events and dispatches notifications. Whether
// notifications are enabled and which backends run is read from the
// settings store per event, so admin changes apply without a restart.
type Service struct {
	store        *settings.Store
	available    map[string]Notifier
	noop         Notifier
	policy       RetryPolicy
	drainTimeout time.Duration
	log          zerolog.Logger
	wg           sync.WaitGroup
}

// NewService creates the notifier service. available maps backend names
// from the settings catalog to their implementations.
func NewService(store *settings.Store, available map[string]Notifier, policy RetryPolicy, log zerolog.Logger) *Service {
	return &Service{
		store:        store,
		available:    available,
		noop:         NewNoOpBackend(log),
		policy:       policy,
		drainTimeout: policy.AttemptTimeout,
		log:          log.With().Str("component", "notifier").Logger(),
	}
}

// Run consumes the message stream until it closes, then waits for pending
// fan-outs up to the drain timeout.
func (s *Service) Run(ctx context.Context, messages <-chan events.Message) {
	for msg := range messages {
		if msg.Topic != events.TopicAlert {
			continue
		}
		s.handle(ctx, msg.Payload)
	}
	s.drain()
}

func (s *Service) handle(ctx context.Context, payload []byte) {
	var alert events.AlertEvent
	if err := json.Unmarshal(payload, &alert); err != nil {
		s.log.Warn().Err(err).Msg("Discarding malformed alert event")
		return
	}

	enabled, err := s.store.NotificationsEnabled(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read notification settings")
		return
	}
	if !enabled {
		_ = s.noop.Send(ctx, alert)
		return
	}

	names, err := s.store.NotificationBackends(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read notification backends")
		return
	}
	backends := make([]Notifier, 0, len(names))
	for _, name := range names {
		if n, ok := s.available[name]; ok {
			backends = append(backends, n)
		} else {
			s.log.Warn().Str("backend", name).Msg("Configured backend not available")
		}
	}
	if len(backends) == 0 {
		return
	}

	dispatcher := NewDispatcher(backends, s.policy, s.log)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := dispatcher.Send(ctx, alert); err != nil {
			// Partial failures are logged per-backend by the dispatcher;
			// the stream keeps flowing either way.
			s.log.Warn().Err(err).Msg("Alert notification incomplete")
		}
	}()
}

// drain waits for in-flight fan-outs, bounded so shutdown cannot hang on
// a stuck backend.
func (s *Service) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.log.Warn().Msg("Shutdown drain timed out with notifications in flight")
	}
}
