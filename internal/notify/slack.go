package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"verdant/internal/events"
)

// SlackBackend posts alerts to a Slack incoming webhook.
type SlackBackend struct {
	webhookURL string
	client     *http.Client
}

// NewSlackBackend creates the slack backend.
func NewSlackBackend(webhookURL string) *SlackBackend {
	return &SlackBackend{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *SlackBackend) Name() string { return "slack" }

func (s *SlackBackend) Send(ctx context.Context, alert events.AlertEvent) error {
	payload, err := json.Marshal(map[string]string{
		"text": Subject(alert) + "\n" + Body(alert),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Retryable(fmt.Errorf("slack request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return Retryable(fmt.Errorf("slack returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
}

// NoOpBackend logs and succeeds without delivering anything; it stands in
// for the real backends while notifications are globally disabled, so the
// subscriber loop stays uniform.
type NoOpBackend struct {
	log zerolog.Logger
}

// NewNoOpBackend creates the no-op backend.
func NewNoOpBackend(log zerolog.Logger) *NoOpBackend {
	return &NoOpBackend{log: log.With().Str("component", "noop-notifier").Logger()}
}

func (n *NoOpBackend) Name() string { return "noop" }

func (n *NoOpBackend) Send(ctx context.Context, alert events.AlertEvent) error {
	n.log.Debug().
		Str("namespace", string(alert.Namespace)).
		Str("sensor", alert.SensorName.String()).
		Msg("Notifications disabled, alert not delivered")
	return nil
}
