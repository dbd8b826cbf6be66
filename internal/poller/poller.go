// Package poller is the shared skeleton for sensor-reading services:
// poll, audit, persist, publish at a fixed cadence with graceful shutdown.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrRejected marks a reading that failed its audit. Rejections are
// logged and skipped; they never stop the loop.
var ErrRejected = errors.New("poller: reading rejected by audit")

// Service is one pollable sensor pipeline. Poll may return (nil, nil) to
// signal a transient skip (no data this cycle, not an error).
type Service[R any] interface {
	// Init prepares the service (open devices, warm caches).
	Init(ctx context.Context) error
	// Poll acquires one reading.
	Poll(ctx context.Context) (*R, error)
	// Audit validates a reading; false rejects it with a reason.
	Audit(ctx context.Context, reading *R) (bool, error)
	// Persist stores and publishes an accepted reading.
	Persist(ctx context.Context, reading *R) error
	// Cleanup releases resources; always runs on shutdown.
	Cleanup()
	// OnPollError observes cycle failures (for logging, counters).
	OnPollError(err error)
}

// Runner drives a Service at a fixed cadence. Each cycle is timed and the
// next poll is scheduled frequency-minus-elapsed later, floored at zero,
// so cycle duration does not drift the cadence.
type Runner[R any] struct {
	service   Service[R]
	frequency time.Duration
	log       zerolog.Logger
}

// NewRunner creates a runner for a service.
func NewRunner[R any](service Service[R], frequency time.Duration, name string, log zerolog.Logger) *Runner[R] {
	return &Runner[R]{
		service:   service,
		frequency: frequency,
		log:       log.With().Str("component", name).Logger(),
	}
}

// Run executes the poll loop until the context is cancelled. The in-flight
// cycle always finishes; Cleanup always runs.
func (r *Runner[R]) Run(ctx context.Context) error {
	if err := r.service.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize poller: %w", err)
	}
	defer r.service.Cleanup()

	r.log.Info().Dur("frequency", r.frequency).Msg("Poller started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Poller stopping")
			return nil
		default:
		}

		started := time.Now()
		r.cycle(ctx)

		sleep := r.frequency - time.Since(started)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Poller stopping")
			return nil
		case <-time.After(sleep):
		}
	}
}

// cycle runs one poll-audit-persist pass. Panics in service code are
// recovered and routed to OnPollError so a bad reading cannot kill the
// loop.
func (r *Runner[R]) cycle(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.service.OnPollError(fmt.Errorf("panic in poll cycle: %v", p))
		}
	}()

	reading, err := r.service.Poll(ctx)
	if err != nil {
		r.service.OnPollError(err)
		return
	}
	if reading == nil {
		// Transient skip; the sensor had nothing this cycle.
		return
	}

	ok, err := r.service.Audit(ctx, reading)
	if err != nil {
		r.service.OnPollError(err)
		return
	}
	if !ok {
		r.service.OnPollError(ErrRejected)
		return
	}

	if err := r.service.Persist(ctx, reading); err != nil {
		r.service.OnPollError(err)
	}
}
