package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReading struct {
	value int
}

// script drives the fake through a fixed sequence of cycle behaviors.
type fakeService struct {
	mu        sync.Mutex
	polls     int
	persisted []int
	errs      []error
	cleanedUp bool

	pollFn  func(n int) (*fakeReading, error)
	auditFn func(r *fakeReading) (bool, error)
	initErr error
}

func (f *fakeService) Init(ctx context.Context) error { return f.initErr }

func (f *fakeService) Poll(ctx context.Context) (*fakeReading, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	f.mu.Unlock()
	if f.pollFn != nil {
		return f.pollFn(n)
	}
	return &fakeReading{value: n}, nil
}

func (f *fakeService) Audit(ctx context.Context, r *fakeReading) (bool, error) {
	if f.auditFn != nil {
		return f.auditFn(r)
	}
	return true, nil
}

func (f *fakeService) Persist(ctx context.Context, r *fakeReading) error {
	f.mu.Lock()
	f.persisted = append(f.persisted, r.value)
	f.mu.Unlock()
	return nil
}

func (f *fakeService) Cleanup() {
	f.mu.Lock()
	f.cleanedUp = true
	f.mu.Unlock()
}

func (f *fakeService) OnPollError(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *fakeService) snapshot() ([]int, []error, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.persisted...), append([]error(nil), f.errs...), f.cleanedUp
}

func runFor(t *testing.T, svc *fakeService, freq, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	runner := NewRunner[fakeReading](svc, freq, "test-poller", zerolog.Nop())
	require.NoError(t, runner.Run(ctx))
}

func TestRunnerPersistsAcceptedReadings(t *testing.T) {
	svc := &fakeService{}
	runFor(t, svc, time.Millisecond, 50*time.Millisecond)

	persisted, errs, cleaned := svc.snapshot()
	assert.NotEmpty(t, persisted)
	assert.Empty(t, errs)
	assert.True(t, cleaned, "Cleanup must run on shutdown")
}

func TestRunnerInitFailureAborts(t *testing.T) {
	svc := &fakeService{initErr: errors.New("no device")}
	runner := NewRunner[fakeReading](svc, time.Millisecond, "test-poller", zerolog.Nop())
	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no device")
}

func TestRunnerRoutesErrorsAndContinues(t *testing.T) {
	pollErr := errors.New("sensor glitch")
	svc := &fakeService{
		pollFn: func(n int) (*fakeReading, error) {
			if n == 1 {
				return nil, pollErr
			}
			return &fakeReading{value: n}, nil
		},
	}
	runFor(t, svc, time.Millisecond, 50*time.Millisecond)

	persisted, errs, _ := svc.snapshot()
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], pollErr)
	assert.NotEmpty(t, persisted, "loop must survive a failed cycle")
}

func TestRunnerSkipsNilReadingsQuietly(t *testing.T) {
	svc := &fakeService{
		pollFn: func(n int) (*fakeReading, error) {
			if n%2 == 0 {
				return nil, nil
			}
			return &fakeReading{value: n}, nil
		},
	}
	runFor(t, svc, time.Millisecond, 50*time.Millisecond)

	persisted, errs, _ := svc.snapshot()
	assert.Empty(t, errs, "nil readings are skips, not errors")
	for _, v := range persisted {
		assert.Equal(t, 1, v%2)
	}
}

func TestRunnerRejectedAuditReportsErrRejected(t *testing.T) {
	svc := &fakeService{
		auditFn: func(r *fakeReading) (bool, error) { return false, nil },
	}
	runFor(t, svc, time.Millisecond, 30*time.Millisecond)

	persisted, errs, _ := svc.snapshot()
	assert.Empty(t, persisted)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrRejected)
}

func TestRunnerRecoversPanics(t *testing.T) {
	svc := &fakeService{
		pollFn: func(n int) (*fakeReading, error) {
			if n == 1 {
				panic("broken wire")
			}
			return &fakeReading{value: n}, nil
		},
	}
	runFor(t, svc, time.Millisecond, 50*time.Millisecond)

	persisted, errs, _ := svc.snapshot()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "broken wire")
	assert.NotEmpty(t, persisted, "loop must survive a panicking cycle")
}

func TestRunnerCadenceAbsorbsCycleTime(t *testing.T) {
	var times []time.Time
	svc := &fakeService{
		pollFn: func(n int) (*fakeReading, error) {
			times = append(times, time.Now())
			time.Sleep(5 * time.Millisecond)
			return &fakeReading{value: n}, nil
		},
	}
	runFor(t, svc, 20*time.Millisecond, 90*time.Millisecond)

	require.GreaterOrEqual(t, len(times), 3)
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		// Cycle work is absorbed into the 20ms period rather than added
		// on top. Generous upper bound for scheduler noise.
		assert.GreaterOrEqual(t, gap, 15*time.Millisecond)
		assert.Less(t, gap, 40*time.Millisecond)
	}
}
