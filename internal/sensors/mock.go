package sensors

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// MockClimateSensor is a seeded random walk inside plausible bounds, for
// development machines without the sensor attached (MOCK_SENSORS=true).
type MockClimateSensor struct {
	mu          sync.Mutex
	rng         *rand.Rand
	temperature float64
	humidity    float64
}

// NewMockClimateSensor starts the walk near comfortable greenhouse values.
func NewMockClimateSensor(seed int64) *MockClimateSensor {
	return &MockClimateSensor{
		rng:         rand.New(rand.NewSource(seed)),
		temperature: 23.5,
		humidity:    58.0,
	}
}

func (m *MockClimateSensor) Read(ctx context.Context) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temperature = walk(m.rng, m.temperature, 0.4, 15, 35)
	m.humidity = walk(m.rng, m.humidity, 1.2, 30, 90)
	return m.temperature, m.humidity, nil
}

func (m *MockClimateSensor) Close() error { return nil }

// MockLineSource emits synthetic board lines for a fixed set of plants.
type MockLineSource struct {
	plants   []int
	interval time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	moisture map[int]float64
	cancel   context.CancelFunc
}

// NewMockLineSource creates a source producing one line per interval.
func NewMockLineSource(plants []int, interval time.Duration, seed int64) *MockLineSource {
	moisture := make(map[int]float64, len(plants))
	for _, id := range plants {
		moisture[id] = 55.0
	}
	return &MockLineSource{
		plants:   plants,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		moisture: moisture,
	}
}

func (m *MockLineSource) Lines(ctx context.Context) (<-chan string, error) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	out := make(chan string)
	go func() {
		defer close(out)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case <-ctx.Done():
					return
				case out <- m.nextLine():
				}
			}
		}
	}()
	return out, nil
}

func (m *MockLineSource) nextLine() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]string, 0, len(m.plants))
	for _, id := range m.plants {
		m.moisture[id] = walk(m.rng, m.moisture[id], 2.0, 10, 95)
		parts = append(parts, fmt.Sprintf("%q: %.1f", fmt.Sprintf("plant-%d", id), m.moisture[id]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (m *MockLineSource) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

// walk takes one bounded random step.
func walk(rng *rand.Rand, current, step, min, max float64) float64 {
	next := current + (rng.Float64()*2-1)*step
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	return next
}
