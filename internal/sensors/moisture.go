package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"verdant/internal/alerts"
	"verdant/internal/clock"
	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/settings"
)

// ErrBadPlantID marks a moisture sample whose key is not plant-<digits>.
var ErrBadPlantID = errors.New("sensors: bad plant id")

// Moisture plausibility bounds (percent).
const (
	MinPlausibleMoisture = 0.0
	MaxPlausibleMoisture = 100.0
)

var plantKeyRe = regexp.MustCompile(`^plant-(\d+)$`)

// MoistureSample is one plant's reading from a board line.
type MoistureSample struct {
	PlantID  int
	Moisture float64
}

// ParseMoistureLine decodes one board line: a JSON object whose keys are
// plant-<digits> and values are moisture percentages. Keys that do not
// match return ErrBadPlantID; the caller discards the whole line.
func ParseMoistureLine(line string) ([]MoistureSample, error) {
	var raw map[string]float64
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse moisture line: %w", err)
	}
	samples := make([]MoistureSample, 0, len(raw))
	for key, value := range raw {
		m := plantKeyRe.FindStringSubmatch(key)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPlantID, key)
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadPlantID, key)
		}
		samples = append(samples, MoistureSample{PlantID: id, Moisture: value})
	}
	return samples, nil
}

// LineSource yields raw lines from the moisture board. The serial reader
// and the mock both implement it.
type LineSource interface {
	Lines(ctx context.Context) (<-chan string, error)
	Close() error
}

// MoistureReading is one accepted batch of plant samples.
type MoistureReading struct {
	Samples []MoistureSample
	At      time.Time
}

// MoistureService is the poller.Service for the plant moisture board.
// Poll blocks on the next board line; a malformed line is a transient
// skip, logged by the parser path.
type MoistureService struct {
	source    LineSource
	db        *database.DB
	store     *settings.Store
	tracker   *alerts.Tracker
	publisher *events.Publisher
	log       zerolog.Logger

	lines <-chan string
}

// NewMoistureService wires the moisture pipeline and registers the PICO
// alert callback.
func NewMoistureService(source LineSource, db *database.DB, store *settings.Store, tracker *alerts.Tracker, publisher *events.Publisher, log zerolog.Logger) *MoistureService {
	s := &MoistureService{
		source:    source,
		db:        db,
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		log:       log.With().Str("component", "moisture").Logger(),
	}
	tracker.RegisterCallback(events.NamespacePico, s.publishTransition)
	return s
}

func (s *MoistureService) Init(ctx context.Context) error {
	lines, err := s.source.Lines(ctx)
	if err != nil {
		return fmt.Errorf("failed to open moisture line source: %w", err)
	}
	s.lines = lines
	return nil
}

func (s *MoistureService) Poll(ctx context.Context) (*MoistureReading, error) {
	select {
	case <-ctx.Done():
		return nil, nil
	case line, ok := <-s.lines:
		if !ok {
			return nil, errors.New("moisture line source closed")
		}
		samples, err := ParseMoistureLine(line)
		if err != nil {
			s.log.Warn().Err(err).Str("line", line).Msg("Discarding malformed moisture line")
			return nil, nil
		}
		if len(samples) == 0 {
			return nil, nil
		}
		return &MoistureReading{Samples: samples, At: clock.NowUTC()}, nil
	}
}

func (s *MoistureService) Audit(ctx context.Context, r *MoistureReading) (bool, error) {
	for _, sample := range r.Samples {
		if sample.Moisture < MinPlausibleMoisture || sample.Moisture > MaxPlausibleMoisture {
			s.log.Warn().Int("plant_id", sample.PlantID).Float64("moisture", sample.Moisture).
				Msg("Rejecting implausible moisture batch")
			return false, nil
		}
	}
	return true, nil
}

func (s *MoistureService) Persist(ctx context.Context, r *MoistureReading) error {
	recorded := clock.FormatRecording(r.At)
	for _, sample := range r.Samples {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO pico_reading (plant_id, moisture, recording_time)
			VALUES (?, ?, ?)
		`, sample.PlantID, sample.Moisture, recorded); err != nil {
			return fmt.Errorf("failed to persist moisture reading: %w", err)
		}
	}

	payloads := make([]events.PicoReading, len(r.Samples))
	for i, sample := range r.Samples {
		payloads[i] = events.NewPicoReading(sample.PlantID, sample.Moisture, r.At)
	}
	s.publisher.PublishBatch(ctx, events.TopicPicoReading, payloads)

	th, err := s.store.Thresholds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load threshold settings: %w", err)
	}
	for _, sample := range r.Samples {
		sensor := events.PlantSensor(sample.PlantID)
		rule := th.MoistureThreshold(sample.PlantID)
		state := s.tracker.StateOf(events.NamespacePico, sensor)
		violated := rule.Violated(sample.Moisture, state)
		s.tracker.Check(events.NamespacePico, sensor, sample.Moisture, violated, rule)
	}
	return nil
}

func (s *MoistureService) Cleanup() {
	if err := s.source.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close moisture line source")
	}
}

func (s *MoistureService) OnPollError(err error) {
	s.log.Error().Err(err).Msg("Moisture poll cycle failed")
}

func (s *MoistureService) publishTransition(t alerts.Transition) {
	var threshold *float64
	if t.Rule != nil {
		v := float64(t.Rule.Value)
		threshold = &v
	}
	s.publisher.Publish(context.Background(), events.TopicAlert, events.AlertEvent{
		Namespace:     t.Namespace,
		SensorName:    t.Sensor,
		Value:         t.Value,
		Unit:          UnitPercent,
		Threshold:     threshold,
		RecordingTime: clock.FormatRecording(clock.NowUTC()),
		IsResolved:    t.State == alerts.StateOK,
	})
}
