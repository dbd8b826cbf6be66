// Package sensors implements the concrete sensor pipelines on top of the
// poller skeleton: the ambient climate reader and the plant moisture
// reader, plus the parsing and mock layers behind them.
package sensors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"verdant/internal/alerts"
	"verdant/internal/clock"
	"verdant/internal/database"
	"verdant/internal/events"
	"verdant/internal/settings"
)

// ErrOutOfBounds marks a reading outside the physically plausible range.
var ErrOutOfBounds = errors.New("sensors: reading out of bounds")

// Physical plausibility bounds; readings outside are sensor faults.
const (
	MinPlausibleTemperature = -40.0
	MaxPlausibleTemperature = 80.0
	MinPlausibleHumidity    = 0.0
	MaxPlausibleHumidity    = 100.0
)

// Sensor name constants for alert keys and display labels.
const (
	SensorTemperature = "temperature"
	SensorHumidity    = "humidity"

	UnitCelsius = "°C"
	UnitPercent = "%"
)

// ClimateSensor reads one ambient temperature/humidity pair. The DHT22
// driver and the mock both implement it.
type ClimateSensor interface {
	Read(ctx context.Context) (temperature, humidity float64, err error)
	Close() error
}

// ClimateReading is one accepted ambient sample.
type ClimateReading struct {
	Temperature float64
	Humidity    float64
	At          time.Time
}

// ClimateService is the poller.Service for the ambient climate sensor:
// read, bounds-check, persist, publish, and feed both axes through the
// alert tracker with the current threshold rules.
type ClimateService struct {
	sensor    ClimateSensor
	db        *database.DB
	store     *settings.Store
	tracker   *alerts.Tracker
	publisher *events.Publisher
	log       zerolog.Logger
}

// NewClimateService wires the ambient pipeline. The tracker's DHT
// callback is registered here so committed transitions publish alert
// events with the reading that caused them.
func NewClimateService(sensor ClimateSensor, db *database.DB, store *settings.Store, tracker *alerts.Tracker, publisher *events.Publisher, log zerolog.Logger) *ClimateService {
	s := &ClimateService{
		sensor:    sensor,
		db:        db,
		store:     store,
		tracker:   tracker,
		publisher: publisher,
		log:       log.With().Str("component", "climate").Logger(),
	}
	tracker.RegisterCallback(events.NamespaceDHT, s.publishTransition)
	return s
}

func (s *ClimateService) Init(ctx context.Context) error { return nil }

func (s *ClimateService) Poll(ctx context.Context) (*ClimateReading, error) {
	temperature, humidity, err := s.sensor.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read climate sensor: %w", err)
	}
	return &ClimateReading{
		Temperature: temperature,
		Humidity:    humidity,
		At:          clock.NowUTC(),
	}, nil
}

func (s *ClimateService) Audit(ctx context.Context, r *ClimateReading) (bool, error) {
	if r.Temperature < MinPlausibleTemperature || r.Temperature > MaxPlausibleTemperature {
		s.log.Warn().Float64("temperature", r.Temperature).Msg("Rejecting implausible temperature")
		return false, nil
	}
	if r.Humidity < MinPlausibleHumidity || r.Humidity > MaxPlausibleHumidity {
		s.log.Warn().Float64("humidity", r.Humidity).Msg("Rejecting implausible humidity")
		return false, nil
	}
	return true, nil
}

func (s *ClimateService) Persist(ctx context.Context, r *ClimateReading) error {
	recorded := clock.FormatRecording(r.At)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reading (temperature, humidity, recording_time)
		VALUES (?, ?, ?)
	`, r.Temperature, r.Humidity, recorded); err != nil {
		return fmt.Errorf("failed to persist climate reading: %w", err)
	}

	s.publisher.Publish(ctx, events.TopicDHTReading, events.NewDHTReading(r.Temperature, r.Humidity, r.At))

	// Rules come from the store each cycle so admin changes apply within
	// one cache TTL.
	th, err := s.store.Thresholds(ctx)
	if err != nil {
		return fmt.Errorf("failed to load threshold settings: %w", err)
	}
	s.checkAxis(events.NamedSensor(SensorTemperature), r.Temperature, th.Temperature)
	s.checkAxis(events.NamedSensor(SensorHumidity), r.Humidity, th.Humidity)
	return nil
}

func (s *ClimateService) checkAxis(sensor events.SensorID, value float64, axis settings.Axis) {
	state := s.tracker.StateOf(events.NamespaceDHT, sensor)
	violated, rule := alerts.EvaluateAxis(value, axis.Min, axis.Max, state)
	s.tracker.Check(events.NamespaceDHT, sensor, value, violated, rule)
}

func (s *ClimateService) Cleanup() {
	if err := s.sensor.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close climate sensor")
	}
}

func (s *ClimateService) OnPollError(err error) {
	s.log.Error().Err(err).Msg("Climate poll cycle failed")
}

// publishTransition emits one alert event for a committed state change.
func (s *ClimateService) publishTransition(t alerts.Transition) {
	unit := UnitCelsius
	if t.Sensor.String() == SensorHumidity {
		unit = UnitPercent
	}
	var threshold *float64
	if t.Rule != nil {
		v := float64(t.Rule.Value)
		threshold = &v
	}
	s.publisher.Publish(context.Background(), events.TopicAlert, events.AlertEvent{
		Namespace:     t.Namespace,
		SensorName:    t.Sensor,
		Value:         t.Value,
		Unit:          unit,
		Threshold:     threshold,
		RecordingTime: clock.FormatRecording(clock.NowUTC()),
		IsResolved:    t.State == alerts.StateOK,
	})
}
