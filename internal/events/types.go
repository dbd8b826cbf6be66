// Package events defines the topics and payload schemas on the event bus,
// plus the in-process bus and the broker-backed publisher/subscriber.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"verdant/internal/clock"
)

// Topic is an enumerated channel name on the event bus.
// The set is closed; each topic carries a fixed payload schema.
type Topic string

const (
	TopicDHTReading      Topic = "dht.reading"
	TopicPicoReading     Topic = "pico.reading"
	TopicAlert           Topic = "alert"
	TopicHumidifierState Topic = "humidifier.state"
)

// AllTopics returns every known topic.
func AllTopics() []Topic {
	return []Topic{TopicDHTReading, TopicPicoReading, TopicAlert, TopicHumidifierState}
}

// Namespace groups alert keys by sensor family.
type Namespace string

const (
	NamespaceDHT  Namespace = "DHT"
	NamespacePico Namespace = "PICO"
)

// SensorID identifies a sensor within a namespace: either a named measure
// (temperature, humidity) or a numbered plant. It serializes to a JSON
// string or number accordingly.
type SensorID struct {
	name    string
	plant   int
	isPlant bool
}

// NamedSensor creates a SensorID for a named measure.
func NamedSensor(name string) SensorID {
	return SensorID{name: name}
}

// PlantSensor creates a SensorID for a numbered plant.
func PlantSensor(id int) SensorID {
	return SensorID{plant: id, isPlant: true}
}

// IsPlant reports whether the id refers to a numbered plant.
func (s SensorID) IsPlant() bool {
	return s.isPlant
}

// Plant returns the plant number; only meaningful when IsPlant is true.
func (s SensorID) Plant() int {
	return s.plant
}

func (s SensorID) String() string {
	if s.isPlant {
		return strconv.Itoa(s.plant)
	}
	return s.name
}

// MarshalJSON emits a JSON number for plants and a string otherwise.
func (s SensorID) MarshalJSON() ([]byte, error) {
	if s.isPlant {
		return json.Marshal(s.plant)
	}
	return json.Marshal(s.name)
}

// UnmarshalJSON accepts either a JSON number or a string.
func (s *SensorID) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = PlantSensor(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("sensor_name must be a string or number: %w", err)
	}
	*s = NamedSensor(str)
	return nil
}

// DHTReading is the payload for TopicDHTReading.
type DHTReading struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	RecordingTime string  `json:"recording_time"`
	Epoch         int64   `json:"epoch"`
}

// NewDHTReading builds a payload with the wire timestamp fields filled in.
func NewDHTReading(temperature, humidity float64, at time.Time) DHTReading {
	return DHTReading{
		Temperature:   temperature,
		Humidity:      humidity,
		RecordingTime: clock.FormatRecording(at),
		Epoch:         clock.EpochMillis(at),
	}
}

// PicoReading is one element of the TopicPicoReading payload.
// The topic carries either a single object or an array of them.
type PicoReading struct {
	PlantID       int     `json:"plant_id"`
	Moisture      float64 `json:"moisture"`
	RecordingTime string  `json:"recording_time"`
	Epoch         int64   `json:"epoch"`
}

// NewPicoReading builds a payload with the wire timestamp fields filled in.
func NewPicoReading(plantID int, moisture float64, at time.Time) PicoReading {
	return PicoReading{
		PlantID:       plantID,
		Moisture:      moisture,
		RecordingTime: clock.FormatRecording(at),
		Epoch:         clock.EpochMillis(at),
	}
}

// AlertEvent is the payload for TopicAlert. Threshold is null on
// resolution events. Events are immutable once published.
type AlertEvent struct {
	Namespace     Namespace `json:"namespace"`
	SensorName    SensorID  `json:"sensor_name"`
	Value         float64   `json:"value"`
	Unit          string    `json:"unit"`
	Threshold     *float64  `json:"threshold"`
	RecordingTime string    `json:"recording_time"`
	IsResolved    bool      `json:"is_resolved"`
}

// HumidifierState is the payload for TopicHumidifierState.
type HumidifierState struct {
	IsOn          bool   `json:"is_on"`
	RecordingTime string `json:"recording_time"`
}
