// Package settings is the versioned runtime configuration store: a
// settings table in SQLite, a broker-side version counter for
// cross-process invalidation, and a TTL'd in-process cache.
package settings

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Key is one entry in the closed settings catalog. Values are stored as
// strings and typed on the reader side.
type Key string

const (
	KeyMinTemperature       Key = "min_temperature"
	KeyMaxTemperature       Key = "max_temperature"
	KeyMinHumidity          Key = "min_humidity"
	KeyMaxHumidity          Key = "max_humidity"
	KeyDefaultMoisture      Key = "default_moisture"
	KeyNotificationsEnabled Key = "notifications_enabled"
	KeyNotificationBackends Key = "notification_backends"
	KeyRetentionDays        Key = "retention_days"
)

// ErrUnknownKey is returned when a write names a key outside the catalog.
var ErrUnknownKey = errors.New("settings: unknown key")

var plantKeyRe = regexp.MustCompile(`^moisture_plant_(\d+)$`)

// PlantMoistureKey returns the per-plant moisture threshold key.
func PlantMoistureKey(plantID int) Key {
	return Key(fmt.Sprintf("moisture_plant_%d", plantID))
}

// PlantID extracts the plant number from a per-plant moisture key.
// The second return is false for any other key.
func (k Key) PlantID() (int, bool) {
	m := plantKeyRe.FindStringSubmatch(string(k))
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Valid reports whether the key belongs to the catalog.
func (k Key) Valid() bool {
	switch k {
	case KeyMinTemperature, KeyMaxTemperature,
		KeyMinHumidity, KeyMaxHumidity,
		KeyDefaultMoisture,
		KeyNotificationsEnabled, KeyNotificationBackends,
		KeyRetentionDays:
		return true
	}
	_, ok := k.PlantID()
	return ok
}
