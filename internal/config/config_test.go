package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		MinTemperature:        18,
		MaxTemperature:        30,
		MinHumidity:           40,
		MaxHumidity:           80,
		TemperatureHysteresis: 2,
		HumidityHysteresis:    5,
		RetentionDays:         7,
		PollFrequency:         1,
		NotificationBackends:  []string{"gmail"},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsInvertedAxes(t *testing.T) {
	cfg := validConfig()
	cfg.MinTemperature = 30
	cfg.MaxTemperature = 18
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.MinHumidity = 80
	cfg.MaxHumidity = 40
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOverlappingHysteresis(t *testing.T) {
	cfg := validConfig()
	// Bands 18+7=25 and 30-7=23 cross.
	cfg.TemperatureHysteresis = 7
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEMPERATURE_HYSTERESIS")
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.NotificationBackends = []string{"pager"}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresCredentialsWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.NotificationsEnabled = true
	cfg.NotificationBackends = []string{"gmail"}
	require.Error(t, cfg.Validate(), "gmail without SMTP credentials")

	cfg.SMTPUser = "greenhouse@example.com"
	cfg.SMTPPassword = "app-password"
	cfg.NotifyEmailTo = "owner@example.com"
	assert.NoError(t, cfg.Validate())

	cfg.NotificationBackends = []string{"slack"}
	require.Error(t, cfg.Validate(), "slack without webhook URL")
	cfg.SlackWebhookURL = "https://hooks.slack.com/services/T/B/x"
	assert.NoError(t, cfg.Validate())
}

func TestLoadPlantThresholds(t *testing.T) {
	environ := []string{
		"MOISTURE_PLANT_1=35",
		"MOISTURE_PLANT_12=20",
		"MOISTURE_PLANT_x=50",
		"PATH=/usr/bin",
	}
	out := loadPlantThresholds(environ)
	assert.Equal(t, map[int]int{1: 35, 12: 20}, out)
}
