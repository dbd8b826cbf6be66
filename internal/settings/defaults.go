package settings

import "verdant/internal/config"

// DefaultsFromConfig maps the environment configuration onto the settings
// catalog defaults. Every process builds its store this way.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		MinTemperature:        cfg.MinTemperature,
		MaxTemperature:        cfg.MaxTemperature,
		MinHumidity:           cfg.MinHumidity,
		MaxHumidity:           cfg.MaxHumidity,
		DefaultMoisture:       cfg.DefaultMoisture,
		PlantMoisture:         cfg.PlantMoisture,
		TemperatureHysteresis: cfg.TemperatureHysteresis,
		HumidityHysteresis:    cfg.HumidityHysteresis,
		MoistureHysteresis:    cfg.MoistureHysteresis,
		NotificationsEnabled:  cfg.NotificationsEnabled,
		NotificationBackends:  cfg.NotificationBackends,
		RetentionDays:         cfg.RetentionDays,
	}
}
