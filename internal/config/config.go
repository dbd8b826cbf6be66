// Package config loads environment configuration shared by all services.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for every process. Each binary reads the
// same environment; unused fields cost nothing.
type Config struct {
	LogLevel  string
	LogPretty bool

	// Storage
	DBPath       string
	DBPoolSize   int
	QueryTimeout time.Duration

	// Broker
	BrokerURL string

	// Polling
	PollFrequency time.Duration
	MockSensors   bool
	SerialPort    string
	SerialBaud    int

	// Default thresholds; runtime overrides live in the settings table.
	MinTemperature        int
	MaxTemperature        int
	MinHumidity           int
	MaxHumidity           int
	DefaultMoisture       int
	PlantMoisture         map[int]int
	TemperatureHysteresis int
	HumidityHysteresis    int
	MoistureHysteresis    int

	// Retention
	RetentionDays int

	// Notifications
	NotificationsEnabled bool
	NotificationBackends []string
	SMTPHost             string
	SMTPPort             int
	SMTPUser             string
	SMTPPassword         string
	NotifyEmailTo        string
	SlackWebhookURL      string
	NotifyMaxRetries     int
	NotifyBackoff        time.Duration
	NotifyTimeout        time.Duration

	// HTTP server
	Port                 int
	AdminInitialPassword string

	// Displays
	OLEDEnabled bool
	LCDEnabled  bool
	LCDColumns  int
	LCDScroll   time.Duration
}

// plantThresholdRe matches MOISTURE_PLANT_<n> environment variables.
var plantThresholdRe = regexp.MustCompile(`^MOISTURE_PLANT_(\d+)=(-?\d+)$`)

// Load reads configuration from the environment, with a .env file as the
// fallback source.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		DBPath:       getEnv("DB_PATH", "/home/greenhouse/data/greenhouse.db"),
		DBPoolSize:   getEnvAsInt("DB_POOL_SIZE", 5),
		QueryTimeout: getEnvAsDuration("DB_QUERY_TIMEOUT_SECONDS", 5),

		BrokerURL: getEnv("BROKER_URL", "redis://localhost:6379/0"),

		PollFrequency: getEnvAsDuration("POLL_FREQUENCY_SECONDS", 2),
		MockSensors:   getEnvAsBool("MOCK_SENSORS", false),
		SerialPort:    getEnv("SERIAL_PORT", "/dev/ttyACM0"),
		SerialBaud:    getEnvAsInt("SERIAL_BAUD", 115200),

		MinTemperature:        getEnvAsInt("MIN_TEMPERATURE", 18),
		MaxTemperature:        getEnvAsInt("MAX_TEMPERATURE", 30),
		MinHumidity:           getEnvAsInt("MIN_HUMIDITY", 40),
		MaxHumidity:           getEnvAsInt("MAX_HUMIDITY", 80),
		DefaultMoisture:       getEnvAsInt("DEFAULT_MOISTURE", 40),
		PlantMoisture:         loadPlantThresholds(os.Environ()),
		TemperatureHysteresis: getEnvAsInt("TEMPERATURE_HYSTERESIS", 2),
		HumidityHysteresis:    getEnvAsInt("HUMIDITY_HYSTERESIS", 5),
		MoistureHysteresis:    getEnvAsInt("MOISTURE_HYSTERESIS", 5),

		RetentionDays: getEnvAsInt("RETENTION_DAYS", 7),

		NotificationsEnabled: getEnvAsBool("NOTIFICATIONS_ENABLED", false),
		NotificationBackends: getEnvAsList("NOTIFICATION_BACKENDS", []string{"gmail"}),
		SMTPHost:             getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:             getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:             getEnv("SMTP_USER", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		NotifyEmailTo:        getEnv("NOTIFY_EMAIL_TO", ""),
		SlackWebhookURL:      getEnv("SLACK_WEBHOOK_URL", ""),
		NotifyMaxRetries:     getEnvAsInt("NOTIFY_MAX_RETRIES", 3),
		NotifyBackoff:        getEnvAsDuration("NOTIFY_BACKOFF_SECONDS", 1),
		NotifyTimeout:        getEnvAsDuration("NOTIFY_TIMEOUT_SECONDS", 10),

		Port:                 getEnvAsInt("PORT", 8080),
		AdminInitialPassword: getEnv("ADMIN_INITIAL_PASSWORD", ""),

		OLEDEnabled: getEnvAsBool("OLED_ENABLED", false),
		LCDEnabled:  getEnvAsBool("LCD_ENABLED", false),
		LCDColumns:  getEnvAsInt("LCD_COLUMNS", 16),
		LCDScroll:   getEnvAsDurationMillis("LCD_SCROLL_MILLIS", 400),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the threshold relations every service relies on:
// MIN < MAX per axis, and hysteresis bands narrow enough that a rule's
// clear point never crosses the opposite threshold.
func (c *Config) Validate() error {
	if c.MinTemperature >= c.MaxTemperature {
		return fmt.Errorf("MIN_TEMPERATURE (%d) must be below MAX_TEMPERATURE (%d)", c.MinTemperature, c.MaxTemperature)
	}
	if c.MinHumidity >= c.MaxHumidity {
		return fmt.Errorf("MIN_HUMIDITY (%d) must be below MAX_HUMIDITY (%d)", c.MinHumidity, c.MaxHumidity)
	}
	if c.TemperatureHysteresis < 0 || c.HumidityHysteresis < 0 || c.MoistureHysteresis < 0 {
		return fmt.Errorf("hysteresis offsets must be non-negative")
	}
	if c.MinTemperature+c.TemperatureHysteresis >= c.MaxTemperature-c.TemperatureHysteresis {
		return fmt.Errorf("TEMPERATURE_HYSTERESIS (%d) overlaps the [%d, %d] band", c.TemperatureHysteresis, c.MinTemperature, c.MaxTemperature)
	}
	if c.MinHumidity+c.HumidityHysteresis >= c.MaxHumidity-c.HumidityHysteresis {
		return fmt.Errorf("HUMIDITY_HYSTERESIS (%d) overlaps the [%d, %d] band", c.HumidityHysteresis, c.MinHumidity, c.MaxHumidity)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1")
	}
	if c.PollFrequency <= 0 {
		return fmt.Errorf("POLL_FREQUENCY_SECONDS must be positive")
	}
	for _, backend := range c.NotificationBackends {
		switch backend {
		case "gmail", "slack":
		default:
			return fmt.Errorf("unknown notification backend %q", backend)
		}
	}
	if c.NotificationsEnabled {
		if containsBackend(c.NotificationBackends, "gmail") && (c.SMTPUser == "" || c.SMTPPassword == "" || c.NotifyEmailTo == "") {
			return fmt.Errorf("gmail backend requires SMTP_USER, SMTP_PASSWORD and NOTIFY_EMAIL_TO")
		}
		if containsBackend(c.NotificationBackends, "slack") && c.SlackWebhookURL == "" {
			return fmt.Errorf("slack backend requires SLACK_WEBHOOK_URL")
		}
	}
	return nil
}

func containsBackend(backends []string, name string) bool {
	for _, b := range backends {
		if b == name {
			return true
		}
	}
	return false
}

// loadPlantThresholds scans the environment for MOISTURE_PLANT_<n> overrides.
func loadPlantThresholds(environ []string) map[int]int {
	out := make(map[int]int)
	for _, kv := range environ {
		m := plantThresholdRe.FindStringSubmatch(kv)
		if m == nil {
			continue
		}
		id, err1 := strconv.Atoi(m[1])
		value, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		out[id] = value
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsDurationMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
