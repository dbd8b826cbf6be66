package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"verdant/internal/alerts"
	"verdant/internal/clock"
	"verdant/internal/database"
)

// DefaultTTL bounds how stale a cached settings snapshot may get when the
// version counter has not moved.
const DefaultTTL = 30 * time.Second

// VersionStore is the broker-side version counter. The broker client
// implements it; tests substitute an in-memory fake.
type VersionStore interface {
	SettingsVersion(ctx context.Context) (int64, error)
	BumpSettingsVersion(ctx context.Context) (int64, error)
}

// Defaults supplies a value for every catalog key that has no row in the
// settings table yet. Populated from environment configuration.
type Defaults struct {
	MinTemperature        int
	MaxTemperature        int
	MinHumidity           int
	MaxHumidity           int
	DefaultMoisture       int
	PlantMoisture         map[int]int
	TemperatureHysteresis int
	HumidityHysteresis    int
	MoistureHysteresis    int
	NotificationsEnabled  bool
	NotificationBackends  []string
	RetentionDays         int
}

// Store reads and writes runtime settings with cross-process freshness:
// writers bump the broker version counter before touching the database,
// readers compare the counter against their cached snapshot.
type Store struct {
	db       *database.DB
	versions VersionStore
	defaults Defaults
	ttl      time.Duration
	log      zerolog.Logger

	mu            sync.Mutex
	cached        map[Key]string
	cachedVersion int64
	cachedAt      time.Time
}

// NewStore creates a settings store. versions may be nil; the store then
// always reads through to the database.
func NewStore(db *database.DB, versions VersionStore, defaults Defaults, log zerolog.Logger) *Store {
	return &Store{
		db:       db,
		versions: versions,
		defaults: defaults,
		ttl:      DefaultTTL,
		log:      log.With().Str("component", "settings").Logger(),
	}
}

// SetTTL overrides the cache TTL. Mainly for tests.
func (s *Store) SetTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

// GetAll returns the effective settings map, merging stored rows over the
// defaults. A cached snapshot is served only while the broker version
// matches it and the TTL has not expired; a broker outage bypasses the
// cache (serving possibly stale data silently would hide writes) without
// clearing it.
func (s *Store) GetAll(ctx context.Context) (map[Key]string, error) {
	version, versionKnown := s.currentVersion(ctx)

	if versionKnown {
		s.mu.Lock()
		if s.cached != nil && s.cachedVersion == version && time.Since(s.cachedAt) < s.ttl {
			out := copyMap(s.cached)
			s.mu.Unlock()
			return out, nil
		}
		s.mu.Unlock()
	}

	stored, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	merged := s.merge(stored)

	if versionKnown {
		s.mu.Lock()
		s.cached = copyMap(merged)
		s.cachedVersion = version
		s.cachedAt = time.Now()
		s.mu.Unlock()
	}
	return merged, nil
}

// SetBatch validates and writes a batch of settings. The broker version is
// bumped first so concurrent readers invalidate before the rows land; the
// upsert and the post-write read-back share one transaction. Returns the
// full post-write map.
func (s *Store) SetBatch(ctx context.Context, updates map[Key]string) (map[Key]string, error) {
	for k := range updates {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKey, k)
		}
	}

	newVersion, versionKnown := int64(0), false
	if s.versions != nil {
		v, err := s.versions.BumpSettingsVersion(ctx)
		if err != nil {
			// Writers proceed: broker-down readers fall back to DB reads
			// anyway, so the write stays visible.
			s.log.Warn().Err(err).Msg("Version bump failed, settings write proceeds uncached")
		} else {
			newVersion, versionKnown = v, true
		}
	}

	now := clock.FormatRecording(clock.NowUTC())
	var stored map[Key]string
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		for k, v := range updates {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, string(k), v, now); err != nil {
				return fmt.Errorf("failed to upsert setting %s: %w", k, err)
			}
		}
		var err error
		stored, err = fetchTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	merged := s.merge(stored)
	if versionKnown {
		s.mu.Lock()
		s.cached = copyMap(merged)
		s.cachedVersion = newVersion
		s.cachedAt = time.Now()
		s.mu.Unlock()
	}
	return merged, nil
}

// Thresholds returns the typed alert-rule view of the current settings.
func (s *Store) Thresholds(ctx context.Context) (ThresholdSettings, error) {
	m, err := s.GetAll(ctx)
	if err != nil {
		return ThresholdSettings{}, err
	}
	return s.thresholdsFrom(m), nil
}

// RetentionDays returns the configured retention window.
func (s *Store) RetentionDays(ctx context.Context) (int, error) {
	m, err := s.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return intValue(m, KeyRetentionDays, s.defaults.RetentionDays), nil
}

// NotificationsEnabled reports whether notification dispatch is on.
func (s *Store) NotificationsEnabled(ctx context.Context) (bool, error) {
	m, err := s.GetAll(ctx)
	if err != nil {
		return false, err
	}
	v, ok := m[KeyNotificationsEnabled]
	if !ok {
		return s.defaults.NotificationsEnabled, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return s.defaults.NotificationsEnabled, nil
	}
	return b, nil
}

// NotificationBackends returns the enabled backend names.
func (s *Store) NotificationBackends(ctx context.Context) ([]string, error) {
	m, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := m[KeyNotificationBackends]
	if !ok || strings.TrimSpace(v) == "" {
		return s.defaults.NotificationBackends, nil
	}
	parts := strings.Split(v, ",")
	backends := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			backends = append(backends, p)
		}
	}
	return backends, nil
}

func (s *Store) currentVersion(ctx context.Context) (int64, bool) {
	if s.versions == nil {
		return 0, false
	}
	v, err := s.versions.SettingsVersion(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Broker version read failed, bypassing settings cache")
		return 0, false
	}
	return v, true
}

func (s *Store) fetch(ctx context.Context) (map[Key]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()
	return scanSettings(rows)
}

func fetchTx(ctx context.Context, tx *sql.Tx) (map[Key]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()
	return scanSettings(rows)
}

func scanSettings(rows *sql.Rows) (map[Key]string, error) {
	out := make(map[Key]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[Key(k)] = v
	}
	return out, rows.Err()
}

// merge lays stored rows over the catalog defaults so every known key has
// an effective value.
func (s *Store) merge(stored map[Key]string) map[Key]string {
	out := map[Key]string{
		KeyMinTemperature:       strconv.Itoa(s.defaults.MinTemperature),
		KeyMaxTemperature:       strconv.Itoa(s.defaults.MaxTemperature),
		KeyMinHumidity:          strconv.Itoa(s.defaults.MinHumidity),
		KeyMaxHumidity:          strconv.Itoa(s.defaults.MaxHumidity),
		KeyDefaultMoisture:      strconv.Itoa(s.defaults.DefaultMoisture),
		KeyNotificationsEnabled: strconv.FormatBool(s.defaults.NotificationsEnabled),
		KeyNotificationBackends: strings.Join(s.defaults.NotificationBackends, ","),
		KeyRetentionDays:        strconv.Itoa(s.defaults.RetentionDays),
	}
	for id, v := range s.defaults.PlantMoisture {
		out[PlantMoistureKey(id)] = strconv.Itoa(v)
	}
	for k, v := range stored {
		out[k] = v
	}
	return out
}

func intValue(m map[Key]string, k Key, fallback int) int {
	v, ok := m[k]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func copyMap(m map[Key]string) map[Key]string {
	out := make(map[Key]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ThresholdSettings is the typed view of the alerting configuration.
// Hysteresis offsets come from environment config, not the settings table;
// only the threshold values are admin-editable.
type ThresholdSettings struct {
	Temperature     Axis                `json:"temperature"`
	Humidity        Axis                `json:"humidity"`
	DefaultMoisture alerts.Rule         `json:"default_moisture"`
	PlantMoisture   map[int]alerts.Rule `json:"plant_moisture"`
}

// Axis is a MIN+MAX rule pair for one climate measure.
type Axis struct {
	Min alerts.Rule `json:"min"`
	Max alerts.Rule `json:"max"`
}

// MoistureThreshold returns the MIN rule for a plant, falling back to the
// default when no per-plant override exists.
func (t ThresholdSettings) MoistureThreshold(plantID int) alerts.Rule {
	if r, ok := t.PlantMoisture[plantID]; ok {
		return r
	}
	return t.DefaultMoisture
}

func (s *Store) thresholdsFrom(m map[Key]string) ThresholdSettings {
	t := ThresholdSettings{
		Temperature: Axis{
			Min: alerts.Rule{Kind: alerts.RuleMin, Value: intValue(m, KeyMinTemperature, s.defaults.MinTemperature), Hysteresis: s.defaults.TemperatureHysteresis},
			Max: alerts.Rule{Kind: alerts.RuleMax, Value: intValue(m, KeyMaxTemperature, s.defaults.MaxTemperature), Hysteresis: s.defaults.TemperatureHysteresis},
		},
		Humidity: Axis{
			Min: alerts.Rule{Kind: alerts.RuleMin, Value: intValue(m, KeyMinHumidity, s.defaults.MinHumidity), Hysteresis: s.defaults.HumidityHysteresis},
			Max: alerts.Rule{Kind: alerts.RuleMax, Value: intValue(m, KeyMaxHumidity, s.defaults.MaxHumidity), Hysteresis: s.defaults.HumidityHysteresis},
		},
		DefaultMoisture: alerts.Rule{Kind: alerts.RuleMin, Value: intValue(m, KeyDefaultMoisture, s.defaults.DefaultMoisture), Hysteresis: s.defaults.MoistureHysteresis},
		PlantMoisture:   make(map[int]alerts.Rule),
	}
	for k, v := range m {
		if id, ok := k.PlantID(); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				continue
			}
			t.PlantMoisture[id] = alerts.Rule{Kind: alerts.RuleMin, Value: n, Hysteresis: s.defaults.MoistureHysteresis}
		}
	}
	return t
}
