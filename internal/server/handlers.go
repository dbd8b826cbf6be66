package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"verdant/internal/clock"
)

const (
	defaultDashboardHours = 3
	maxDashboardHours     = 24
	// Chart payloads aim for about this many points per series.
	dashboardTargetPoints = 500
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// handleHealth reports per-subsystem reachability; 200 only when both the
// database and the broker respond.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	subsystems := map[string]string{"database": "ok", "broker": "ok"}
	healthy := true

	if err := s.db.HealthCheck(ctx); err != nil {
		subsystems["database"] = err.Error()
		healthy = false
	}
	if err := s.broker.Ping(ctx); err != nil {
		subsystems["broker"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	s.writeJSON(w, status, map[string]any{"status": state, "subsystems": subsystems})
}

type climatePoint struct {
	Time        string  `json:"time"`
	Epoch       int64   `json:"epoch"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type moisturePoint struct {
	Time     string  `json:"time"`
	Epoch    int64   `json:"epoch"`
	PlantID  int     `json:"plant_id"`
	Moisture float64 `json:"moisture"`
}

type climateStats struct {
	MinTemperature float64 `json:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
	AvgTemperature float64 `json:"avg_temperature"`
	MinHumidity    float64 `json:"min_humidity"`
	MaxHumidity    float64 `json:"max_humidity"`
	AvgHumidity    float64 `json:"avg_humidity"`
}

// handleDashboard returns the initial dashboard snapshot: the climate and
// moisture series over the window, aggregate stats, and latest samples.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	hours := defaultDashboardHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDashboardHours {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "hours must be an integer between 1 and 24",
			})
			return
		}
		hours = n
	}

	ctx := r.Context()
	cutoff := clock.FormatRecording(clock.NowUTC().Add(-time.Duration(hours) * time.Hour))
	// Bucket width in seconds so each series lands near the target size.
	bucket := hours * 3600 / dashboardTargetPoints
	if bucket < 1 {
		bucket = 1
	}

	data, err := s.climateSeries(ctx, cutoff, bucket)
	if err != nil {
		s.dbError(w, err)
		return
	}
	stats, err := s.climateStats(ctx, cutoff)
	if err != nil {
		s.dbError(w, err)
		return
	}
	latest, err := s.latestClimate(ctx)
	if err != nil {
		s.dbError(w, err)
		return
	}
	picoData, err := s.moistureSeries(ctx, cutoff, bucket)
	if err != nil {
		s.dbError(w, err)
		return
	}
	picoLatest, err := s.latestMoisture(ctx)
	if err != nil {
		s.dbError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"hours":       hours,
		"data":        data,
		"stats":       stats,
		"latest":      latest,
		"pico_data":   picoData,
		"pico_latest": picoLatest,
	})
}

func (s *Server) dbError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("Dashboard query failed")
	s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Database unavailable"})
}

// climateSeries aggregates readings into fixed-width time buckets in SQL;
// the raw series at 2s cadence would be far too dense for a chart.
func (s *Server) climateSeries(ctx context.Context, cutoff string, bucket int) ([]climatePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT (CAST(strftime('%s', recording_time) AS INTEGER) / ?) * ? AS ts,
		       AVG(temperature), AVG(humidity)
		FROM reading
		WHERE recording_time >= ?
		GROUP BY ts
		ORDER BY ts
	`, bucket, bucket, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]climatePoint, 0, dashboardTargetPoints)
	for rows.Next() {
		var ts int64
		var p climatePoint
		if err := rows.Scan(&ts, &p.Temperature, &p.Humidity); err != nil {
			return nil, err
		}
		at := time.Unix(ts, 0).UTC()
		p.Time = clock.FormatRecording(at)
		p.Epoch = clock.EpochMillis(at)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Server) climateStats(ctx context.Context, cutoff string) (*climateStats, error) {
	var stats climateStats
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(MIN(temperature), 0), COALESCE(MAX(temperature), 0), COALESCE(AVG(temperature), 0),
		       COALESCE(MIN(humidity), 0), COALESCE(MAX(humidity), 0), COALESCE(AVG(humidity), 0)
		FROM reading
		WHERE recording_time >= ?
	`, cutoff).Scan(&count,
		&stats.MinTemperature, &stats.MaxTemperature, &stats.AvgTemperature,
		&stats.MinHumidity, &stats.MaxHumidity, &stats.AvgHumidity)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return &stats, nil
}

func (s *Server) latestClimate(ctx context.Context) (*climatePoint, error) {
	var p climatePoint
	var recorded string
	err := s.db.QueryRowContext(ctx, `
		SELECT temperature, humidity, recording_time
		FROM reading
		ORDER BY recording_time DESC
		LIMIT 1
	`).Scan(&p.Temperature, &p.Humidity, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Time = recorded
	if at, err := clock.ParseRecording(recorded); err == nil {
		p.Epoch = clock.EpochMillis(at)
	}
	return &p, nil
}

func (s *Server) moistureSeries(ctx context.Context, cutoff string, bucket int) ([]moisturePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plant_id,
		       (CAST(strftime('%s', recording_time) AS INTEGER) / ?) * ? AS ts,
		       AVG(moisture)
		FROM pico_reading
		WHERE recording_time >= ?
		GROUP BY plant_id, ts
		ORDER BY plant_id, ts
	`, bucket, bucket, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]moisturePoint, 0, dashboardTargetPoints)
	for rows.Next() {
		var ts int64
		var p moisturePoint
		if err := rows.Scan(&p.PlantID, &ts, &p.Moisture); err != nil {
			return nil, err
		}
		at := time.Unix(ts, 0).UTC()
		p.Time = clock.FormatRecording(at)
		p.Epoch = clock.EpochMillis(at)
		points = append(points, p)
	}
	return points, rows.Err()
}

// latestMoisture returns the newest sample per plant.
func (s *Server) latestMoisture(ctx context.Context) ([]moisturePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT plant_id, moisture, MAX(recording_time)
		FROM pico_reading
		GROUP BY plant_id
		ORDER BY plant_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]moisturePoint, 0, 8)
	for rows.Next() {
		var p moisturePoint
		var recorded string
		if err := rows.Scan(&p.PlantID, &p.Moisture, &recorded); err != nil {
			return nil, err
		}
		p.Time = recorded
		if at, err := clock.ParseRecording(recorded); err == nil {
			p.Epoch = clock.EpochMillis(at)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// handleThresholds returns the effective alert rules.
func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := s.store.Thresholds(r.Context())
	if err != nil {
		s.dbError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, thresholds)
}
