package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"verdant/internal/settings"
)

// adminAuth guards the admin API with HTTP Basic auth against the stored
// scrypt hash. A missing admin row means the instance was never seeded;
// that is a deployment problem, not an auth failure, hence 503.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || user != "admin" {
			s.unauthorized(w)
			return
		}

		hash, err := s.db.AdminPasswordHash(r.Context())
		if errors.Is(err, sql.ErrNoRows) {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "admin password not configured",
			})
			return
		}
		if err != nil {
			s.dbError(w, err)
			return
		}

		match, err := settings.VerifyPassword(password, hash)
		if err != nil {
			s.log.Error().Err(err).Msg("Stored admin hash is unreadable")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "admin password not configured",
			})
			return
		}
		if !match {
			s.unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="greenhouse admin"`)
	s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.GetAll(r.Context())
	if err != nil {
		s.dbError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, all)
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var raw map[string]string
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"body must be a JSON object of settings"}})
		return
	}

	updates := make(map[settings.Key]string, len(raw))
	for k, v := range raw {
		updates[settings.Key(k)] = strings.TrimSpace(v)
	}

	current, err := s.store.GetAll(r.Context())
	if err != nil {
		s.dbError(w, err)
		return
	}
	if errs := validateSettings(updates, current); len(errs) > 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}

	written, err := s.store.SetBatch(r.Context(), updates)
	if err != nil {
		if errors.Is(err, settings.ErrUnknownKey) {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{err.Error()}})
			return
		}
		s.dbError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, written)
}

// validateSettings checks the update batch against the value ranges and
// the MIN<MAX relation of the post-update effective settings.
func validateSettings(updates, current map[settings.Key]string) []string {
	var errs []string

	intField := func(k settings.Key, v string, min, max int, what string) *int {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer", k))
			return nil
		}
		if n < min || n > max {
			errs = append(errs, fmt.Sprintf("%s must be a %s between %d and %d", k, what, min, max))
			return nil
		}
		return &n
	}

	for k, v := range updates {
		if !k.Valid() {
			errs = append(errs, fmt.Sprintf("unknown setting %q", k))
			continue
		}
		switch k {
		case settings.KeyMinTemperature, settings.KeyMaxTemperature:
			intField(k, v, -40, 80, "temperature")
		case settings.KeyMinHumidity, settings.KeyMaxHumidity:
			intField(k, v, 0, 100, "humidity")
		case settings.KeyDefaultMoisture:
			intField(k, v, 0, 100, "moisture")
		case settings.KeyRetentionDays:
			intField(k, v, 1, 365, "number of days")
		case settings.KeyNotificationsEnabled:
			if _, err := strconv.ParseBool(v); err != nil {
				errs = append(errs, fmt.Sprintf("%s must be a boolean", k))
			}
		case settings.KeyNotificationBackends:
			for _, backend := range strings.Split(v, ",") {
				switch strings.TrimSpace(backend) {
				case "gmail", "slack", "":
				default:
					errs = append(errs, fmt.Sprintf("unknown notification backend %q", strings.TrimSpace(backend)))
				}
			}
		default:
			// Per-plant moisture key.
			intField(k, v, 0, 100, "moisture")
		}
	}
	if len(errs) > 0 {
		return errs
	}

	// Effective post-update values must keep MIN below MAX.
	effective := func(k settings.Key) (int, bool) {
		v, ok := updates[k]
		if !ok {
			v, ok = current[k]
		}
		if !ok {
			return 0, false
		}
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	if min, okMin := effective(settings.KeyMinTemperature); okMin {
		if max, okMax := effective(settings.KeyMaxTemperature); okMax && min >= max {
			errs = append(errs, "min_temperature must be below max_temperature")
		}
	}
	if min, okMin := effective(settings.KeyMinHumidity); okMin {
		if max, okMax := effective(settings.KeyMaxHumidity); okMax && min >= max {
			errs = append(errs, "min_humidity must be below max_humidity")
		}
	}
	return errs
}
