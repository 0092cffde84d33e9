package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetSettings returns the singleton settings row, or defaults when none has
// been saved yet.
func (l *Local) GetSettings() (*Settings, error) {
	var s Settings
	err := l.db.QueryRow(`
		SELECT offline_mode, units_temperature, units_distance, units_pressure, telemetry_autoconnect
		FROM settings WHERE id = 'main'`).
		Scan(&s.OfflineMode, &s.UnitsTemperature, &s.UnitsDistance, &s.UnitsPressure, &s.TelemetryAutoconnect)
	if err == sql.ErrNoRows {
		return &Settings{
			UnitsTemperature: "celsius",
			UnitsDistance:    "metric",
			UnitsPressure:    "hpa",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts the singleton settings row.
func (l *Local) SaveSettings(s *Settings) error {
	_, err := l.db.Exec(`
		INSERT INTO settings (id, offline_mode, units_temperature, units_distance, units_pressure, telemetry_autoconnect, updated_at)
		VALUES ('main', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			offline_mode = excluded.offline_mode,
			units_temperature = excluded.units_temperature,
			units_distance = excluded.units_distance,
			units_pressure = excluded.units_pressure,
			telemetry_autoconnect = excluded.telemetry_autoconnect,
			updated_at = excluded.updated_at`,
		s.OfflineMode, s.UnitsTemperature, s.UnitsDistance, s.UnitsPressure,
		s.TelemetryAutoconnect, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	l.touch("settings")
	return nil
}

// SetOfflineMode persists just the offline flag.
func (l *Local) SetOfflineMode(offline bool) error {
	s, err := l.GetSettings()
	if err != nil {
		return err
	}
	s.OfflineMode = offline
	return l.SaveSettings(s)
}

// IsOfflineMode reads the persisted offline flag.
func (l *Local) IsOfflineMode() (bool, error) {
	s, err := l.GetSettings()
	if err != nil {
		return false, err
	}
	return s.OfflineMode, nil
}
