package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AppendReading persists one decoded telemetry sample for the current owner.
// Readings are append-only and never mutated; appends do not count as local
// edits for sync purposes.
func (l *Local) AppendReading(r *Reading) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.OwnerID = l.owner().ID()

	_, err := l.db.Exec(`INSERT INTO readings
		(id, owner_id, captured_at, latitude, longitude, speed_kn, heading_deg, depth_m, water_temp_c, air_temp_c, wind_speed_kn, wind_dir_deg, pressure_hpa, engine_rpm, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.CapturedAt,
		r.Latitude, r.Longitude, r.SpeedKn, r.HeadingDeg, r.DepthM,
		r.WaterTempC, r.AirTempC, r.WindSpeedKn, r.WindDirDeg, r.PressureHpa,
		r.EngineRPM, r.Raw)
	if err != nil {
		return fmt.Errorf("append reading: %w", err)
	}
	return nil
}

// ListReadings returns the current owner's readings captured in
// [fromMillis, toMillis], in arrival order. Zero bounds are open-ended.
func (l *Local) ListReadings(fromMillis, toMillis int64) ([]Reading, error) {
	if toMillis <= 0 {
		toMillis = 1<<63 - 1
	}
	rows, err := l.db.Query(`
		SELECT id, owner_id, captured_at, latitude, longitude, speed_kn, heading_deg, depth_m, water_temp_c, air_temp_c, wind_speed_kn, wind_dir_deg, pressure_hpa, engine_rpm, raw
		FROM readings
		WHERE owner_id = ? AND captured_at >= ? AND captured_at <= ?
		ORDER BY rowid`, l.owner().ID(), fromMillis, toMillis)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var readings []Reading
	for rows.Next() {
		var r Reading
		var vals [11]sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.CapturedAt,
			&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5],
			&vals[6], &vals[7], &vals[8], &vals[9], &vals[10], &r.Raw); err != nil {
			return nil, err
		}
		ptrs := []**float64{
			&r.Latitude, &r.Longitude, &r.SpeedKn, &r.HeadingDeg, &r.DepthM,
			&r.WaterTempC, &r.AirTempC, &r.WindSpeedKn, &r.WindDirDeg,
			&r.PressureHpa, &r.EngineRPM,
		}
		for i, p := range ptrs {
			if vals[i].Valid {
				v := vals[i].Float64
				*p = &v
			}
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// ClearReadings deletes the current owner's readings, e.g. when a new
// telemetry session supersedes old samples.
func (l *Local) ClearReadings() error {
	_, err := l.db.Exec(`DELETE FROM readings WHERE owner_id = ?`, l.owner().ID())
	if err != nil {
		return fmt.Errorf("clear readings: %w", err)
	}
	return nil
}
