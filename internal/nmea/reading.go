// Package nmea decodes NMEA 0183 sentences from a boat's navigation network
// into typed readings. Decoding is strictly tolerant: malformed input is a
// normal, droppable outcome, never a hard failure.
package nmea

import "time"

// Reading is one decoded telemetry sample. Every measurement field is
// optional; a Reading carrying only Raw and CapturedAt is still valid.
type Reading struct {
	CapturedAt       time.Time
	Latitude         *float64
	Longitude        *float64
	SpeedOverGround  *float64 // knots
	HeadingDegrees   *float64 // 0-360
	WaterDepthMeters *float64
	WaterTempC       *float64
	AirTempC         *float64
	WindSpeedKnots   *float64
	WindDirectionDeg *float64
	PressureHpa      *float64
	EngineRPM        *float64
	Raw              string
}
