package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "telemetry.reading", "telemetry.status_changed",
// "data.changed", "sync.started", "sync.completed", "sync.failed",
// "mode.changed".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
