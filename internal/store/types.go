package store

import "strings"

// customSpeciesPrefix marks a species value entered as free text rather than
// picked from the species list. The prefix is stripped everywhere species
// are counted or displayed; the edit layer uses it to tell the two apart.
const customSpeciesPrefix = "Custom:"

// NormalizeSpecies strips the custom-entry prefix from a species value.
func NormalizeSpecies(species string) string {
	return strings.TrimPrefix(species, customSpeciesPrefix)
}

// Location is where a session took place.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
}

// Weather is the weather snapshot attached to a session. All measurements
// are optional; live telemetry fills them in piecemeal.
type Weather struct {
	AirTemperatureC  *float64 `json:"airTemperatureC,omitempty"`
	PressureHpa      *float64 `json:"pressureHpa,omitempty"`
	WindSpeedKnots   *float64 `json:"windSpeedKnots,omitempty"`
	WindDirectionDeg *float64 `json:"windDirectionDeg,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// Water is the water snapshot attached to a session.
type Water struct {
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	DepthMeters  *float64 `json:"depthMeters,omitempty"`
	Clarity      string   `json:"clarity,omitempty"`
	Tide         string   `json:"tide,omitempty"`
}

// Catch is one fish caught during a session. Catches are stored in their own
// table keyed by SessionID and merged into the session on read.
type Catch struct {
	ID        string
	SessionID string
	Species   string
	LengthCM  float64
	WeightKG  *float64
	Condition string // alive, released, kept, dead
	Bait      string
	Lure      string
	Technique string
	Notes     string
}

// Session is one fishing outing owned by a user (or the anonymous local
// owner when nobody is signed in). Date is "2006-01-02"; StartTime and
// EndTime are time-of-day values "15:04" projected onto Date when durations
// are computed. An empty EndTime means the session is still open.
type Session struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"ownerId"`
	Date         string   `json:"date"`
	StartTime    string   `json:"startTime"`
	EndTime      string   `json:"endTime,omitempty"`
	Location     Location `json:"location"`
	Weather      Weather  `json:"weather"`
	Water        Water    `json:"water"`
	Catches      []Catch  `json:"catches,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Shared       bool     `json:"shared,omitempty"`
	LastModified int64    `json:"lastModified,omitempty"` // unix millis
}

// Reading is one persisted telemetry sample. Append-only.
type Reading struct {
	ID          string
	OwnerID     string
	CapturedAt  int64 // unix millis
	Latitude    *float64
	Longitude   *float64
	SpeedKn     *float64
	HeadingDeg  *float64
	DepthM      *float64
	WaterTempC  *float64
	AirTempC    *float64
	WindSpeedKn *float64
	WindDirDeg  *float64
	PressureHpa *float64
	EngineRPM   *float64
	Raw         string
}

// Settings is the singleton settings row.
type Settings struct {
	OfflineMode          bool
	UnitsTemperature     string
	UnitsDistance        string
	UnitsPressure        string
	TelemetryAutoconnect bool
}

// SharedProfile is a cached remote profile row.
type SharedProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// SharedSession is a cached remote shared-session row. Data carries the
// session payload as JSON exactly as the remote stores it.
type SharedSession struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Privacy   string `json:"privacy"`
	Data      string `json:"data"`
	CreatedAt int64  `json:"createdAt"`
}

// RelationshipEdge is a cached friendship edge.
type RelationshipEdge struct {
	ID          string `json:"id"`
	RequesterID string `json:"requesterId"`
	AddresseeID string `json:"addresseeId"`
	Status      string `json:"status"`
}

// PermissionEdge is a cached per-friend visibility grant.
type PermissionEdge struct {
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	FriendID        string `json:"friendId"`
	CanViewSessions bool   `json:"canViewSessions"`
	CanViewCatches  bool   `json:"canViewCatches"`
	CanViewLocation bool   `json:"canViewLocation"`
}

// Statistics summarizes the current owner's sessions. TotalCatches is summed
// from each session's embedded catches. MostCommonSpecies ties break to the
// first species encountered in session order.
type Statistics struct {
	TotalSessions          int
	TotalCatches           int
	TotalSpecies           int
	MostCommonSpecies      string
	MostCommonSpeciesCount int
	TotalFishingHours      float64
}
