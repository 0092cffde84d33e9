package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/karlfish/fishlog/internal/bus"
	"github.com/karlfish/fishlog/internal/identity"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLocal(t *testing.T, owner identity.Owner) *Local {
	t.Helper()
	return NewLocal(testDB(t), identity.Static{Owner: owner}, bus.New(), nil)
}

func f64(v float64) *float64 { return &v }

func sampleSession() *Session {
	return &Session{
		Date:      "2024-06-01",
		StartTime: "06:30",
		EndTime:   "11:00",
		Location:  Location{Latitude: 41.0001, Longitude: -70.8002, Description: "The ledge"},
		Weather:   Weather{AirTemperatureC: f64(21.5), WindSpeedKnots: f64(12)},
		Water:     Water{TemperatureC: f64(18.2), DepthMeters: f64(22)},
		Catches: []Catch{
			{Species: "Striped Bass", LengthCM: 74, Condition: "released"},
			{Species: "Custom:Scup", LengthCM: 25, Condition: "kept"},
		},
		Notes: "incoming tide",
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	id, err := l.CreateSession(sampleSession())
	if err != nil {
		t.Fatal(err)
	}

	got, err := l.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("session not found after create")
	}
	if got.OwnerID != identity.AnonymousID {
		t.Errorf("owner = %q, want %q", got.OwnerID, identity.AnonymousID)
	}
	if len(got.Catches) != 2 {
		t.Fatalf("got %d catches, want 2 (catches must be merged on read)", len(got.Catches))
	}
	if got.Catches[0].SessionID != id {
		t.Errorf("catch sessionId = %q, want %q", got.Catches[0].SessionID, id)
	}
	if got.Weather.AirTemperatureC == nil || *got.Weather.AirTemperatureC != 21.5 {
		t.Errorf("weather snapshot lost: %+v", got.Weather)
	}
	if got.Water.DepthMeters == nil || *got.Water.DepthMeters != 22 {
		t.Errorf("water snapshot lost: %+v", got.Water)
	}
}

func TestGetSessionMissing(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())
	got, err := l.GetSession("nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expected nil for missing session")
	}
}

func TestUpdateSessionRewritesCatches(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())
	id, err := l.CreateSession(sampleSession())
	if err != nil {
		t.Fatal(err)
	}

	err = l.UpdateSession(id, func(s *Session) {
		s.Notes = "slow day"
		s.Catches = s.Catches[:1]
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := l.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Notes != "slow day" {
		t.Errorf("notes = %q, want updated", got.Notes)
	}
	if len(got.Catches) != 1 {
		t.Errorf("got %d catches, want 1 (catches must be split back out on write)", len(got.Catches))
	}
	if got.LastModified == 0 {
		t.Error("LastModified not bumped")
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())
	id, err := l.CreateSession(sampleSession())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.DeleteSession(id); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("session still present after delete")
	}
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM catches WHERE session_id = ?`, id).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d orphan catches after session delete, want 0", n)
	}
}

func TestOwnerPartitioning(t *testing.T) {
	db := testDB(t)
	alice := NewLocal(db, identity.Static{Owner: identity.Authenticated("alice")}, nil, nil)
	bob := NewLocal(db, identity.Static{Owner: identity.Authenticated("bob")}, nil, nil)

	id, err := alice.CreateSession(sampleSession())
	if err != nil {
		t.Fatal(err)
	}

	// Bob must not see or read Alice's session.
	got, err := bob.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("cross-owner read must return nothing")
	}
	sessions, err := bob.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("bob sees %d sessions, want 0", len(sessions))
	}
}

// Authenticated clears respect the owner partition; anonymous clears wipe
// everything, since offline mode has no partition to respect.
func TestClearOwnedDataAsymmetry(t *testing.T) {
	db := testDB(t)
	alice := NewLocal(db, identity.Static{Owner: identity.Authenticated("alice")}, nil, nil)
	bob := NewLocal(db, identity.Static{Owner: identity.Authenticated("bob")}, nil, nil)
	anon := NewLocal(db, identity.Static{Owner: identity.AnonymousLocal()}, nil, nil)

	if _, err := alice.CreateSession(sampleSession()); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.CreateSession(sampleSession()); err != nil {
		t.Fatal(err)
	}

	if err := alice.ClearOwnedData(); err != nil {
		t.Fatal(err)
	}
	bobSessions, err := bob.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(bobSessions) != 1 {
		t.Fatalf("bob's data gone after alice's clear: %d sessions", len(bobSessions))
	}

	if err := anon.ClearOwnedData(); err != nil {
		t.Fatal(err)
	}
	bobSessions, err = bob.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(bobSessions) != 0 {
		t.Errorf("anonymous clear must wipe everything, %d sessions remain", len(bobSessions))
	}
}

func TestReadingsAppendAndRange(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	for i, ts := range []int64{1000, 2000, 3000} {
		r := &Reading{CapturedAt: ts, Raw: "$SDMTW,18.5,C"}
		if i == 1 {
			r.WaterTempC = f64(18.5)
		}
		if err := l.AppendReading(r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.ListReadings(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d readings, want 3", len(all))
	}
	if all[1].WaterTempC == nil || *all[1].WaterTempC != 18.5 {
		t.Errorf("optional field lost: %+v", all[1])
	}
	if all[0].WaterTempC != nil {
		t.Error("unset optional field came back non-nil")
	}

	window, err := l.ListReadings(1500, 2500)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 || window[0].CapturedAt != 2000 {
		t.Errorf("range query returned %d readings, want the one at 2000", len(window))
	}

	if err := l.ClearReadings(); err != nil {
		t.Fatal(err)
	}
	all, err = l.ListReadings(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("%d readings after clear, want 0", len(all))
	}
}

// Reading appends must not count as local mutations for sync purposes;
// session writes must.
func TestLocalUpdateClock(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	if _, ok, err := l.LastLocalUpdate(); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v, want no local update", ok, err)
	}

	if err := l.AppendReading(&Reading{CapturedAt: 1000, Raw: "$SDMTW,18.5,C"}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := l.LastLocalUpdate(); ok {
		t.Error("reading append bumped the local-update clock")
	}

	if _, err := l.CreateSession(sampleSession()); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := l.LastLocalUpdate(); !ok {
		t.Error("session create did not bump the local-update clock")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	s, err := l.GetSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s.OfflineMode {
		t.Error("default offline mode should be false")
	}
	if s.UnitsTemperature != "celsius" {
		t.Errorf("default units = %q, want celsius", s.UnitsTemperature)
	}

	if err := l.SetOfflineMode(true); err != nil {
		t.Fatal(err)
	}
	offline, err := l.IsOfflineMode()
	if err != nil {
		t.Fatal(err)
	}
	if !offline {
		t.Error("offline flag not persisted")
	}
}

// Cache replacement is exact: a second replace with the same snapshot must
// not accumulate rows, and removed entries must not survive.
func TestSharedCacheReplaceIsExact(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	snap := &SharedCache{
		Profiles: []SharedProfile{{ID: "p1", Username: "karl"}, {ID: "p2", Username: "lena"}},
		Sessions: []SharedSession{{ID: "s1", OwnerID: "p1", Privacy: "public", Data: "{}"}},
		Relationships: []RelationshipEdge{
			{ID: "r1", RequesterID: "p1", AddresseeID: "p2", Status: "accepted"},
		},
		Permissions: []PermissionEdge{{ID: "e1", UserID: "p1", FriendID: "p2", CanViewSessions: true}},
	}
	if err := l.ReplaceSharedCache(snap); err != nil {
		t.Fatal(err)
	}
	if err := l.ReplaceSharedCache(snap); err != nil {
		t.Fatal(err)
	}
	profiles, err := l.SharedProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Errorf("got %d profiles after double replace, want 2 (replace must not be additive)", len(profiles))
	}

	// A shrunken snapshot removes stale entries.
	if err := l.ReplaceSharedCache(&SharedCache{Profiles: snap.Profiles[:1]}); err != nil {
		t.Fatal(err)
	}
	profiles, _ = l.SharedProfiles()
	sessions, _ := l.SharedSessions()
	if len(profiles) != 1 || len(sessions) != 0 {
		t.Errorf("stale cache rows survived: %d profiles, %d sessions", len(profiles), len(sessions))
	}
}

func TestClearSharedCacheLeavesOwnedData(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())
	if _, err := l.CreateSession(sampleSession()); err != nil {
		t.Fatal(err)
	}
	if err := l.ReplaceSharedCache(&SharedCache{Profiles: []SharedProfile{{ID: "p1"}}}); err != nil {
		t.Fatal(err)
	}

	if err := l.ClearSharedCache(); err != nil {
		t.Fatal(err)
	}
	profiles, err := l.SharedProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 0 {
		t.Errorf("%d profiles after cache clear, want 0", len(profiles))
	}
	sessions, err := l.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Error("cache clear must not touch owned data")
	}
}

func TestSyncTimestamps(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	if _, ok, err := l.LastSyncTime("alice"); err != nil || ok {
		t.Fatalf("fresh store: ok=%v err=%v, want no sync time", ok, err)
	}

	now := time.Now().Truncate(time.Millisecond)
	if err := l.MarkSynced("alice", now); err != nil {
		t.Fatal(err)
	}
	got, ok, err := l.LastSyncTime("alice")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !got.Equal(now) {
		t.Errorf("sync time = %v, want %v", got, now)
	}

	// Exactly one row per user: marking again updates in place.
	if err := l.MarkSynced("alice", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM sync_timestamps WHERE user_id = 'alice'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("%d rows for alice, want 1", n)
	}

	if err := l.ClearUserSyncData("alice"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := l.LastSyncTime("alice"); ok {
		t.Error("sync time survived ClearUserSyncData")
	}
}
