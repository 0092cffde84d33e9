package store

import (
	"math"
	"testing"

	"github.com/karlfish/fishlog/internal/identity"
)

func TestStatisticsEmpty(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())
	stats, err := l.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalSessions != 0 || stats.TotalCatches != 0 || stats.MostCommonSpecies != "" {
		t.Errorf("non-zero stats on empty store: %+v", stats)
	}
}

func TestStatistics(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())

	// Two sessions, five catches. "Custom:Scup" normalizes to "Scup", so
	// Scup and Striped Bass both count 2; the tie breaks to Striped Bass,
	// seen first.
	mustCreate(t, l, &Session{
		Date: "2024-06-01", StartTime: "06:00", EndTime: "10:30",
		Catches: []Catch{
			{Species: "Striped Bass"},
			{Species: "Scup"},
			{Species: "Custom:Scup"},
		},
	})
	mustCreate(t, l, &Session{
		Date: "2024-06-02", StartTime: "07:15", EndTime: "09:15",
		Catches: []Catch{
			{Species: "Striped Bass"},
			{Species: "Bluefish"},
		},
	})

	stats, err := l.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", stats.TotalSessions)
	}
	if stats.TotalCatches != 5 {
		t.Errorf("TotalCatches = %d, want 5", stats.TotalCatches)
	}
	if stats.TotalSpecies != 3 {
		t.Errorf("TotalSpecies = %d, want 3 (custom prefix must normalize away)", stats.TotalSpecies)
	}
	if stats.MostCommonSpecies != "Striped Bass" || stats.MostCommonSpeciesCount != 2 {
		t.Errorf("most common = %q x%d, want Striped Bass x2 (first seen wins ties)",
			stats.MostCommonSpecies, stats.MostCommonSpeciesCount)
	}
	if math.Abs(stats.TotalFishingHours-6.5) > 1e-9 {
		t.Errorf("TotalFishingHours = %v, want 6.5", stats.TotalFishingHours)
	}
}

func TestStatisticsOpenSessionHasNoDuration(t *testing.T) {
	l := testLocal(t, identity.AnonymousLocal())
	mustCreate(t, l, &Session{Date: "2024-06-01", StartTime: "06:00"})

	stats, err := l.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalFishingHours != 0 {
		t.Errorf("open session contributed %v hours, want 0", stats.TotalFishingHours)
	}
}

func TestCombineDateTime(t *testing.T) {
	got, err := combineDateTime("2024-06-01", "06:30")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hour() != 6 || got.Minute() != 30 || got.Day() != 1 {
		t.Errorf("combineDateTime = %v", got)
	}

	withSeconds, err := combineDateTime("2024-06-01", "06:30:45")
	if err != nil {
		t.Fatal(err)
	}
	if withSeconds.Second() != 45 {
		t.Errorf("seconds layout not honored: %v", withSeconds)
	}

	if _, err := combineDateTime("2024-06-01", "not a time"); err == nil {
		t.Error("expected error for malformed time")
	}
}

func mustCreate(t *testing.T, l *Local, s *Session) string {
	t.Helper()
	id, err := l.CreateSession(s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}
