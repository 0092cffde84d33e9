package store

import (
	"fmt"
	"time"
)

// Statistics aggregates the current owner's sessions: totals, species
// cardinality, most-frequent species, and total fishing duration. Catches
// are counted from each session's embedded list; species values are
// normalized (custom-entry prefix stripped) before counting; the
// most-common-species tie breaks to the first species seen in iteration
// order.
func (l *Local) Statistics() (*Statistics, error) {
	sessions, err := l.ListSessions()
	if err != nil {
		return nil, err
	}

	stats := &Statistics{TotalSessions: len(sessions)}
	counts := make(map[string]int)
	var order []string

	for _, s := range sessions {
		stats.TotalCatches += len(s.Catches)
		for _, c := range s.Catches {
			species := NormalizeSpecies(c.Species)
			if species == "" {
				continue
			}
			if _, seen := counts[species]; !seen {
				order = append(order, species)
			}
			counts[species]++
		}

		// Start/end are time-of-day values; project them onto the
		// session's date before differencing.
		if s.EndTime == "" {
			continue
		}
		start, err1 := combineDateTime(s.Date, s.StartTime)
		end, err2 := combineDateTime(s.Date, s.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		stats.TotalFishingHours += end.Sub(start).Hours()
	}

	stats.TotalSpecies = len(counts)
	for _, species := range order {
		if counts[species] > stats.MostCommonSpeciesCount {
			stats.MostCommonSpecies = species
			stats.MostCommonSpeciesCount = counts[species]
		}
	}
	return stats, nil
}

// combineDateTime projects a time-of-day value onto a calendar date.
// Accepts "15:04" and "15:04:05".
func combineDateTime(date, timeOfDay string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	layout := "15:04"
	if len(timeOfDay) > 5 {
		layout = "15:04:05"
	}
	tod, err := time.Parse(layout, timeOfDay)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", timeOfDay, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, time.UTC), nil
}
