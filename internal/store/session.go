package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateSession stores a new session under the current owner and returns its
// id. Embedded catches are split out to the catches table.
func (l *Local) CreateSession(s *Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.OwnerID = l.owner().ID()
	s.LastModified = time.Now().UnixMilli()

	if err := l.insertSession(s, true); err != nil {
		return "", err
	}
	l.touch("session")
	return s.ID, nil
}

// ImportSession materializes a session pulled from the remote store,
// preserving its id and owner. Unlike CreateSession it does not bump the
// local-update clock: an import is a copy of remote state, not a local edit.
func (l *Local) ImportSession(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.OwnerID == "" {
		s.OwnerID = l.owner().ID()
	}
	return l.insertSession(s, false)
}

func (l *Local) insertSession(s *Session, replace bool) error {
	weather, err := json.Marshal(s.Weather)
	if err != nil {
		return fmt.Errorf("encode weather: %w", err)
	}
	water, err := json.Marshal(s.Water)
	if err != nil {
		return fmt.Errorf("encode water: %w", err)
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	if _, err := tx.Exec(verb+` INTO sessions
		(id, owner_id, date, start_time, end_time, latitude, longitude, location_desc, weather, water, notes, shared, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.Date, s.StartTime, s.EndTime,
		s.Location.Latitude, s.Location.Longitude, s.Location.Description,
		string(weather), string(water), s.Notes, s.Shared, s.LastModified); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	if err := replaceCatches(tx, s.ID, s.Catches); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func replaceCatches(tx *sql.Tx, sessionID string, catches []Catch) error {
	if _, err := tx.Exec(`DELETE FROM catches WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear catches: %w", err)
	}
	for i := range catches {
		c := &catches[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.SessionID = sessionID
		if _, err := tx.Exec(`INSERT INTO catches
			(id, session_id, species, length_cm, weight_kg, condition, bait, lure, technique, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.SessionID, c.Species, c.LengthCM, c.WeightKG, c.Condition,
			c.Bait, c.Lure, c.Technique, c.Notes); err != nil {
			return fmt.Errorf("insert catch: %w", err)
		}
	}
	return nil
}

// GetSession returns a session by id with its catches merged in, or nil if
// it does not exist under the current owner.
func (l *Local) GetSession(id string) (*Session, error) {
	row := l.db.QueryRow(`
		SELECT id, owner_id, date, start_time, end_time, latitude, longitude, location_desc, weather, water, notes, shared, last_modified
		FROM sessions WHERE id = ? AND owner_id = ?`, id, l.owner().ID())

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Catches, err = l.sessionCatches(id); err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns all of the current owner's sessions, newest date
// first, each with its catches merged in.
func (l *Local) ListSessions() ([]Session, error) {
	rows, err := l.db.Query(`
		SELECT id, owner_id, date, start_time, end_time, latitude, longitude, location_desc, weather, water, notes, shared, last_modified
		FROM sessions WHERE owner_id = ?
		ORDER BY date DESC, start_time DESC`, l.owner().ID())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Catches, err = l.sessionCatches(sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// UpdateSession loads a session, applies mutate, and writes it back. Catches
// are always split back out to their table, so mutate may freely edit them.
func (l *Local) UpdateSession(id string, mutate func(*Session)) error {
	s, err := l.GetSession(id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found", id)
	}
	mutate(s)
	s.ID = id
	s.LastModified = time.Now().UnixMilli()

	if err := l.insertSession(s, true); err != nil {
		return err
	}
	l.touch("session")
	return nil
}

// DeleteSession removes a session and cascades to its catches as one atomic
// unit.
func (l *Local) DeleteSession(id string) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM catches WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete catches: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ? AND owner_id = ?`, id, l.owner().ID()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	l.touch("session")
	return nil
}

// ClearOwnedData deletes sessions, catches, and readings. When a user is
// signed in only their partition is cleared; in anonymous mode everything
// goes, since there is no owner partition to respect.
func (l *Local) ClearOwnedData() error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	owner := l.owner()
	if owner.IsAuthenticated() {
		if _, err := tx.Exec(`DELETE FROM catches WHERE session_id IN (SELECT id FROM sessions WHERE owner_id = ?)`, owner.ID()); err != nil {
			return fmt.Errorf("delete catches: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM sessions WHERE owner_id = ?`, owner.ID()); err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM readings WHERE owner_id = ?`, owner.ID()); err != nil {
			return fmt.Errorf("delete readings: %w", err)
		}
	} else {
		for _, table := range []string{"catches", "sessions", "readings"} {
			if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	l.touch("clear")
	return nil
}

// HasOwnedData reports whether any sessions or readings exist on-device,
// regardless of owner. Used at startup to decide whether an unauthenticated
// install should come up in offline mode.
func (l *Local) HasOwnedData() (bool, error) {
	var n int
	err := l.db.QueryRow(`SELECT (SELECT COUNT(*) FROM sessions) + (SELECT COUNT(*) FROM readings)`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *Local) sessionCatches(sessionID string) ([]Catch, error) {
	rows, err := l.db.Query(`
		SELECT id, session_id, species, length_cm, weight_kg, condition, bait, lure, technique, notes
		FROM catches WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var catches []Catch
	for rows.Next() {
		var c Catch
		var weight sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Species, &c.LengthCM, &weight, &c.Condition, &c.Bait, &c.Lure, &c.Technique, &c.Notes); err != nil {
			return nil, err
		}
		if weight.Valid {
			c.WeightKG = &weight.Float64
		}
		catches = append(catches, c)
	}
	return catches, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var weather, water string
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Date, &s.StartTime, &s.EndTime,
		&s.Location.Latitude, &s.Location.Longitude, &s.Location.Description,
		&weather, &water, &s.Notes, &s.Shared, &s.LastModified); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(weather), &s.Weather); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}
	if err := json.Unmarshal([]byte(water), &s.Water); err != nil {
		return nil, fmt.Errorf("decode water: %w", err)
	}
	return &s, nil
}
