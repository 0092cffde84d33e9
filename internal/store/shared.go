package store

import "fmt"

// SharedCache is one full remote snapshot of social data.
type SharedCache struct {
	Profiles      []SharedProfile
	Sessions      []SharedSession
	Relationships []RelationshipEdge
	Permissions   []PermissionEdge
}

// ReplaceSharedCache wipes and rewrites the entire shared-snapshot cache in
// one transaction. The cache is never merged incrementally: entries from
// removed relationships must not survive a pull, and readers never observe
// a partially-replaced cache.
func (l *Local) ReplaceSharedCache(c *SharedCache) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"shared_profiles", "shared_sessions", "relationship_edges", "permission_edges"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, p := range c.Profiles {
		if _, err := tx.Exec(`INSERT INTO shared_profiles (id, username, display_name, updated_at) VALUES (?, ?, ?, ?)`,
			p.ID, p.Username, p.DisplayName, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
	}
	for _, s := range c.Sessions {
		if _, err := tx.Exec(`INSERT INTO shared_sessions (id, owner_id, privacy, data, created_at) VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.OwnerID, s.Privacy, s.Data, s.CreatedAt); err != nil {
			return fmt.Errorf("insert shared session: %w", err)
		}
	}
	for _, r := range c.Relationships {
		if _, err := tx.Exec(`INSERT INTO relationship_edges (id, requester_id, addressee_id, status) VALUES (?, ?, ?, ?)`,
			r.ID, r.RequesterID, r.AddresseeID, r.Status); err != nil {
			return fmt.Errorf("insert relationship: %w", err)
		}
	}
	for _, p := range c.Permissions {
		if _, err := tx.Exec(`INSERT INTO permission_edges (id, user_id, friend_id, can_view_sessions, can_view_catches, can_view_location) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.UserID, p.FriendID, p.CanViewSessions, p.CanViewCatches, p.CanViewLocation); err != nil {
			return fmt.Errorf("insert permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache replace: %w", err)
	}
	return nil
}

// ClearSharedCache wipes the shared-snapshot cache tables, independent of
// owned data.
func (l *Local) ClearSharedCache() error {
	return l.ReplaceSharedCache(&SharedCache{})
}

// SharedProfiles returns the cached remote profiles.
func (l *Local) SharedProfiles() ([]SharedProfile, error) {
	rows, err := l.db.Query(`SELECT id, username, display_name, updated_at FROM shared_profiles`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var profiles []SharedProfile
	for rows.Next() {
		var p SharedProfile
		if err := rows.Scan(&p.ID, &p.Username, &p.DisplayName, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// SharedSessions returns the cached remote shared sessions.
func (l *Local) SharedSessions() ([]SharedSession, error) {
	rows, err := l.db.Query(`SELECT id, owner_id, privacy, data, created_at FROM shared_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []SharedSession
	for rows.Next() {
		var s SharedSession
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Privacy, &s.Data, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Relationships returns the cached friendship edges.
func (l *Local) Relationships() ([]RelationshipEdge, error) {
	rows, err := l.db.Query(`SELECT id, requester_id, addressee_id, status FROM relationship_edges`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var edges []RelationshipEdge
	for rows.Next() {
		var e RelationshipEdge
		if err := rows.Scan(&e.ID, &e.RequesterID, &e.AddresseeID, &e.Status); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Permissions returns the cached per-friend visibility grants.
func (l *Local) Permissions() ([]PermissionEdge, error) {
	rows, err := l.db.Query(`SELECT id, user_id, friend_id, can_view_sessions, can_view_catches, can_view_location FROM permission_edges`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var edges []PermissionEdge
	for rows.Next() {
		var e PermissionEdge
		if err := rows.Scan(&e.ID, &e.UserID, &e.FriendID, &e.CanViewSessions, &e.CanViewCatches, &e.CanViewLocation); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// HasSharedData reports whether any shared-snapshot rows are cached.
func (l *Local) HasSharedData() (bool, error) {
	var n int
	err := l.db.QueryRow(`SELECT (SELECT COUNT(*) FROM shared_profiles) + (SELECT COUNT(*) FROM shared_sessions)`).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
