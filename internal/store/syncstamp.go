package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const lastLocalUpdateKey = "last_local_update"

// MarkLocalUpdate records the process-wide last-local-mutation timestamp.
// Session, catch, and settings writes call this via touch.
func (l *Local) MarkLocalUpdate(t time.Time) error {
	_, err := l.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastLocalUpdateKey, strconv.FormatInt(t.UnixMilli(), 10), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark local update: %w", err)
	}
	return nil
}

// LastLocalUpdate returns the process-wide last-local-mutation timestamp.
// ok is false when no local mutation has ever been recorded.
func (l *Local) LastLocalUpdate() (t time.Time, ok bool, err error) {
	var value string
	err = l.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, lastLocalUpdateKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad %s value %q: %w", lastLocalUpdateKey, value, err)
	}
	return time.UnixMilli(millis), true, nil
}

// MarkSynced records a completed reconciliation pass for a user. There is at
// most one row per user id.
func (l *Local) MarkSynced(userID string, t time.Time) error {
	_, err := l.db.Exec(`
		INSERT INTO sync_timestamps (user_id, last_sync_time)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_sync_time = excluded.last_sync_time`,
		userID, t.UnixMilli())
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// LastSyncTime returns the last successful sync time for a user. ok is false
// when the user has never completed a pass.
func (l *Local) LastSyncTime(userID string) (t time.Time, ok bool, err error) {
	var millis int64
	err = l.db.QueryRow(`SELECT last_sync_time FROM sync_timestamps WHERE user_id = ?`, userID).Scan(&millis)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(millis), true, nil
}

// ClearUserSyncData removes a user's sync timestamp, e.g. on logout.
func (l *Local) ClearUserSyncData(userID string) error {
	_, err := l.db.Exec(`DELETE FROM sync_timestamps WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("clear sync data: %w", err)
	}
	return nil
}
