package sync

import (
	"time"

	"github.com/karlfish/fishlog/internal/store"
)

// Clock answers the two questions a reconciliation pass asks before moving
// data: has anything changed locally since this user last synced, and has the
// remote changed since then. It compares the process-wide last-local-update
// timestamp against the per-user last-sync timestamp; both live in the local
// store so the answers survive restarts.
type Clock struct {
	local *store.Local
}

// NewClock creates a sync clock over the local store.
func NewClock(local *store.Local) *Clock {
	return &Clock{local: local}
}

// NeedsPush reports whether local edits exist that postdate the user's last
// successful pass. A user with no pass on record always needs one; after
// that, only an edit newer than the last pass does.
func (c *Clock) NeedsPush(userID string) (bool, error) {
	lastSync, hasSync, err := c.local.LastSyncTime(userID)
	if err != nil {
		return false, err
	}
	if !hasSync {
		return true, nil
	}
	localUpdate, hasLocal, err := c.local.LastLocalUpdate()
	if err != nil {
		return false, err
	}
	if !hasLocal {
		return false, nil
	}
	return localUpdate.After(lastSync), nil
}

// NeedsPull reports whether the remote has changed since the user's last
// successful pass. remoteUpdatedAt is the newest modification time the remote
// reports; the zero value means the remote gave no signal, which forces a
// pull. A user who has never synced always needs one.
func (c *Clock) NeedsPull(userID string, remoteUpdatedAt time.Time) (bool, error) {
	lastSync, hasSync, err := c.local.LastSyncTime(userID)
	if err != nil {
		return false, err
	}
	if !hasSync {
		return true, nil
	}
	if remoteUpdatedAt.IsZero() {
		return true, nil
	}
	return remoteUpdatedAt.After(lastSync), nil
}

// MarkSynced records a clean pass for the user at t.
func (c *Clock) MarkSynced(userID string, t time.Time) error {
	return c.local.MarkSynced(userID, t)
}

// DataStale reports whether the user's last clean pass is older than maxAge.
// Never-synced counts as stale.
func (c *Clock) DataStale(userID string, maxAge time.Duration) (bool, error) {
	lastSync, hasSync, err := c.local.LastSyncTime(userID)
	if err != nil {
		return false, err
	}
	if !hasSync {
		return true, nil
	}
	return time.Since(lastSync) > maxAge, nil
}
