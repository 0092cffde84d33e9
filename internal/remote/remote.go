// Package remote talks to the shared backend. The reconciliation engine is
// its only consumer: it pulls the social snapshot (profiles, shared sessions,
// relationship and permission edges) and pushes or pulls the owner's own
// sessions.
package remote

import (
	"context"

	"github.com/karlfish/fishlog/internal/store"
)

// Store defines what the reconciliation engine needs from the backend.
type Store interface {
	// FetchProfiles retrieves all visible user profiles
	FetchProfiles(ctx context.Context) ([]store.SharedProfile, error)

	// FetchSharedSessions retrieves sessions other users have shared
	FetchSharedSessions(ctx context.Context) ([]store.SharedSession, error)

	// FetchRelationships retrieves the friendship edges visible to this user
	FetchRelationships(ctx context.Context) ([]store.RelationshipEdge, error)

	// FetchPermissions retrieves per-friend visibility grants
	FetchPermissions(ctx context.Context) ([]store.PermissionEdge, error)

	// OwnedSessions retrieves the sessions the backend holds for an owner
	OwnedSessions(ctx context.Context, ownerID string) ([]store.Session, error)

	// UpsertSessions writes an owner's sessions, replacing rows with
	// matching ids
	UpsertSessions(ctx context.Context, ownerID string, sessions []store.Session) error

	// DeleteOwned removes everything the backend holds for an owner
	DeleteOwned(ctx context.Context, ownerID string) error
}
