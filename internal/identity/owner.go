// Package identity models who local data is partitioned by: either an
// authenticated user (opaque id issued elsewhere) or the anonymous local
// identity used when nobody is signed in.
package identity

// AnonymousID is the synthetic owner id used for on-device data created
// while no user is signed in.
const AnonymousID = "offline-user"

// Owner identifies the partition a piece of local data belongs to.
// The zero value is the anonymous local owner.
type Owner struct {
	userID        string
	authenticated bool
}

// Authenticated returns an owner backed by a signed-in user id.
func Authenticated(userID string) Owner {
	return Owner{userID: userID, authenticated: true}
}

// AnonymousLocal returns the owner used when no user is signed in.
func AnonymousLocal() Owner {
	return Owner{}
}

// IsAuthenticated reports whether this owner is a signed-in user.
func (o Owner) IsAuthenticated() bool {
	return o.authenticated
}

// ID returns the owner id used for store partitioning: the user id when
// authenticated, AnonymousID otherwise.
func (o Owner) ID() string {
	if o.authenticated {
		return o.userID
	}
	return AnonymousID
}

// Provider resolves the current owner. The auth layer is out of scope here;
// implementations wrap whatever "current user" signal the host app exposes.
type Provider interface {
	Current() Owner
}

// Static is a Provider that always returns the same owner. The daemon builds
// one from config at startup.
type Static struct {
	Owner Owner
}

// Current returns the fixed owner.
func (s Static) Current() Owner {
	return s.Owner
}
