package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karlfish/fishlog/internal/identity"
	"github.com/karlfish/fishlog/internal/store"
)

// fakeBackend is an in-memory remote.Store.
type fakeBackend struct {
	profiles      []store.SharedProfile
	shared        []store.SharedSession
	relationships []store.RelationshipEdge
	permissions   []store.PermissionEdge
	owned         map[string][]store.Session

	pullErr error
	pushErr error

	upserts int
	deletes int
	block   chan struct{} // when set, FetchProfiles blocks until closed
}

func (f *fakeBackend) FetchProfiles(ctx context.Context) ([]store.SharedProfile, error) {
	if f.block != nil {
		<-f.block
	}
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.profiles, nil
}

func (f *fakeBackend) FetchSharedSessions(ctx context.Context) ([]store.SharedSession, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.shared, nil
}

func (f *fakeBackend) FetchRelationships(ctx context.Context) ([]store.RelationshipEdge, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.relationships, nil
}

func (f *fakeBackend) FetchPermissions(ctx context.Context) ([]store.PermissionEdge, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.permissions, nil
}

func (f *fakeBackend) OwnedSessions(ctx context.Context, ownerID string) ([]store.Session, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return f.owned[ownerID], nil
}

func (f *fakeBackend) UpsertSessions(ctx context.Context, ownerID string, sessions []store.Session) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.upserts++
	if f.owned == nil {
		f.owned = make(map[string][]store.Session)
	}
	f.owned[ownerID] = append([]store.Session(nil), sessions...)
	return nil
}

func (f *fakeBackend) DeleteOwned(ctx context.Context, ownerID string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.deletes++
	delete(f.owned, ownerID)
	return nil
}

func testEngine(t *testing.T, owner identity.Owner, backend *fakeBackend) (*Engine, *store.Local) {
	t.Helper()
	local := testStore(t, owner)
	clock := NewClock(local)
	engine := NewEngine(local, backend, clock, identity.Static{Owner: owner}, nil, nil, Options{})
	return engine, local
}

func remoteSession(id, date string, lat, lon float64) store.Session {
	return store.Session{
		ID: id, OwnerID: "alice", Date: date, StartTime: "06:00",
		Location: store.Location{Latitude: lat, Longitude: lon},
	}
}

func TestRunPassRequiresAuth(t *testing.T) {
	engine, _ := testEngine(t, identity.AnonymousLocal(), &fakeBackend{})
	if _, err := engine.RunPass(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("err = %v, want ErrNotSignedIn", err)
	}
}

func TestRunPassBootstrapsEmptyLocal(t *testing.T) {
	backend := &fakeBackend{
		profiles: []store.SharedProfile{{ID: "p1", Username: "karl"}},
		owned: map[string][]store.Session{"alice": {
			remoteSession("s1", "2024-06-01", 41.5, -70.6),
			remoteSession("s2", "2024-06-02", 41.7, -70.2),
		}},
	}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !summary.Bootstrapped {
		t.Error("empty local store should bootstrap")
	}
	if summary.Imported != 2 || summary.Pushed != 0 {
		t.Errorf("imported=%d pushed=%d, want 2/0", summary.Imported, summary.Pushed)
	}
	if summary.PulledProfiles != 1 {
		t.Errorf("PulledProfiles = %d, want 1", summary.PulledProfiles)
	}

	sessions, err := local.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d local sessions after bootstrap, want 2", len(sessions))
	}
	// Imports are copies of remote state, not local edits.
	if need, _ := engine.clock.NeedsPush("alice"); need {
		t.Error("bootstrap import must not schedule a push")
	}
	if _, ok, _ := local.LastSyncTime("alice"); !ok {
		t.Error("clean pass did not record sync time")
	}
}

func TestBootstrapSkipsDuplicates(t *testing.T) {
	backend := &fakeBackend{
		owned: map[string][]store.Session{"alice": {
			remoteSession("s1", "2024-06-01", 41.5000, -70.6000),
			remoteSession("s2", "2024-06-01", 41.5005, -70.6005), // within 0.001
			remoteSession("s3", "2024-06-01", 41.5100, -70.6100), // 0.01 apart, no duplicate
		}},
	}
	engine, _ := testEngine(t, identity.Authenticated("alice"), backend)

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Imported != 2 || summary.Duplicates != 1 {
		t.Errorf("imported=%d duplicates=%d, want 2/1", summary.Imported, summary.Duplicates)
	}
}

func TestDuplicateEpsilonConfigurable(t *testing.T) {
	backend := &fakeBackend{
		owned: map[string][]store.Session{"alice": {
			remoteSession("s1", "2024-06-01", 41.50, -70.60),
			remoteSession("s2", "2024-06-01", 41.51, -70.61), // 0.01 apart
		}},
	}
	local := testStore(t, identity.Authenticated("alice"))
	engine := NewEngine(local, backend, NewClock(local),
		identity.Static{Owner: identity.Authenticated("alice")}, nil, nil,
		Options{DuplicateEpsilon: 0.05})

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1 with widened epsilon", summary.Duplicates)
	}
}

func TestRunPassPushesLocalEdits(t *testing.T) {
	backend := &fakeBackend{}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	if _, err := local.CreateSession(&store.Session{Date: "2024-06-01", StartTime: "06:00"}); err != nil {
		t.Fatal(err)
	}

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Pushed != 1 || summary.Bootstrapped {
		t.Errorf("pushed=%d bootstrapped=%v, want 1/false", summary.Pushed, summary.Bootstrapped)
	}
	if len(backend.owned["alice"]) != 1 {
		t.Errorf("backend holds %d sessions, want 1", len(backend.owned["alice"]))
	}

	// Quiescent second pass pushes nothing.
	summary, err = engine.RunPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Pushed != 0 {
		t.Errorf("second pass pushed %d, want 0", summary.Pushed)
	}
	if backend.upserts != 1 {
		t.Errorf("backend saw %d upserts, want 1", backend.upserts)
	}
}

func TestPullFailureAbortsBeforeLocalChanges(t *testing.T) {
	backend := &fakeBackend{
		profiles: []store.SharedProfile{{ID: "p1"}},
	}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	// Seed the cache with a clean pass, then make pulls fail.
	if _, err := engine.RunPass(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _, err := local.LastSyncTime("alice")
	if err != nil {
		t.Fatal(err)
	}

	backend.pullErr = errors.New("backend down")
	if _, err := engine.RunPass(context.Background()); err == nil {
		t.Fatal("expected pass to fail")
	}

	// Cache and sync timestamp must be untouched by the failed pass.
	profiles, err := local.SharedProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 {
		t.Errorf("cache lost on failed pull: %d profiles", len(profiles))
	}
	after, _, err := local.LastSyncTime("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !after.Equal(first) {
		t.Error("failed pass advanced the sync timestamp")
	}
}

func TestPushFailureDoesNotMarkSynced(t *testing.T) {
	backend := &fakeBackend{pushErr: errors.New("backend down")}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	if _, err := local.CreateSession(&store.Session{Date: "2024-06-01", StartTime: "06:00"}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RunPass(context.Background()); err == nil {
		t.Fatal("expected pass to fail")
	}
	if _, ok, _ := local.LastSyncTime("alice"); ok {
		t.Error("failed push recorded a sync time")
	}
}

func TestPerItemImportErrorsStillMarkSynced(t *testing.T) {
	// Two remote rows share an id, so the second import fails. That is a
	// counted item failure, not a pass failure: the sync timestamp must
	// still advance so the device does not retry forever.
	backend := &fakeBackend{
		owned: map[string][]store.Session{"alice": {
			remoteSession("s1", "2024-06-01", 41.5, -70.6),
			remoteSession("s1", "2024-06-02", 42.5, -71.6),
		}},
	}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	summary, err := engine.RunPass(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Imported != 1 || summary.Errors != 1 {
		t.Errorf("imported=%d errors=%d, want 1/1", summary.Imported, summary.Errors)
	}
	if _, ok, _ := local.LastSyncTime("alice"); !ok {
		t.Error("completed pass with item errors did not record a sync time")
	}
	if stale, _ := engine.DataStale(time.Hour); stale {
		t.Error("completed pass should clear staleness")
	}
}

func TestPassesDoNotQueue(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	engine, _ := testEngine(t, identity.Authenticated("alice"), backend)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunPass(context.Background())
		done <- err
	}()

	// Wait until the first pass is inside the backend call.
	deadline := time.After(2 * time.Second)
	for !engine.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first pass never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := engine.RunPass(context.Background()); !errors.Is(err, ErrPassInFlight) {
		t.Errorf("concurrent pass err = %v, want ErrPassInFlight", err)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestWipeRefusedDuringPass(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	engine, _ := testEngine(t, identity.Authenticated("alice"), backend)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunPass(context.Background())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !engine.running.Load() {
		select {
		case <-deadline:
			t.Fatal("pass never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// A wipe must not interleave with the running pass.
	if err := engine.WipeLocal(); !errors.Is(err, ErrPassInFlight) {
		t.Errorf("WipeLocal during pass err = %v, want ErrPassInFlight", err)
	}
	if err := engine.WipeLocalAndRemote(context.Background()); !errors.Is(err, ErrPassInFlight) {
		t.Errorf("WipeLocalAndRemote during pass err = %v, want ErrPassInFlight", err)
	}

	close(backend.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestForcePullReplacesLocal(t *testing.T) {
	backend := &fakeBackend{
		owned: map[string][]store.Session{"alice": {
			remoteSession("s1", "2024-06-01", 41.5, -70.6),
		}},
	}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	if _, err := local.CreateSession(&store.Session{Date: "2024-07-01", StartTime: "05:00"}); err != nil {
		t.Fatal(err)
	}

	n, err := engine.ForcePull(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("imported %d, want 1", n)
	}
	sessions, err := local.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("local sessions after force pull: %+v", sessions)
	}
}

func TestWipeLocalAndRemoteFailsClosed(t *testing.T) {
	backend := &fakeBackend{pushErr: errors.New("backend down")}
	engine, local := testEngine(t, identity.Authenticated("alice"), backend)

	if _, err := local.CreateSession(&store.Session{Date: "2024-06-01", StartTime: "06:00"}); err != nil {
		t.Fatal(err)
	}
	if err := engine.WipeLocalAndRemote(context.Background()); err == nil {
		t.Fatal("expected wipe to fail")
	}
	// Remote deletion failed, so the local copy must survive for retry.
	sessions, err := local.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Error("local data lost despite failed remote deletion")
	}

	backend.pushErr = nil
	if err := engine.WipeLocalAndRemote(context.Background()); err != nil {
		t.Fatal(err)
	}
	sessions, _ = local.ListSessions()
	if len(sessions) != 0 {
		t.Error("local data survived a successful wipe")
	}
	if backend.deletes != 1 {
		t.Errorf("backend saw %d deletes, want 1", backend.deletes)
	}
}
