// Package sync reconciles the on-device store with the shared backend. A pass
// has two halves: pull the social snapshot into the local cache, then push
// the owner's sessions up (or, on a fresh install, pull them down). The local
// store is authoritative for the owner's data; the backend is authoritative
// for everyone else's.
package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/karlfish/fishlog/internal/bus"
	"github.com/karlfish/fishlog/internal/identity"
	"github.com/karlfish/fishlog/internal/remote"
	"github.com/karlfish/fishlog/internal/store"
)

var (
	// ErrPassInFlight is returned when a pass is requested while another is
	// still running. Passes never queue.
	ErrPassInFlight = errors.New("sync: pass already in flight")

	// ErrNotSignedIn is returned when a pass is requested without an
	// authenticated owner. Anonymous data stays on-device.
	ErrNotSignedIn = errors.New("sync: no authenticated user")
)

// Options tune a reconciliation pass.
type Options struct {
	// DuplicateEpsilon is the coordinate tolerance, in degrees, under which
	// a remote session with a matching date is treated as already present
	// locally during bootstrap.
	DuplicateEpsilon float64

	// CallTimeout bounds each individual backend call.
	CallTimeout time.Duration
}

// DefaultOptions returns the tolerances a pass uses unless overridden.
func DefaultOptions() Options {
	return Options{
		DuplicateEpsilon: 0.001,
		CallTimeout:      15 * time.Second,
	}
}

// Summary describes what one pass did.
type Summary struct {
	PulledProfiles      int
	PulledSessions      int
	PulledRelationships int
	PulledPermissions   int
	Pushed              int
	Imported            int
	Duplicates          int
	Errors              int
	Bootstrapped        bool
}

// Engine runs reconciliation passes. At most one pass runs at a time;
// concurrent requests fail fast with ErrPassInFlight rather than queue.
type Engine struct {
	local   *store.Local
	backend remote.Store
	clock   *Clock
	ident   identity.Provider
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	running atomic.Bool
}

// NewEngine creates a reconciliation engine.
func NewEngine(local *store.Local, backend remote.Store, clock *Clock, ident identity.Provider, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if opts.DuplicateEpsilon == 0 {
		opts.DuplicateEpsilon = DefaultOptions().DuplicateEpsilon
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		local:   local,
		backend: backend,
		clock:   clock,
		ident:   ident,
		bus:     b,
		logger:  logger,
		opts:    opts,
	}
}

// RunPass runs one full reconciliation pass: pull the social snapshot, then
// reconcile the owner's sessions. A pull failure aborts the pass before any
// local state changes and leaves the per-user sync timestamp alone. Per-item
// import failures are counted in the summary, not escalated; a pass that
// completes still advances the timestamp.
func (e *Engine) RunPass(ctx context.Context) (*Summary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrPassInFlight
	}
	defer e.running.Store(false)

	owner := e.ident.Current()
	if !owner.IsAuthenticated() {
		return nil, ErrNotSignedIn
	}

	e.publish("sync.started", owner.ID())
	started := time.Now()

	summary, err := e.pass(ctx, owner)
	if err != nil {
		e.logger.Warn("sync pass failed", zap.Error(err))
		e.publish("sync.failed", err.Error())
		return nil, err
	}

	if err := e.clock.MarkSynced(owner.ID(), time.Now()); err != nil {
		return nil, fmt.Errorf("record sync time: %w", err)
	}

	e.logger.Info("sync pass completed",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("pushed", summary.Pushed),
		zap.Int("imported", summary.Imported),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("errors", summary.Errors))
	e.publish("sync.completed", *summary)
	return summary, nil
}

func (e *Engine) pass(ctx context.Context, owner identity.Owner) (*Summary, error) {
	summary := &Summary{}

	cache, err := e.pullShared(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.local.ReplaceSharedCache(cache); err != nil {
		return nil, fmt.Errorf("replace shared cache: %w", err)
	}
	summary.PulledProfiles = len(cache.Profiles)
	summary.PulledSessions = len(cache.Sessions)
	summary.PulledRelationships = len(cache.Relationships)
	summary.PulledPermissions = len(cache.Permissions)

	local, err := e.local.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list local sessions: %w", err)
	}

	if len(local) == 0 {
		if err := e.bootstrap(ctx, owner, summary); err != nil {
			return nil, err
		}
		return summary, nil
	}

	needPush, err := e.clock.NeedsPush(owner.ID())
	if err != nil {
		return nil, err
	}
	if needPush {
		if err := e.pushOwned(ctx, owner, local); err != nil {
			return nil, err
		}
		summary.Pushed = len(local)
	}
	return summary, nil
}

// pullShared fetches the full social snapshot. Any fetch failure aborts: a
// partial snapshot must never replace the cache.
func (e *Engine) pullShared(ctx context.Context) (*store.SharedCache, error) {
	cache := &store.SharedCache{}

	err := e.call(ctx, func(ctx context.Context) (err error) {
		cache.Profiles, err = e.backend.FetchProfiles(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pull profiles: %w", err)
	}
	err = e.call(ctx, func(ctx context.Context) (err error) {
		cache.Sessions, err = e.backend.FetchSharedSessions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pull shared sessions: %w", err)
	}
	err = e.call(ctx, func(ctx context.Context) (err error) {
		cache.Relationships, err = e.backend.FetchRelationships(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pull relationships: %w", err)
	}
	err = e.call(ctx, func(ctx context.Context) (err error) {
		cache.Permissions, err = e.backend.FetchPermissions(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pull permissions: %w", err)
	}
	return cache, nil
}

// bootstrap materializes the owner's backend sessions on a device with no
// local data, skipping sessions that look like duplicates of ones imported
// moments earlier in the same pass.
func (e *Engine) bootstrap(ctx context.Context, owner identity.Owner, summary *Summary) error {
	summary.Bootstrapped = true

	var sessions []store.Session
	err := e.call(ctx, func(ctx context.Context) (err error) {
		sessions, err = e.backend.OwnedSessions(ctx, owner.ID())
		return err
	})
	if err != nil {
		return fmt.Errorf("pull owned sessions: %w", err)
	}

	var imported []store.Session
	for _, s := range sessions {
		if e.isDuplicate(&s, imported) {
			summary.Duplicates++
			continue
		}
		if err := e.local.ImportSession(&s); err != nil {
			e.logger.Warn("failed to import session",
				zap.String("session_id", s.ID), zap.Error(err))
			summary.Errors++
			continue
		}
		imported = append(imported, s)
		summary.Imported++
	}
	return nil
}

// isDuplicate reports whether a session matches one already imported: same
// date, and both coordinates within the configured epsilon.
func (e *Engine) isDuplicate(s *store.Session, against []store.Session) bool {
	for i := range against {
		o := &against[i]
		if o.Date != s.Date {
			continue
		}
		if math.Abs(o.Location.Latitude-s.Location.Latitude) < e.opts.DuplicateEpsilon &&
			math.Abs(o.Location.Longitude-s.Location.Longitude) < e.opts.DuplicateEpsilon {
			return true
		}
	}
	return false
}

func (e *Engine) pushOwned(ctx context.Context, owner identity.Owner, sessions []store.Session) error {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.backend.UpsertSessions(ctx, owner.ID(), sessions)
	})
	if err != nil {
		return fmt.Errorf("push owned sessions: %w", err)
	}
	return nil
}

// ForcePush pushes every local session up regardless of what the clock says.
func (e *Engine) ForcePush(ctx context.Context) (int, error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrPassInFlight
	}
	defer e.running.Store(false)

	owner := e.ident.Current()
	if !owner.IsAuthenticated() {
		return 0, ErrNotSignedIn
	}

	sessions, err := e.local.ListSessions()
	if err != nil {
		return 0, err
	}
	if len(sessions) == 0 {
		return 0, nil
	}
	if err := e.pushOwned(ctx, owner, sessions); err != nil {
		return 0, err
	}
	return len(sessions), nil
}

// ForcePull replaces the owner's local sessions with the backend's copy.
// Local-only edits are lost; callers confirm with the user first.
func (e *Engine) ForcePull(ctx context.Context) (int, error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrPassInFlight
	}
	defer e.running.Store(false)

	owner := e.ident.Current()
	if !owner.IsAuthenticated() {
		return 0, ErrNotSignedIn
	}

	var sessions []store.Session
	err := e.call(ctx, func(ctx context.Context) (err error) {
		sessions, err = e.backend.OwnedSessions(ctx, owner.ID())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pull owned sessions: %w", err)
	}
	if err := e.local.ClearOwnedData(); err != nil {
		return 0, err
	}
	for i := range sessions {
		if err := e.local.ImportSession(&sessions[i]); err != nil {
			return i, fmt.Errorf("import session %s: %w", sessions[i].ID, err)
		}
	}
	return len(sessions), nil
}

// WipeLocal clears everything on-device for the current owner: sessions,
// readings, the shared cache, and the sync timestamp. It takes the same
// in-flight guard as a pass so a wipe never interleaves with one.
func (e *Engine) WipeLocal() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrPassInFlight
	}
	defer e.running.Store(false)

	return e.wipeLocal()
}

func (e *Engine) wipeLocal() error {
	owner := e.ident.Current()
	if err := e.local.ClearOwnedData(); err != nil {
		return err
	}
	if err := e.local.ClearSharedCache(); err != nil {
		return err
	}
	return e.local.ClearUserSyncData(owner.ID())
}

// WipeLocalAndRemote wipes on-device state and deletes the owner's backend
// data. Remote deletion runs first so a network failure leaves the local copy
// intact for retry.
func (e *Engine) WipeLocalAndRemote(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrPassInFlight
	}
	defer e.running.Store(false)

	owner := e.ident.Current()
	if !owner.IsAuthenticated() {
		return ErrNotSignedIn
	}
	err := e.call(ctx, func(ctx context.Context) error {
		return e.backend.DeleteOwned(ctx, owner.ID())
	})
	if err != nil {
		return fmt.Errorf("delete remote data: %w", err)
	}
	return e.wipeLocal()
}

// DataStale reports whether the current owner's last clean pass is older
// than maxAge.
func (e *Engine) DataStale(maxAge time.Duration) (bool, error) {
	return e.clock.DataStale(e.ident.Current().ID(), maxAge)
}

func (e *Engine) publish(kind string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// call runs one backend call under its own deadline. The parent context
// still cancels early.
func (e *Engine) call(ctx context.Context, fn func(context.Context) error) error {
	bounded, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return fn(bounded)
}
