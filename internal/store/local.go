package store

import (
	"time"

	"github.com/karlfish/fishlog/internal/bus"
	"github.com/karlfish/fishlog/internal/identity"
	"go.uber.org/zap"
)

// Local is the on-device store facade. Every operation is implicitly scoped
// to the current owner resolved from the identity provider: an authenticated
// user id, or the anonymous local owner when nobody is signed in.
//
// Local exclusively owns on-device state. The reconciliation engine is the
// only caller allowed to write the shared-snapshot cache.
type Local struct {
	db     *DB
	ident  identity.Provider
	bus    *bus.Bus
	logger *zap.Logger
}

// NewLocal creates the store facade.
func NewLocal(db *DB, ident identity.Provider, b *bus.Bus, logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{db: db, ident: ident, bus: b, logger: logger}
}

func (l *Local) owner() identity.Owner {
	return l.ident.Current()
}

// touch records a local mutation: it bumps the process-wide last-local-update
// timestamp and notifies observers. Session, catch, and settings writes call
// it; reading appends deliberately do not.
func (l *Local) touch(kind string) {
	if err := l.MarkLocalUpdate(time.Now()); err != nil {
		l.logger.Warn("failed to mark local update", zap.Error(err))
	}
	if l.bus != nil {
		l.bus.Publish(bus.Event{
			Kind:      "data.changed",
			Timestamp: time.Now(),
			Payload:   kind,
		})
	}
}
