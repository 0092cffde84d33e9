// Package mode decides whether the app behaves as online or offline. The
// offline flag is a persisted user choice; reachability is probed, not
// assumed. Going back online is the moment to reconcile, so the controller
// announces that transition on the bus.
package mode

import (
	"time"

	"go.uber.org/zap"

	"github.com/karlfish/fishlog/internal/bus"
	"github.com/karlfish/fishlog/internal/identity"
	"github.com/karlfish/fishlog/internal/store"
)

// Probe reports whether the backend is currently reachable.
type Probe func() bool

// Change is the payload published on "mode.changed".
type Change struct {
	Offline bool
}

// Controller owns the offline/online decision.
type Controller struct {
	local  *store.Local
	ident  identity.Provider
	probe  Probe
	bus    *bus.Bus
	logger *zap.Logger
}

// NewController creates a mode controller. probe may be nil, in which case
// the backend is assumed reachable.
func NewController(local *store.Local, ident identity.Provider, probe Probe, b *bus.Bus, logger *zap.Logger) *Controller {
	if probe == nil {
		probe = func() bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		local:  local,
		ident:  ident,
		probe:  probe,
		bus:    b,
		logger: logger,
	}
}

// IsOffline reads the persisted offline flag.
func (c *Controller) IsOffline() (bool, error) {
	return c.local.IsOfflineMode()
}

// EnableOffline persists the offline choice. No sync runs until it is lifted.
func (c *Controller) EnableOffline() error {
	if err := c.setOffline(true); err != nil {
		return err
	}
	c.logger.Info("offline mode enabled")
	return nil
}

// DisableOffline lifts the offline choice. The announced transition is the
// cue for the daemon to run a reconciliation pass.
func (c *Controller) DisableOffline() error {
	if err := c.setOffline(false); err != nil {
		return err
	}
	c.logger.Info("offline mode disabled")
	return nil
}

func (c *Controller) setOffline(offline bool) error {
	current, err := c.local.IsOfflineMode()
	if err != nil {
		return err
	}
	if current == offline {
		return nil
	}
	if err := c.local.SetOfflineMode(offline); err != nil {
		return err
	}
	if c.bus != nil {
		c.bus.Publish(bus.Event{
			Kind:      "mode.changed",
			Timestamp: time.Now(),
			Payload:   Change{Offline: offline},
		})
	}
	return nil
}

// ShouldSync reports whether a reconciliation pass makes sense right now:
// the user has not chosen offline, and the backend answers the probe.
func (c *Controller) ShouldSync() (bool, error) {
	offline, err := c.local.IsOfflineMode()
	if err != nil {
		return false, err
	}
	if offline {
		return false, nil
	}
	return c.probe(), nil
}

// Startup applies the launch-time rule: an unauthenticated install that
// already holds data comes up offline, so nothing is synced under the
// anonymous identity by accident.
func (c *Controller) Startup() error {
	if c.ident.Current().IsAuthenticated() {
		return nil
	}
	owned, err := c.local.HasOwnedData()
	if err != nil {
		return err
	}
	shared, err := c.local.HasSharedData()
	if err != nil {
		return err
	}
	if !owned && !shared {
		return nil
	}
	c.logger.Info("unauthenticated install with local data, starting offline")
	return c.EnableOffline()
}
