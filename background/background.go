// Package background is the dispatcher: it assembles the session
// manager, the App bridge and the router over one store and feeds them
// host events.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/keriauth/appbridge"
	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/message"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/router"
	"github.com/jmcleod/keriauth/session"
	"github.com/jmcleod/keriauth/signify"
	"github.com/jmcleod/keriauth/store"
	"github.com/jmcleod/keriauth/validator"
)

// Config describes one dispatcher instance.
type Config struct {
	ExtensionID     string
	ExtensionOrigin string
	PopupPath       string
	RequestTimeout  time.Duration

	Store       *store.Service
	Permissions host.Permissions
	Transport   host.Transport
	Popup       host.Popup
	// Signer defaults to signify.Disconnected.
	Signer signify.Client

	Clock  clock.Clock
	Logger *slog.Logger
}

// Dispatcher is one lifetime of the background context. Everything it
// holds in memory may be lost at any time; a new Dispatcher over the same
// store recovers from storage in Start.
type Dispatcher struct {
	store       *store.Service
	permissions host.Permissions
	alarms      *host.AlarmScheduler
	session     *session.Manager
	correlator  *appbridge.Correlator
	router      *router.Router
	logger      *slog.Logger

	// mu serializes entry points, as a single-threaded host would.
	mu sync.Mutex
}

// New wires a Dispatcher. Call Start before delivering events.
func New(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Signer == nil {
		cfg.Signer = signify.Disconnected{}
	}
	d := &Dispatcher{
		store:       cfg.Store,
		permissions: cfg.Permissions,
		logger:      cfg.Logger,
	}
	d.alarms = host.NewAlarmScheduler(cfg.Clock, func(name string) {
		d.HandleAlarm(context.Background(), name)
	})
	d.correlator = appbridge.NewCorrelator(cfg.Store, cfg.Transport,
		appbridge.WithClock(cfg.Clock),
		appbridge.WithLogger(cfg.Logger.With("component", "appbridge")),
		appbridge.WithDefaultTimeout(cfg.RequestTimeout),
	)
	d.session = session.NewManager(cfg.Store, d.alarms,
		session.WithClock(cfg.Clock),
		session.WithLogger(cfg.Logger.With("component", "session")),
		session.WithLockedHook(d.notifyLocked),
	)
	d.router = router.New(router.Config{
		Validator: validator.New(cfg.ExtensionID, cfg.ExtensionOrigin, cfg.Permissions,
			validator.WithLogger(cfg.Logger.With("component", "validator"))),
		Session:    d.session,
		Correlator: d.correlator,
		Transport:  cfg.Transport,
		Popup:      cfg.Popup,
		Signer:     signify.RequireConnection(cfg.Store, cfg.Signer),
		Store:      cfg.Store,
		PopupPath:  cfg.PopupPath,
	}, router.WithClock(cfg.Clock), router.WithLogger(cfg.Logger.With("component", "router")))
	return d
}

// Start recovers from storage: the session is recomputed and its alarm
// re-armed, and pending App requests left by a previous lifetime are
// removed since nobody is waiting for them.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.session.Start(ctx); err != nil {
		return fmt.Errorf("starting session manager: %w", err)
	}
	if _, err := d.correlator.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("recovering pending requests: %w", err)
	}
	d.logger.Info("dispatcher started")
	return nil
}

// Close tears the dispatcher down without touching storage, as eviction
// would.
func (d *Dispatcher) Close() {
	_ = d.alarms.Clear(context.Background(), session.AlarmName)
	d.session.Close()
}

// HandleMessage routes one inbound message.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte, sender message.Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.router.Dispatch(ctx, raw, sender)
}

// HandleAlarm delivers a host alarm.
func (d *Dispatcher) HandleAlarm(ctx context.Context, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.session.HandleAlarm(ctx, name); err != nil {
		d.logger.Error("handling alarm", "alarm", name, "error", err)
	}
}

// HandlePermissionsChanged replaces the granted origin patterns when the
// host permissions are held in process.
func (d *Dispatcher) HandlePermissionsChanged(origins []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.permissions.(*host.StaticPermissions); ok {
		p.Set(origins)
		d.logger.Info("host permissions updated", "count", len(origins))
	}
}

// RequestFromApp sends a correlated request to the App and waits for the
// response. An empty msg.Type is sent as a BW request. The dispatcher lock
// is not held while waiting, so the response can be delivered through
// HandleMessage.
func (d *Dispatcher) RequestFromApp(ctx context.Context, msg message.ToApp, timeout time.Duration) (message.FromApp, error) {
	if msg.Type == "" {
		msg.Type = message.BwAppRequest
	}
	return d.correlator.SendRequestToApp(ctx, msg, timeout)
}

// SessionStatus reports the current session state and expiration.
func (d *Dispatcher) SessionStatus(ctx context.Context) (session.State, time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, exp, err := d.session.State(ctx)
	if err != nil {
		return state, exp, false, err
	}
	unlocked, err := d.session.IsUnlocked(ctx)
	return state, exp, unlocked, err
}

// Lock locks the session.
func (d *Dispatcher) Lock(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.Lock(ctx)
}

// Unlock unlocks the session with passcode.
func (d *Dispatcher) Unlock(ctx context.Context, passcode string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.Unlock(ctx, passcode)
}

// Pending returns the durable pending-request store.
func (d *Dispatcher) Pending() *appbridge.PendingStore {
	return d.correlator.Pending()
}

// PendingRequests lists the durable pending requests, oldest first.
func (d *Dispatcher) PendingRequests(ctx context.Context) ([]models.PendingBwAppRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.correlator.Pending().List(ctx)
}

// RemovePending removes a pending request.
func (d *Dispatcher) RemovePending(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.correlator.Pending().Remove(ctx, id)
}

// SweepPending removes pending requests older than maxAge.
func (d *Dispatcher) SweepPending(ctx context.Context, maxAge time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.correlator.Pending().SweepStale(ctx, maxAge)
}

// AlarmScheduled returns the deadline of the session alarm, if armed.
func (d *Dispatcher) AlarmScheduled() (time.Time, bool) {
	return d.alarms.Scheduled(session.AlarmName)
}

func (d *Dispatcher) notifyLocked(ctx context.Context) {
	d.logger.Info("session locked")
	d.correlator.SendToApp(ctx, message.ToApp{Type: message.BwAppSessionLocked})
}
