// Package session owns the locked/unlocked state of the wallet session.
//
// The dispatcher can be evicted between any two events, so the Manager
// keeps nothing it relies on in memory. The SessionExpiration record is
// the only clock; a named host alarm wakes the dispatcher when it passes,
// and Start re-derives everything (including re-arming the alarm) on each
// cold start.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/store"
)

// AlarmName is the host alarm that locks the session.
const AlarmName = "session-expiration"

var (
	// ErrInvalidPasscode is returned by Unlock for a wrong passcode.
	ErrInvalidPasscode = errors.New("invalid passcode")
	// ErrNotConfigured is returned by Unlock before a passcode is provisioned.
	ErrNotConfigured = errors.New("no passcode configured")
)

// Manager reacts to passcode, preference and expiration changes and keeps
// the session expiration and its alarm consistent.
type Manager struct {
	store    *store.Service
	alarms   host.Alarms
	clock    clock.Clock
	logger   *slog.Logger
	onLocked func(ctx context.Context)

	mu          sync.Mutex
	ctx         context.Context
	lastTimeout time.Duration
	unsubscribe []func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithLockedHook registers fn to run whenever the expiration record is
// removed, i.e. the session has just locked.
func WithLockedHook(fn func(ctx context.Context)) Option {
	return func(m *Manager) { m.onLocked = fn }
}

// NewManager returns a Manager over s that schedules its wake-up on alarms.
func NewManager(s *store.Service, alarms host.Alarms, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		alarms: alarms,
		clock:  clock.Real(),
		logger: slog.Default(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to storage changes and reconciles the session with
// storage: an absent or past expiration clears the session scope, a
// future one re-arms the alarm.
func (m *Manager) Start(ctx context.Context) error {
	prefs, _, err := store.Get(ctx, m.store, models.PreferencesKind)
	if err != nil {
		return fmt.Errorf("reading preferences: %w", err)
	}

	m.mu.Lock()
	m.ctx = context.WithoutCancel(ctx)
	m.lastTimeout = prefs.InactivityTimeout()
	m.unsubscribe = append(m.unsubscribe,
		store.Subscribe(m.store, models.PasscodeKind, m.onPasscode, m.onSubscriptionError),
		store.Subscribe(m.store, models.PreferencesKind, m.onPreferences, m.onSubscriptionError),
		store.Subscribe(m.store, models.SessionExpirationKind, m.onExpiration, m.onSubscriptionError),
	)
	m.mu.Unlock()

	state, _, err := m.State(ctx)
	if err != nil {
		return err
	}
	return m.apply(ctx, state, EventStartup)
}

// Close removes the Manager's storage subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
}

// State derives the session state from the expiration record alone.
func (m *Manager) State(ctx context.Context) (State, time.Time, error) {
	exp, ok, err := store.Get(ctx, m.store, models.SessionExpirationKind)
	if err != nil {
		return Locked, time.Time{}, fmt.Errorf("reading session expiration: %w", err)
	}
	if !ok {
		return Locked, time.Time{}, nil
	}
	if !exp.SessionExpirationUtc.After(m.clock.Now()) {
		return Expired, exp.SessionExpirationUtc, nil
	}
	return Unlocked, exp.SessionExpirationUtc, nil
}

// IsUnlocked requires a non-empty session passcode that matches the stored
// verifier and an expiration in the future.
func (m *Manager) IsUnlocked(ctx context.Context) (bool, error) {
	pc, ok, err := store.Get(ctx, m.store, models.PasscodeKind)
	if err != nil || !ok || pc.Passcode == "" {
		return false, err
	}
	cfg, ok, err := store.Get(ctx, m.store, models.ConfigurationKind)
	if err != nil || !ok {
		return false, err
	}
	match, err := VerifyPasscode(cfg, pc.Passcode)
	if err != nil || !match {
		return false, err
	}
	state, _, err := m.State(ctx)
	if err != nil {
		return false, err
	}
	return state == Unlocked, nil
}

// ExtendIfUnlocked pushes the expiration out to now+timeout when the
// session is unlocked, and locks it otherwise.
func (m *Manager) ExtendIfUnlocked(ctx context.Context) error {
	unlocked, err := m.IsUnlocked(ctx)
	if err != nil {
		return err
	}
	state := Locked
	if unlocked {
		state = Unlocked
	}
	return m.apply(ctx, state, EventExtend)
}

// Lock clears the session immediately.
func (m *Manager) Lock(ctx context.Context) error {
	state, _, err := m.State(ctx)
	if err != nil {
		return err
	}
	return m.apply(ctx, state, EventLockRequested)
}

// Unlock verifies passcode against the stored verifier and, on success,
// stores it for the session. The expiration follows from the passcode
// subscription.
func (m *Manager) Unlock(ctx context.Context, passcode string) error {
	cfg, ok, err := store.Get(ctx, m.store, models.ConfigurationKind)
	if err != nil {
		return fmt.Errorf("reading configuration: %w", err)
	}
	if !ok || !cfg.HasPasscode() {
		return ErrNotConfigured
	}
	match, err := VerifyPasscode(cfg, passcode)
	if err != nil {
		return err
	}
	if !match {
		return ErrInvalidPasscode
	}
	// A lapsed expiration whose alarm has not been handled yet would clear
	// the passcode as soon as it is written. Lock first.
	state, _, err := m.State(ctx)
	if err != nil {
		return err
	}
	if state == Expired {
		if err := m.apply(ctx, state, EventLockRequested); err != nil {
			return fmt.Errorf("clearing expired session: %w", err)
		}
	}
	prefs, _, err := store.Get(ctx, m.store, models.PreferencesKind)
	if err != nil {
		return fmt.Errorf("reading preferences: %w", err)
	}
	return store.Set(ctx, m.store, models.PasscodeKind, models.PasscodeModel{
		Passcode:             passcode,
		SessionExpirationUtc: m.clock.Now().Add(prefs.InactivityTimeout()).UTC(),
	})
}

// HandleAlarm locks the session when the lock alarm fires. The alarm was
// set for the exact expiration, so the record is not re-checked.
func (m *Manager) HandleAlarm(ctx context.Context, name string) error {
	if name != AlarmName {
		return nil
	}
	m.logger.Info("session alarm fired; locking")
	return m.apply(ctx, Locked, EventAlarmFired)
}

func (m *Manager) background() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *Manager) onPasscode(pc models.PasscodeModel, present bool) {
	ctx := m.background()
	state, _, err := m.State(ctx)
	if err != nil {
		m.logger.Error("reading session state", "error", err)
		return
	}
	event := EventPasscodeSet
	if !present || pc.Passcode == "" {
		event = EventPasscodeCleared
	}
	if err := m.apply(ctx, state, event); err != nil {
		m.logger.Error("handling passcode change", "error", err)
	}
}

func (m *Manager) onPreferences(prefs models.Preferences, _ bool) {
	timeout := prefs.InactivityTimeout()
	m.mu.Lock()
	changed := timeout != m.lastTimeout
	m.lastTimeout = timeout
	ctx := m.ctx
	m.mu.Unlock()
	if !changed {
		return
	}

	state, _, err := m.State(ctx)
	if err != nil {
		m.logger.Error("reading session state", "error", err)
		return
	}
	if err := m.apply(ctx, state, EventTimeoutChanged); err != nil {
		m.logger.Error("handling timeout change", "error", err)
	}
}

func (m *Manager) onExpiration(exp models.SessionExpiration, present bool) {
	ctx := m.background()
	if !present {
		if err := m.apply(ctx, Locked, EventExpirationRemoved); err != nil {
			m.logger.Error("handling expiration removal", "error", err)
		}
		if m.onLocked != nil {
			m.onLocked(ctx)
		}
		return
	}
	state := Unlocked
	if !exp.SessionExpirationUtc.After(m.clock.Now()) {
		state = Expired
	}
	if err := m.apply(ctx, state, EventExpirationWritten); err != nil {
		m.logger.Error("handling expiration change", "error", err)
	}
}

func (m *Manager) onSubscriptionError(err error) {
	m.logger.Error("session subscription", "error", err)
}

// apply runs the transition for (state, event) and performs its effects.
func (m *Manager) apply(ctx context.Context, state State, event Event) error {
	next, effects := Transition(state, event)
	m.logger.Debug("session transition",
		"from", state.String(), "event", event.String(), "to", next.String())
	for _, effect := range effects {
		if err := m.perform(ctx, effect); err != nil {
			return fmt.Errorf("%s: %w", effect, err)
		}
	}
	return nil
}

func (m *Manager) perform(ctx context.Context, effect Effect) error {
	switch effect {
	case WriteExpiration:
		prefs, _, err := store.Get(ctx, m.store, models.PreferencesKind)
		if err != nil {
			return err
		}
		expiration := m.clock.Now().Add(prefs.InactivityTimeout()).UTC()
		return store.Set(ctx, m.store, models.SessionExpirationKind, models.SessionExpiration{
			SessionExpirationUtc: expiration,
		})
	case ScheduleAlarm:
		exp, ok, err := store.Get(ctx, m.store, models.SessionExpirationKind)
		if err != nil || !ok {
			return err
		}
		return m.alarms.Create(ctx, AlarmName, exp.SessionExpirationUtc)
	case CancelAlarm:
		return m.alarms.Clear(ctx, AlarmName)
	case ClearSession:
		return m.store.ClearScope(ctx, store.Session)
	}
	return fmt.Errorf("unknown effect %d", effect)
}
