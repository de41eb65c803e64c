package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keriauth/host"
	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/internal/util"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/storage/memory"
	"github.com/jmcleod/keriauth/store"
)

var (
	t0         = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	fastParams = util.Argon2idParams{Time: 1, MemoryKiB: 64, Parallelism: 1, KeyLen: 32}
)

const testPasscode = "correct-horse-battery"

type harness struct {
	ctx     context.Context
	clock   *clock.FakeClock
	store   *store.Service
	alarms  *host.AlarmScheduler
	manager *Manager
	locks   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ctx:   context.Background(),
		clock: clock.Fake(t0),
		store: store.New(memory.NewRepository(), memory.NewRepository()),
	}
	h.start(t)
	return h
}

// start builds a fresh Manager and alarm scheduler over the same storage,
// as happens each time the dispatcher is recreated.
func (h *harness) start(t *testing.T) {
	t.Helper()
	var m *Manager
	h.alarms = host.NewAlarmScheduler(h.clock, func(name string) {
		require.NoError(t, m.HandleAlarm(h.ctx, name))
	})
	m = NewManager(h.store, h.alarms,
		WithClock(h.clock),
		WithLockedHook(func(context.Context) { h.locks++ }),
	)
	require.NoError(t, m.Start(h.ctx))
	h.manager = m
}

// evict drops the Manager and its alarms without touching storage.
func (h *harness) evict() {
	_ = h.alarms.Clear(h.ctx, AlarmName)
	h.manager.Close()
	h.alarms = nil
	h.manager = nil
}

func (h *harness) provision(t *testing.T, passcode string) {
	t.Helper()
	cfg, err := NewConfiguration(models.Configuration{AdminURL: "http://localhost:3901"}, passcode, fastParams)
	require.NoError(t, err)
	require.NoError(t, store.Set(h.ctx, h.store, models.ConfigurationKind, cfg))
}

func (h *harness) setPasscode(t *testing.T, passcode string) {
	t.Helper()
	require.NoError(t, store.Set(h.ctx, h.store, models.PasscodeKind, models.PasscodeModel{Passcode: passcode}))
}

func (h *harness) expiration(t *testing.T) (time.Time, bool) {
	t.Helper()
	exp, ok, err := store.Get(h.ctx, h.store, models.SessionExpirationKind)
	require.NoError(t, err)
	return exp.SessionExpirationUtc, ok
}

func (h *harness) sessionEmpty(t *testing.T) bool {
	t.Helper()
	for _, name := range []string{"PasscodeModel", "SessionExpiration", "ConnectionInfo", "PendingBwAppRequests"} {
		ids, err := h.store.ListIDs(h.ctx, store.Session, name)
		require.NoError(t, err)
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

func (h *harness) unlocked(t *testing.T) bool {
	t.Helper()
	ok, err := h.manager.IsUnlocked(h.ctx)
	require.NoError(t, err)
	return ok
}

func TestPasscodeUnlocksAndAlarmLocks(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	require.NoError(t, store.Set(h.ctx, h.store, models.PreferencesKind, models.Preferences{InactivityTimeoutMinutes: 20}))

	h.setPasscode(t, testPasscode)

	exp, ok := h.expiration(t)
	require.True(t, ok)
	assert.Equal(t, t0.Add(20*time.Minute), exp)
	scheduled, ok := h.alarms.Scheduled(AlarmName)
	require.True(t, ok)
	assert.Equal(t, exp, scheduled)
	assert.True(t, h.unlocked(t))

	h.clock.Advance(21 * time.Minute)

	assert.True(t, h.sessionEmpty(t))
	assert.False(t, h.unlocked(t))
	assert.Equal(t, 1, h.locks)
}

func TestPasscodeSetKeepsExistingExpiration(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)
	first, _ := h.expiration(t)

	h.clock.Advance(5 * time.Minute)
	h.setPasscode(t, testPasscode)

	second, _ := h.expiration(t)
	assert.Equal(t, first, second)
}

func TestPasscodeClearedLocks(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)
	require.NoError(t, store.Set(h.ctx, h.store, models.ConnectionInfoKind, models.ConnectionInfo{AgentPrefix: "EAgent"}))

	h.setPasscode(t, "")

	assert.True(t, h.sessionEmpty(t))
	_, ok := h.alarms.Scheduled(AlarmName)
	assert.False(t, ok, "alarm should be canceled when the expiration is removed")
	assert.Equal(t, 1, h.locks)

	// Provisioning survives a lock.
	_, ok, err := store.Get(h.ctx, h.store, models.ConfigurationKind)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTimeoutChangeReschedules(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)

	h.clock.Advance(time.Minute)
	require.NoError(t, store.Set(h.ctx, h.store, models.PreferencesKind, models.Preferences{InactivityTimeoutMinutes: 5}))

	exp, _ := h.expiration(t)
	assert.Equal(t, t0.Add(6*time.Minute), exp)
	scheduled, _ := h.alarms.Scheduled(AlarmName)
	assert.Equal(t, exp, scheduled)

	// An unrelated preference change does not move the expiration.
	h.clock.Advance(time.Minute)
	require.NoError(t, store.Set(h.ctx, h.store, models.PreferencesKind, models.Preferences{InactivityTimeoutMinutes: 5, IsDarkTheme: true}))
	exp, _ = h.expiration(t)
	assert.Equal(t, t0.Add(6*time.Minute), exp)
}

func TestTimeoutChangeWhileLockedDoesNothing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, store.Set(h.ctx, h.store, models.PreferencesKind, models.Preferences{InactivityTimeoutMinutes: 3}))
	_, ok := h.expiration(t)
	assert.False(t, ok)
}

func TestTimeoutCeiling(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	require.NoError(t, store.Set(h.ctx, h.store, models.PreferencesKind, models.Preferences{InactivityTimeoutMinutes: 90}))
	h.setPasscode(t, testPasscode)

	exp, _ := h.expiration(t)
	assert.Equal(t, t0.Add(20*time.Minute), exp)
}

func TestExtendIfUnlockedIsMonotonic(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)

	prev, _ := h.expiration(t)
	for i := 0; i < 5; i++ {
		h.clock.Advance(3 * time.Minute)
		require.NoError(t, h.manager.ExtendIfUnlocked(h.ctx))

		exp, ok := h.expiration(t)
		require.True(t, ok)
		assert.Equal(t, h.clock.Now().Add(20*time.Minute), exp)
		assert.False(t, exp.Before(prev))
		scheduled, _ := h.alarms.Scheduled(AlarmName)
		assert.Equal(t, exp, scheduled)
		prev = exp
	}
	assert.True(t, h.unlocked(t))
}

func TestExtendWhenLockedClearsSession(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	// Passcode that does not match the verifier still produces an
	// expiration, but the session is not unlocked.
	h.setPasscode(t, "wrong")
	_, ok := h.expiration(t)
	require.True(t, ok)

	require.NoError(t, h.manager.ExtendIfUnlocked(h.ctx))
	assert.True(t, h.sessionEmpty(t))
}

func TestIsUnlockedRequiresAllConditions(t *testing.T) {
	t.Run("no passcode", func(t *testing.T) {
		h := newHarness(t)
		h.provision(t, testPasscode)
		assert.False(t, h.unlocked(t))
	})

	t.Run("no configuration", func(t *testing.T) {
		h := newHarness(t)
		h.setPasscode(t, testPasscode)
		assert.False(t, h.unlocked(t))
	})

	t.Run("hash mismatch", func(t *testing.T) {
		h := newHarness(t)
		h.provision(t, "another passcode")
		h.setPasscode(t, testPasscode)
		assert.False(t, h.unlocked(t))
	})

	t.Run("no expiration", func(t *testing.T) {
		h := newHarness(t)
		h.provision(t, testPasscode)
		h.setPasscode(t, testPasscode)
		require.NoError(t, store.Remove(h.ctx, h.store, models.SessionExpirationKind))
		assert.False(t, h.unlocked(t))
	})

	t.Run("expiration in past", func(t *testing.T) {
		h := newHarness(t)
		h.provision(t, testPasscode)
		h.setPasscode(t, testPasscode)
		// Alarms are dropped so the past expiration is observed directly.
		h.evict()
		h.clock.Advance(25 * time.Minute)
		m := NewManager(h.store, host.NewAlarmScheduler(h.clock, func(string) {}), WithClock(h.clock))
		ok, err := m.IsUnlocked(h.ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("all hold", func(t *testing.T) {
		h := newHarness(t)
		h.provision(t, testPasscode)
		h.setPasscode(t, testPasscode)
		assert.True(t, h.unlocked(t))
	})
}

func TestEvictionSurvivability(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)
	exp, _ := h.expiration(t)

	h.evict()
	h.clock.Advance(10 * time.Minute)
	h.start(t)

	assert.True(t, h.unlocked(t))
	scheduled, ok := h.alarms.Scheduled(AlarmName)
	require.True(t, ok, "alarm must be re-armed after recreation")
	assert.Equal(t, exp, scheduled)

	h.clock.Advance(10 * time.Minute)
	assert.True(t, h.sessionEmpty(t))
}

func TestStartupClearsExpiredSession(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)

	h.evict()
	h.clock.Advance(30 * time.Minute)
	h.start(t)

	assert.True(t, h.sessionEmpty(t))
	assert.False(t, h.unlocked(t))
}

func TestStartupClearsOrphanedPasscode(t *testing.T) {
	h := newHarness(t)
	h.evict()
	// A passcode without an expiration is left behind by an interrupted write.
	require.NoError(t, store.Set(h.ctx, h.store, models.PasscodeKind, models.PasscodeModel{Passcode: testPasscode}))
	require.NoError(t, store.Remove(h.ctx, h.store, models.SessionExpirationKind))

	h.start(t)
	assert.True(t, h.sessionEmpty(t))
}

func TestLock(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)

	require.NoError(t, h.manager.Lock(h.ctx))
	assert.True(t, h.sessionEmpty(t))
	assert.Equal(t, 1, h.locks)

	state, _, err := h.manager.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, Locked, state)
}

func TestUnlock(t *testing.T) {
	h := newHarness(t)

	err := h.manager.Unlock(h.ctx, testPasscode)
	assert.ErrorIs(t, err, ErrNotConfigured)

	h.provision(t, testPasscode)
	err = h.manager.Unlock(h.ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidPasscode)
	assert.False(t, h.unlocked(t))

	require.NoError(t, h.manager.Unlock(h.ctx, testPasscode))
	assert.True(t, h.unlocked(t))

	state, exp, err := h.manager.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, state)
	assert.Equal(t, t0.Add(20*time.Minute), exp)
}

func TestUnlockAfterUnhandledExpiry(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	require.NoError(t, store.Set(h.ctx, h.store, models.SessionExpirationKind, models.SessionExpiration{
		SessionExpirationUtc: t0.Add(time.Minute),
	}))
	require.NoError(t, h.alarms.Clear(h.ctx, AlarmName))
	h.clock.Set(t0.Add(2 * time.Minute))

	state, _, err := h.manager.State(h.ctx)
	require.NoError(t, err)
	require.Equal(t, Expired, state)

	require.NoError(t, h.manager.Unlock(h.ctx, testPasscode))
	assert.True(t, h.unlocked(t))

	pc, ok, err := store.Get(h.ctx, h.store, models.PasscodeKind)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testPasscode, pc.Passcode)

	exp, ok := h.expiration(t)
	require.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Minute+20*time.Minute), exp)
	_, armed := h.alarms.Scheduled(AlarmName)
	assert.True(t, armed)
}

func TestHandleAlarmIgnoresOtherNames(t *testing.T) {
	h := newHarness(t)
	h.provision(t, testPasscode)
	h.setPasscode(t, testPasscode)

	require.NoError(t, h.manager.HandleAlarm(h.ctx, "some-other-alarm"))
	assert.True(t, h.unlocked(t))
}

func TestVerifyPasscodeNormalizes(t *testing.T) {
	cfg, err := NewConfiguration(models.Configuration{}, "café", fastParams)
	require.NoError(t, err)

	ok, err := VerifyPasscode(cfg, "café")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPasscode(cfg, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewConfiguration(models.Configuration{}, "", fastParams)
	assert.ErrorIs(t, err, ErrEmptyPasscode)
}
