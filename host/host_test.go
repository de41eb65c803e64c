package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/message"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestAlarmSchedulerFires(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	var fired []string
	s := NewAlarmScheduler(c, func(name string) { fired = append(fired, name) })

	require.NoError(t, s.Create(ctx, "lock", epoch.Add(time.Minute)))
	when, ok := s.Scheduled("lock")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(time.Minute), when)

	c.Advance(59 * time.Second)
	assert.Empty(t, fired)
	c.Advance(time.Second)
	assert.Equal(t, []string{"lock"}, fired)

	_, ok = s.Scheduled("lock")
	assert.False(t, ok)
}

func TestAlarmSchedulerReplaceByName(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	fired := 0
	s := NewAlarmScheduler(c, func(string) { fired++ })

	require.NoError(t, s.Create(ctx, "lock", epoch.Add(time.Minute)))
	require.NoError(t, s.Create(ctx, "lock", epoch.Add(5*time.Minute)))

	c.Advance(2 * time.Minute)
	assert.Equal(t, 0, fired, "replaced alarm must not fire")

	c.Advance(3 * time.Minute)
	assert.Equal(t, 1, fired)
}

func TestAlarmSchedulerClear(t *testing.T) {
	ctx := context.Background()
	c := clock.Fake(epoch)
	fired := 0
	s := NewAlarmScheduler(c, func(string) { fired++ })

	require.NoError(t, s.Create(ctx, "lock", epoch.Add(time.Minute)))
	require.NoError(t, s.Clear(ctx, "lock"))
	require.NoError(t, s.Clear(ctx, "never-created"))

	c.Advance(time.Hour)
	assert.Equal(t, 0, fired)
}

func TestAlarmSchedulerPastDeadline(t *testing.T) {
	c := clock.Fake(epoch)
	fired := 0
	s := NewAlarmScheduler(c, func(string) { fired++ })

	require.NoError(t, s.Create(context.Background(), "lock", epoch.Add(-time.Second)))
	assert.Equal(t, 1, fired)
	_, ok := s.Scheduled("lock")
	assert.False(t, ok)
}

func TestStaticPermissions(t *testing.T) {
	p := NewStaticPermissions("https://example.com/*")
	got, err := p.GrantedOrigins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/*"}, got)

	got[0] = "mutated"
	p.Set([]string{"https://other.example/*"})
	got, _ = p.GrantedOrigins(context.Background())
	assert.Equal(t, []string{"https://other.example/*"}, got)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder()

	err := r.SendToApp(ctx, message.ToApp{Type: message.BwAppRequest})
	assert.ErrorIs(t, err, ErrNoListener)

	var delivered []string
	r.OnAppDelivery(func(m message.ToApp) { delivered = append(delivered, m.Type) })
	r.SetAppListening(true)
	require.NoError(t, r.SendToApp(ctx, message.ToApp{Type: message.BwAppSessionLocked}))
	require.NoError(t, r.SendToTab(ctx, 3, message.ToContentScript{Type: message.BwCsReady}))
	require.NoError(t, r.Open(ctx, "index.html?message=x"))

	assert.Equal(t, []string{message.BwAppSessionLocked}, delivered)
	assert.Len(t, r.AppMessages(), 1)
	assert.Equal(t, []TabMessage{{TabID: 3, Message: message.ToContentScript{Type: message.BwCsReady}}}, r.TabMessages())
	assert.Equal(t, []string{"index.html?message=x"}, r.Popups())
}
