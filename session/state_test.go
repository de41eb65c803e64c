package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		event   Event
		to      State
		effects []Effect
	}{
		{Locked, EventStartup, Locked, []Effect{ClearSession}},
		{Unlocked, EventStartup, Unlocked, []Effect{ScheduleAlarm}},
		{Expired, EventStartup, Locked, []Effect{ClearSession}},

		{Locked, EventPasscodeSet, Unlocked, []Effect{WriteExpiration}},
		{Unlocked, EventPasscodeSet, Unlocked, nil},
		{Expired, EventPasscodeSet, Locked, []Effect{ClearSession}},

		{Locked, EventPasscodeCleared, Locked, []Effect{ClearSession}},
		{Unlocked, EventPasscodeCleared, Locked, []Effect{ClearSession}},

		{Unlocked, EventTimeoutChanged, Unlocked, []Effect{WriteExpiration}},
		{Locked, EventTimeoutChanged, Locked, nil},

		{Unlocked, EventExpirationWritten, Unlocked, []Effect{ScheduleAlarm}},
		{Expired, EventExpirationWritten, Locked, []Effect{ClearSession}},
		{Locked, EventExpirationWritten, Locked, nil},

		{Unlocked, EventExpirationRemoved, Locked, []Effect{CancelAlarm}},
		{Locked, EventExpirationRemoved, Locked, []Effect{CancelAlarm}},

		{Unlocked, EventAlarmFired, Locked, []Effect{ClearSession}},
		{Locked, EventAlarmFired, Locked, []Effect{ClearSession}},

		{Unlocked, EventExtend, Unlocked, []Effect{WriteExpiration}},
		{Locked, EventExtend, Locked, []Effect{ClearSession}},
		{Expired, EventExtend, Locked, []Effect{ClearSession}},

		{Unlocked, EventLockRequested, Locked, []Effect{ClearSession}},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			to, effects := Transition(tt.from, tt.event)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.effects, effects)
		})
	}
}

func TestExpiredNeverPersists(t *testing.T) {
	for e := EventStartup; e <= EventLockRequested; e++ {
		to, _ := Transition(Expired, e)
		assert.Equal(t, Locked, to, e.String())
	}
}
