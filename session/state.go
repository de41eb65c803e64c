package session

// State is the lock state of the wallet session.
type State int

const (
	// Locked: no expiration record.
	Locked State = iota
	// Unlocked: expiration record in the future.
	Unlocked
	// Expired: expiration record in the past. Never persists; any event
	// collapses it to Locked.
	Expired
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Event is something the Manager reacts to.
type Event int

const (
	EventStartup Event = iota
	EventPasscodeSet
	EventPasscodeCleared
	EventTimeoutChanged
	EventExpirationWritten
	EventExpirationRemoved
	EventAlarmFired
	EventExtend
	EventLockRequested
)

func (e Event) String() string {
	switch e {
	case EventStartup:
		return "startup"
	case EventPasscodeSet:
		return "passcode-set"
	case EventPasscodeCleared:
		return "passcode-cleared"
	case EventTimeoutChanged:
		return "timeout-changed"
	case EventExpirationWritten:
		return "expiration-written"
	case EventExpirationRemoved:
		return "expiration-removed"
	case EventAlarmFired:
		return "alarm-fired"
	case EventExtend:
		return "extend"
	case EventLockRequested:
		return "lock-requested"
	}
	return "unknown"
}

// Effect is a side effect the Manager performs after a transition.
type Effect int

const (
	// WriteExpiration writes now+timeout to the expiration record.
	WriteExpiration Effect = iota
	// ScheduleAlarm arms the lock alarm at the stored expiration.
	ScheduleAlarm
	// CancelAlarm clears the lock alarm.
	CancelAlarm
	// ClearSession empties the session scope.
	ClearSession
)

func (e Effect) String() string {
	switch e {
	case WriteExpiration:
		return "write-expiration"
	case ScheduleAlarm:
		return "schedule-alarm"
	case CancelAlarm:
		return "cancel-alarm"
	case ClearSession:
		return "clear-session"
	}
	return "unknown"
}

// Transition returns the state that follows s on e and the effects to
// perform. It has no side effects.
func Transition(s State, e Event) (State, []Effect) {
	if s == Expired {
		return Locked, []Effect{ClearSession}
	}
	switch e {
	case EventStartup:
		if s == Unlocked {
			// Alarms do not survive dispatcher recreation.
			return Unlocked, []Effect{ScheduleAlarm}
		}
		return Locked, []Effect{ClearSession}
	case EventPasscodeSet:
		if s == Locked {
			return Unlocked, []Effect{WriteExpiration}
		}
		return s, nil
	case EventTimeoutChanged:
		if s == Unlocked {
			return Unlocked, []Effect{WriteExpiration}
		}
		return s, nil
	case EventExpirationWritten:
		if s == Unlocked {
			return Unlocked, []Effect{ScheduleAlarm}
		}
		return s, nil
	case EventExpirationRemoved:
		return Locked, []Effect{CancelAlarm}
	case EventExtend:
		if s == Unlocked {
			return Unlocked, []Effect{WriteExpiration}
		}
		return Locked, []Effect{ClearSession}
	case EventPasscodeCleared, EventAlarmFired, EventLockRequested:
		return Locked, []Effect{ClearSession}
	}
	return s, nil
}
