package host

import (
	"context"
	"sync"
	"time"

	"github.com/jmcleod/keriauth/internal/clock"
)

// AlarmScheduler is an in-process Alarms backed by a Clock. Alarms live
// only as long as the scheduler, like a browser alarm that is lost when
// the dispatcher is recreated without being re-armed.
type AlarmScheduler struct {
	clock  clock.Clock
	onFire func(name string)

	mu     sync.Mutex
	gen    uint64
	alarms map[string]scheduledAlarm
}

type scheduledAlarm struct {
	when  time.Time
	gen   uint64
	timer clock.Timer
}

var _ Alarms = (*AlarmScheduler)(nil)

// NewAlarmScheduler returns a scheduler that calls onFire with the alarm
// name when it comes due. A deadline in the past fires immediately.
func NewAlarmScheduler(c clock.Clock, onFire func(name string)) *AlarmScheduler {
	return &AlarmScheduler{
		clock:  c,
		onFire: onFire,
		alarms: make(map[string]scheduledAlarm),
	}
}

func (s *AlarmScheduler) Create(_ context.Context, name string, when time.Time) error {
	s.mu.Lock()
	if prev, ok := s.alarms[name]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.alarms[name] = scheduledAlarm{when: when, gen: gen}
	s.mu.Unlock()

	t := s.clock.AfterFunc(when.Sub(s.clock.Now()), func() { s.fire(name, gen) })

	s.mu.Lock()
	if cur, ok := s.alarms[name]; ok && cur.gen == gen {
		cur.timer = t
		s.alarms[name] = cur
	}
	s.mu.Unlock()
	return nil
}

func (s *AlarmScheduler) fire(name string, gen uint64) {
	s.mu.Lock()
	cur, ok := s.alarms[name]
	if !ok || cur.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.alarms, name)
	s.mu.Unlock()
	s.onFire(name)
}

func (s *AlarmScheduler) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.alarms[name]; ok {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		delete(s.alarms, name)
	}
	return nil
}

// Scheduled returns the deadline of the named alarm.
func (s *AlarmScheduler) Scheduled(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[name]
	return a.when, ok
}
