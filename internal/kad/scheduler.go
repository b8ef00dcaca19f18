package kad

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ClockScheduler is a Scheduler backed by a benbjohnson/clock.Clock, real
// in production and mockable in tests (clock.NewMock) so deadline and
// random-walk-period behavior can be driven deterministically without
// wall-clock sleeps.
type ClockScheduler struct {
	clock clock.Clock
}

// NewClockScheduler builds a Scheduler over c. Pass clock.New() for
// production use, clock.NewMock() for tests.
func NewClockScheduler(c clock.Clock) *ClockScheduler {
	return &ClockScheduler{clock: c}
}

func (s *ClockScheduler) Now() time.Time { return s.clock.Now() }

func (s *ClockScheduler) Schedule(delay time.Duration, cb func()) ScheduleHandle {
	timer := s.clock.Timer(delay)
	h := &clockHandle{stop: make(chan struct{})}
	go func() {
		select {
		case <-timer.C:
			cb()
		case <-h.stop:
			timer.Stop()
		}
	}()
	return h
}

type clockHandle struct {
	once sync.Once
	stop chan struct{}
}

func (h *clockHandle) Cancel() {
	h.once.Do(func() { close(h.stop) })
}
