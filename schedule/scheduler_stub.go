package schedule

import (
	"sync"
	"time"
)

type stubTimer struct {
	scheduler *StubScheduler
	delay     time.Duration
	f         func()
	stopped   bool
	fired     bool
}

func (timer *stubTimer) Stop() bool {
	timer.scheduler.mutex.Lock()
	defer timer.scheduler.mutex.Unlock()
	if timer.stopped || timer.fired {
		return false
	}
	timer.stopped = true
	return true
}

// StubScheduler records scheduled calls and runs them only on RunNext.
type StubScheduler struct {
	mutex  sync.Mutex
	timers []*stubTimer
}

func (scheduler *StubScheduler) AfterFunc(delay time.Duration, f func()) Timer {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	timer := &stubTimer{scheduler: scheduler, delay: delay, f: f}
	scheduler.timers = append(scheduler.timers, timer)
	return timer
}

// RunNext fires the oldest pending call and reports whether there was one.
func (scheduler *StubScheduler) RunNext() bool {
	scheduler.mutex.Lock()
	var next *stubTimer
	for _, timer := range scheduler.timers {
		if !timer.stopped && !timer.fired {
			next = timer
			break
		}
	}
	if next == nil {
		scheduler.mutex.Unlock()
		return false
	}
	next.fired = true
	scheduler.mutex.Unlock()
	next.f()
	return true
}

// RunAll fires pending calls until none are left or limit is reached.
func (scheduler *StubScheduler) RunAll(limit int) int {
	count := 0
	for count < limit && scheduler.RunNext() {
		count++
	}
	return count
}

// Delays lists the delay of every call ever scheduled.
func (scheduler *StubScheduler) Delays() []time.Duration {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	delays := []time.Duration{}
	for _, timer := range scheduler.timers {
		delays = append(delays, timer.delay)
	}
	return delays
}

func (scheduler *StubScheduler) Pending() int {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	count := 0
	for _, timer := range scheduler.timers {
		if !timer.stopped && !timer.fired {
			count++
		}
	}
	return count
}
