package schedule

import "time"

// Timer is a pending scheduled call. Stop cancels it and reports whether
// the call was still pending.
type Timer interface {
	Stop() bool
}

// Scheduler runs a function once after a delay.
type Scheduler interface {
	AfterFunc(delay time.Duration, f func()) Timer
}

type realScheduler struct{}

// Real returns a Scheduler backed by time.AfterFunc.
func Real() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(delay time.Duration, f func()) Timer {
	return time.AfterFunc(delay, f)
}
