// Package schedule holds the timer primitives used by server managers and
// their start-up watches.
package schedule

import (
	"sync"
	"time"
)

// Interval runs a callback every period once armed. A zero period disables
// it: Start is then a no-op. At most one ticker is live per Interval and
// callbacks never overlap.
type Interval struct {
	mutex    sync.Mutex
	period   time.Duration
	callback func()
	ticker   *time.Ticker
	done     chan struct{}
}

// NewInterval returns an inactive Interval.
func NewInterval(period time.Duration, callback func()) *Interval {
	return &Interval{period: period, callback: callback}
}

// Start arms the interval and reports whether it is active.
func (interval *Interval) Start() bool {
	interval.mutex.Lock()
	defer interval.mutex.Unlock()
	interval.start()
	return interval.ticker != nil
}

// Stop disarms the interval and reports whether it is active.
func (interval *Interval) Stop() bool {
	interval.mutex.Lock()
	defer interval.mutex.Unlock()
	interval.stop()
	return interval.ticker != nil
}

// Reset restarts the interval with its current period.
func (interval *Interval) Reset() bool {
	interval.mutex.Lock()
	defer interval.mutex.Unlock()
	interval.stop()
	interval.start()
	return interval.ticker != nil
}

// ResetPeriod restarts the interval with a new period.
func (interval *Interval) ResetPeriod(period time.Duration) bool {
	interval.mutex.Lock()
	defer interval.mutex.Unlock()
	interval.stop()
	interval.period = period
	interval.start()
	return interval.ticker != nil
}

func (interval *Interval) Active() bool {
	interval.mutex.Lock()
	defer interval.mutex.Unlock()
	return interval.ticker != nil
}

func (interval *Interval) Period() time.Duration {
	interval.mutex.Lock()
	defer interval.mutex.Unlock()
	return interval.period
}

func (interval *Interval) start() {
	if interval.ticker != nil || interval.period <= 0 {
		return
	}
	interval.ticker = time.NewTicker(interval.period)
	interval.done = make(chan struct{})
	go interval.run(interval.ticker, interval.done)
}

func (interval *Interval) stop() {
	if interval.ticker == nil {
		return
	}
	interval.ticker.Stop()
	close(interval.done)
	interval.ticker = nil
	interval.done = nil
}

func (interval *Interval) run(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// a tick may race with Stop
			select {
			case <-done:
				return
			default:
			}
			interval.callback()
		}
	}
}
