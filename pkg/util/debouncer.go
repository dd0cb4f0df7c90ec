package util

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Reset calls into one timer fire. The timer
// fires once the burst has been quiet for the debounce duration, or, when a
// max wait is set, no later than maxWait after the burst began.
//
// The timer is armed on construction, so C fires once without any Reset.
//
//	d := NewDebouncer(250*time.Millisecond, time.Second)
//	defer d.Stop()
//
//	for {
//	    select {
//	    case <-changes:
//	        d.Reset()
//	    case <-d.C():
//	        report()
//	    }
//	}
type Debouncer struct {
	duration time.Duration
	maxWait  time.Duration
	timer    *time.Timer
	mu       sync.Mutex
	stopped  bool
	burst    time.Time
	now      func() time.Time
}

// NewDebouncer creates a debouncer. A maxWait of zero disables the ceiling.
func NewDebouncer(duration, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		maxWait:  maxWait,
		timer:    time.NewTimer(duration),
		burst:    time.Now(),
		now:      time.Now,
	}
}

// Reset pushes the fire back by the debounce duration, capped by the max
// wait of the current burst. No-op after Stop.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := d.now()
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
			// A fire nobody read yet belongs to this burst.
		default:
			d.burst = now
		}
	}
	d.timer.Reset(d.delay(now))
}

func (d *Debouncer) delay(now time.Time) time.Duration {
	if d.maxWait <= 0 {
		return d.duration
	}
	left := d.maxWait - now.Sub(d.burst)
	if left < 0 {
		left = 0
	}
	return min(d.duration, left)
}

// C returns the timer's channel.
func (d *Debouncer) C() <-chan time.Time {
	return d.timer.C
}

// Stop stops the debouncer and prevents further resets. Safe to call more
// than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.timer.Stop()
		d.stopped = true
	}
}
