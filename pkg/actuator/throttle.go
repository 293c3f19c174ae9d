package actuator

import (
	"sync"
	"time"
)

// Throttle spaces commands to the same address by a minimum interval.
// Each caller reserves the next free slot under a lock and then sleeps
// outside it, so different addresses never wait on each other.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	sleep    func(time.Duration)

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle creates a throttle with the given interval.
func NewThrottle(interval time.Duration) *Throttle {
	return newThrottle(interval, time.Now, time.Sleep)
}

func newThrottle(interval time.Duration, now func() time.Time, sleep func(time.Duration)) *Throttle {
	return &Throttle{
		interval: interval,
		now:      now,
		sleep:    sleep,
		last:     make(map[string]time.Time),
	}
}

// Reserve claims the next slot for address and returns how long the caller
// must wait before sending.
func (t *Throttle) Reserve(address string) time.Duration {
	if t.interval <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	slot := now
	if prev, ok := t.last[address]; ok {
		if next := prev.Add(t.interval); next.After(now) {
			slot = next
		}
	}
	t.last[address] = slot
	return slot.Sub(now)
}

// Wait reserves a slot and sleeps until it arrives.
func (t *Throttle) Wait(address string) time.Duration {
	d := t.Reserve(address)
	if d > 0 {
		t.sleep(d)
	}
	return d
}
