package app

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a board change is published.
const DefaultDebounce = 150 * time.Millisecond

// Debouncer coalesces bursts of per-key triggers into one trailing call.
type Debouncer struct {
	delay  time.Duration
	settle func(key string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running sync.WaitGroup
	closed  bool
}

// NewDebouncer constructs a debouncer that calls settle once per key after
// delay has passed without another trigger for that key.
func NewDebouncer(delay time.Duration, settle func(key string)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{
		delay:  delay,
		settle: settle,
		timers: map[string]*time.Timer{},
	}
}

// Trigger restarts the quiet period for key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if timer, ok := d.timers[key]; ok && timer.Stop() {
		d.running.Done()
	}
	d.running.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(d.delay, func() {
		defer d.running.Done()
		d.mu.Lock()
		if d.timers[key] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		d.settle(key)
	})
	d.timers[key] = timer
}

// Pending reports whether key has a settle scheduled.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// Flush runs a pending settle for key immediately.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	timer, ok := d.timers[key]
	if ok && timer.Stop() {
		delete(d.timers, key)
		d.running.Done()
	} else {
		ok = false
	}
	d.mu.Unlock()
	if ok {
		d.settle(key)
	}
}

// Close flushes every pending key and waits for in-flight settles.
// Later triggers are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pending := make([]string, 0, len(d.timers))
	for key, timer := range d.timers {
		// A timer that already fired keeps its entry so its callback still settles.
		if timer.Stop() {
			pending = append(pending, key)
			delete(d.timers, key)
			d.running.Done()
		}
	}
	d.mu.Unlock()
	for _, key := range pending {
		d.settle(key)
	}
	d.running.Wait()
}
