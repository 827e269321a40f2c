package metrics

import (
	"sync"
	"time"
)

type rateSlot struct {
	epoch int64
	count int64
}

// RollingRateWindow estimates the recent event rate from fixed-width slots
// covering a trailing horizon. Events older than the horizon drop out, so
// the rate decays to zero once traffic stops.
type RollingRateWindow struct {
	width time.Duration

	mu     sync.Mutex
	slots  []rateSlot
	origin time.Time
}

// NewRollingRateWindow returns a window of horizon/width slots. A zero
// width defaults to one second and the horizon is rounded up to a whole
// number of slots.
func NewRollingRateWindow(horizon, width time.Duration) *RollingRateWindow {
	if width <= 0 {
		width = time.Second
	}
	if horizon < width {
		horizon = width
	}
	n := int((horizon + width - 1) / width)
	return &RollingRateWindow{
		width: width,
		slots: make([]rateSlot, n),
	}
}

// Reset clears all slots. Rates computed before origin+horizon are scaled
// to the time elapsed since origin.
func (w *RollingRateWindow) Reset(origin time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.slots {
		w.slots[i] = rateSlot{}
	}
	w.origin = origin
}

func (w *RollingRateWindow) epoch(t time.Time) int64 {
	return t.UnixNano() / int64(w.width)
}

// Add counts one event at now.
func (w *RollingRateWindow) Add(now time.Time) {
	e := w.epoch(now)
	n := int64(len(w.slots))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.origin.IsZero() {
		w.origin = now
	}
	s := &w.slots[int(e%n)]
	if s.epoch != e {
		s.epoch = e
		s.count = 0
	}
	s.count++
}

// Rate returns events per second over the trailing horizon ending at now.
func (w *RollingRateWindow) Rate(now time.Time) float64 {
	cur := w.epoch(now)
	n := int64(len(w.slots))

	w.mu.Lock()
	defer w.mu.Unlock()

	var total int64
	for _, s := range w.slots {
		if s.count > 0 && s.epoch > cur-n && s.epoch <= cur {
			total += s.count
		}
	}
	if total == 0 {
		return 0
	}

	// Full older slots plus the elapsed part of the current one.
	span := time.Duration(n-1)*w.width + time.Duration(now.UnixNano()-cur*int64(w.width))
	if !w.origin.IsZero() {
		if since := now.Sub(w.origin); since < span {
			span = since
		}
	}
	if span < time.Millisecond {
		span = time.Millisecond
	}
	return float64(total) / span.Seconds()
}
