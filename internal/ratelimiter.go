package internal

import (
	"sync"
	"time"
)

// sweepEvery is how many Allow calls pass between removals of idle keys.
const sweepEvery = 256

// slidingWindow holds the admitted timestamps of one caller, oldest first.
type slidingWindow struct {
	stamps []time.Time
}

// admit drops stamps older than span and records now if fewer than limit
// remain.
func (w *slidingWindow) admit(now time.Time, limit int, span time.Duration) bool {
	cutoff := now.Add(-span)
	drop := 0
	for drop < len(w.stamps) && !w.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
	if len(w.stamps) >= limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (w *slidingWindow) idle(now time.Time, span time.Duration) bool {
	return len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(now.Add(-span))
}

// RateLimiter admits at most limit events per key in any span, e.g. logins
// per caller IP.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	limit   int
	span    time.Duration
	calls   int
}

func NewRateLimiter(limit int, span time.Duration) *RateLimiter {
	return &RateLimiter{windows: make(map[string]*slidingWindow), limit: limit, span: span}
}

func (r *RateLimiter) Allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls++; r.calls%sweepEvery == 0 {
		r.sweep(now)
	}
	w, ok := r.windows[key]
	if !ok {
		w = &slidingWindow{stamps: make([]time.Time, 0, r.limit)}
		r.windows[key] = w
	}
	return w.admit(now, r.limit, r.span)
}

func (r *RateLimiter) sweep(now time.Time) {
	for key, w := range r.windows {
		if w.idle(now, r.span) {
			delete(r.windows, key)
		}
	}
}
