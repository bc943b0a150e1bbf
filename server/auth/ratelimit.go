package auth

import (
	"sync"
	"time"
)

const (
	rateWindow = time.Minute
	// Window entries linger 30 seconds past their window before sweeping.
	rateWindowTTL = rateWindow + 30*time.Second
)

// RateLimiter is a fixed-window request counter keyed by API key hash. A
// request is allowed while its key's count within the current minute window
// stays at or below the limit.
type RateLimiter struct {
	perMin int
	now    func() time.Time

	mu      sync.Mutex
	windows map[windowKey]*windowEntry
}

type windowKey struct {
	hash   string
	window int64
}

type windowEntry struct {
	count   int
	expires time.Time
}

// NewRateLimiter builds a limiter allowing perMin requests per key per
// minute. A non-positive perMin disables limiting.
func NewRateLimiter(perMin int) *RateLimiter {
	return &RateLimiter{
		perMin:  perMin,
		now:     time.Now,
		windows: make(map[windowKey]*windowEntry),
	}
}

// Allow counts one request for the key hash and reports whether it fits in
// the current window.
func (r *RateLimiter) Allow(keyHash string) bool {
	if r.perMin <= 0 {
		return true
	}

	now := r.now()
	key := windowKey{hash: keyHash, window: now.Unix() / int64(rateWindow.Seconds())}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep(now)

	entry, ok := r.windows[key]
	if !ok {
		entry = &windowEntry{expires: now.Add(rateWindowTTL)}
		r.windows[key] = entry
	}
	entry.count++
	return entry.count <= r.perMin
}

// sweep drops expired windows. Called with the lock held.
func (r *RateLimiter) sweep(now time.Time) {
	for key, entry := range r.windows {
		if now.After(entry.expires) {
			delete(r.windows, key)
		}
	}
}
