package rate

import (
	"errors"
	"sync"
	"time"
)

// ErrLimited is returned when a key's call budget for the current window is
// exhausted. The caller must wait for the window to roll over.
var ErrLimited = errors.New("rate limited")

// sweepThreshold bounds how large the window map grows before expired
// entries are pruned inline.
const sweepThreshold = 1024

// Config holds rate limiter tuning parameters.
type Config struct {
	// Window is the fixed-window length.
	Window time.Duration
	// Budget is the number of calls allowed per key per window.
	Budget int
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter enforces a per-key fixed-window call budget in process memory.
// A new window starts with count 1 whenever no window exists for the key or
// the stored window has expired. Calls beyond the budget fail without
// consuming further budget.
type Limiter struct {
	mu      sync.Mutex
	config  Config
	windows map[string]*window

	now func() time.Time
}

// New creates a [Limiter] with the given config.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 100
	}
	return &Limiter{
		config:  cfg,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check consumes one call from the key's budget. Returns [ErrLimited] when
// the budget is exhausted for the current window.
func (l *Limiter) Check(key string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		if len(l.windows) >= sweepThreshold {
			l.sweepLocked(now)
		}
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.config.Window)}
		return nil
	}

	if w.count >= l.config.Budget {
		return ErrLimited
	}
	w.count++
	return nil
}

// Remaining returns the calls left in the key's current window.
func (l *Limiter) Remaining(key string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		return l.config.Budget
	}
	return l.config.Budget - w.count
}

// Reset clears the window for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
