package domain

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic
// CreatedAt and LastAccessedAt values.
var (
	clockMu sync.RWMutex
	clock   = clockwork.NewRealClock()
)

// SetClock swaps the time source for cache timestamps. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	clockMu.Lock()
	defer clockMu.Unlock()
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time in UTC from the package clock.
func Now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock.Now().UTC()
}
