// Package clock is the process time source. Tests freeze it to make decay
// and window arithmetic deterministic.
package clock

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Freeze pins Now to t and returns a func that restores the real clock.
func Freeze(t time.Time) func() {
	mu.Lock()
	prev := nowFunc
	nowFunc = func() time.Time { return t }
	mu.Unlock()

	return func() {
		mu.Lock()
		nowFunc = prev
		mu.Unlock()
	}
}

// Since is time.Since against the package clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
