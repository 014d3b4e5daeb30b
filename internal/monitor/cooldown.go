package monitor

import (
	"sync"
	"time"
)

// CooldownStore tracks when each alert key last fired so triggers do not
// spam. Injectable so tests and alternative backends can swap it out.
type CooldownStore interface {
	// Ready reports whether the key may fire again at now.
	Ready(key string, window time.Duration, now time.Time) bool
	// Arm records that the key fired at now.
	Arm(key string, now time.Time)
	// Reset clears all cooldowns.
	Reset()
}

// MemoryCooldowns is the default in-process CooldownStore.
type MemoryCooldowns struct {
	mu    sync.Mutex
	fired map[string]time.Time
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{fired: make(map[string]time.Time)}
}

func (c *MemoryCooldowns) Ready(key string, window time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.fired[key]
	return !ok || now.Sub(last) >= window
}

func (c *MemoryCooldowns) Arm(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired[key] = now
}

func (c *MemoryCooldowns) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fired = make(map[string]time.Time)
}

func cooldownKey(alertType, ticker string) string {
	if ticker == "" {
		ticker = "*"
	}
	return alertType + ":" + ticker
}
