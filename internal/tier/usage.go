package tier

import (
	"sync"
	"time"
)

// UsageLimiter caps generations for tiers that carry a daily limit.
// Implementations must be safe for concurrent use.
type UsageLimiter interface {
	// CheckLimit reports whether a generation may proceed under t.
	CheckLimit(t Tier) bool
	// Increment records one successful generation under t.
	Increment(t Tier)
	// Remaining returns generations left today, or -1 when unlimited.
	Remaining(t Tier) int
}

// DailyCounter is an in-process UsageLimiter. The count resets when the
// calendar day changes and is lost on restart, which matches the soft
// semantics of the FREE cap.
type DailyCounter struct {
	mu        sync.Mutex
	daily     int
	resetDate string
	now       func() time.Time
}

func NewDailyCounter() *DailyCounter {
	return &DailyCounter{
		resetDate: time.Now().Format("2006-01-02"),
		now:       time.Now,
	}
}

func (c *DailyCounter) CheckLimit(t Tier) bool {
	cfg := Resolve(string(t))
	if cfg.DailyLimit <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollLocked()
	return c.daily < cfg.DailyLimit
}

func (c *DailyCounter) Increment(t Tier) {
	cfg := Resolve(string(t))
	if cfg.DailyLimit <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollLocked()
	c.daily++
}

func (c *DailyCounter) Remaining(t Tier) int {
	cfg := Resolve(string(t))
	if cfg.DailyLimit <= 0 {
		return -1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rollLocked()
	if left := cfg.DailyLimit - c.daily; left > 0 {
		return left
	}
	return 0
}

func (c *DailyCounter) rollLocked() {
	today := c.now().Format("2006-01-02")
	if today != c.resetDate {
		c.daily = 0
		c.resetDate = today
	}
}
