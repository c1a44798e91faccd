package tier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDailyCounterEnforcesFreeCap(t *testing.T) {
	c := NewDailyCounter()

	for i := 0; i < 100; i++ {
		assert.True(t, c.CheckLimit(Free), "attempt %d", i)
		c.Increment(Free)
	}

	assert.False(t, c.CheckLimit(Free))
	assert.Equal(t, 0, c.Remaining(Free))
}

func TestDailyCounterIgnoresUnlimitedTiers(t *testing.T) {
	c := NewDailyCounter()

	for i := 0; i < 500; i++ {
		c.Increment(Ultra)
	}

	assert.True(t, c.CheckLimit(Ultra))
	assert.Equal(t, -1, c.Remaining(Ultra))
	// Paid usage never eats into the FREE budget.
	assert.Equal(t, 100, c.Remaining(Free))
}

func TestDailyCounterResetsOnDayChange(t *testing.T) {
	current := time.Date(2025, 3, 1, 23, 50, 0, 0, time.UTC)
	c := NewDailyCounter()
	c.now = func() time.Time { return current }
	c.resetDate = current.Format("2006-01-02")

	for i := 0; i < 100; i++ {
		c.Increment(Free)
	}
	assert.False(t, c.CheckLimit(Free))

	current = current.Add(20 * time.Minute) // past midnight

	assert.True(t, c.CheckLimit(Free))
	assert.Equal(t, 100, c.Remaining(Free))
}
