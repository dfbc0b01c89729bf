package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/calvinmclean/pilldispenser/internal/fakeclock"
)

func TestPoll(t *testing.T) {
	t.Run("ConditionMet", func(t *testing.T) {
		clk := fakeclock.New()
		start := clk.Now()
		calls := 0
		ok := Poll(clk, time.Second, 10*time.Millisecond, func() bool {
			calls++
			return calls == 5
		})
		assert.True(t, ok)
		assert.Equal(t, 40*time.Millisecond, clk.Now().Sub(start))
	})

	t.Run("Timeout", func(t *testing.T) {
		clk := fakeclock.New()
		start := clk.Now()
		ok := Poll(clk, 100*time.Millisecond, 10*time.Millisecond, func() bool { return false })
		assert.False(t, ok)
		assert.Equal(t, 100*time.Millisecond, clk.Now().Sub(start))
	})
}

func TestPeriodic(t *testing.T) {
	clk := fakeclock.New()
	start := clk.Now()
	p := NewPeriodic(start, 30*time.Second)

	assert.False(t, p.Due(start.Add(29*time.Second)))
	assert.True(t, p.Due(start.Add(31*time.Second)))
	assert.Equal(t, start.Add(60*time.Second), p.Next())

	// a missed period restarts the cadence
	assert.True(t, p.Due(start.Add(200*time.Second)))
	assert.Equal(t, start.Add(230*time.Second), p.Next())
}
