package ledger

import (
	"math"
	"time"

	"telegram-daily-spin/internal/pkg/easing"
)

// CountUpDuration is how long the displayed balance takes to catch up with
// a credit.
const CountUpDuration = time.Second

// counter interpolates the displayed balance towards the committed one.
// It is purely cosmetic.
type counter struct {
	from, to int64
	start    time.Time
	duration time.Duration
}

// animate starts a count-up from the value shown at now to target.
func (c *counter) animate(now time.Time, target int64) {
	c.from = c.value(now)
	c.to = target
	c.start = now
	c.duration = CountUpDuration
}

// set jumps straight to v.
func (c *counter) set(v int64) {
	c.from, c.to = v, v
	c.duration = 0
}

func (c *counter) value(now time.Time) int64 {
	if c.duration <= 0 || c.from == c.to {
		return c.to
	}
	p := easing.Progress(now.Sub(c.start).Seconds(), c.duration.Seconds())
	if p >= 1 {
		return c.to
	}
	return c.from + int64(math.Round(float64(c.to-c.from)*easing.OutCubic(p)))
}
