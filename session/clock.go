package session

import (
	"sync"
	"time"

	"github.com/CK6170/gravtie-go/tie"
)

// TimeSource stamps recorded heights and counts.
type TimeSource interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// SeriesClock replays sample times from a loaded meter series so that
// entries made while bench testing fall inside the recorded data. Now
// returns the time at the next index, the final one repeating; At looks a
// slot up directly.
type SeriesClock struct {
	mu      sync.Mutex
	series  tie.Series
	indices []int
	next    int
}

// NewSeriesClock replays series at the given indices, clamped to the
// series. Without indices the quartile points are used.
func NewSeriesClock(series tie.Series, indices ...int) *SeriesClock {
	sorted := tie.SortSeries(series)
	if len(indices) == 0 && len(sorted) > 0 {
		n := len(sorted) - 1
		indices = []int{n / 4, n / 2, 3 * n / 4}
	}
	return &SeriesClock{series: sorted, indices: indices}
}

func (c *SeriesClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.at(c.next)
	c.next++
	return t
}

// At returns the time for slot, the last index serving every slot past it.
func (c *SeriesClock) At(slot int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(slot)
}

func (c *SeriesClock) at(slot int) time.Time {
	if len(c.series) == 0 || len(c.indices) == 0 {
		return time.Time{}
	}
	i := c.indices[max(0, min(slot, len(c.indices)-1))]
	i = max(0, min(i, len(c.series)-1))
	return c.series[i].Time
}
