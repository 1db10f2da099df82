package semantic

import (
	"fmt"
	"sync"
	"time"
)

// tokenClock issues strictly increasing timestamp tokens of the form
// YYYYMMDDTHHMMSSmmmZ, suffixed -NNN when several tokens land in the same
// millisecond. Archive and snapshot keys must never collide even under
// rapid repeated calls within one clock tick.
type tokenClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last string
	seq  int
}

func newTokenClock(now func() time.Time) *tokenClock {
	if now == nil {
		now = time.Now
	}
	return &tokenClock{now: now}
}

// Next returns the next unique token.
func (c *tokenClock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := formatStamp(c.now().UTC())
	if base == c.last {
		c.seq++
		return fmt.Sprintf("%s-%03d", base, c.seq)
	}
	c.last = base
	c.seq = 0
	return base
}

func formatStamp(t time.Time) string {
	return fmt.Sprintf("%s%03dZ", t.Format("20060102T150405"), t.Nanosecond()/int(time.Millisecond))
}
