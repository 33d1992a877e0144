package admin

import (
	"strings"
	"sync"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads a feed timestamp. Zone-less values are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CompareTimestamps orders two cursor values. Known timestamp forms compare
// by time; anything else falls back to string order. Empty sorts first.
func CompareTimestamps(a, b string) int {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	ta, okA := ParseTimestamp(a, time.UTC)
	tb, okB := ParseTimestamp(b, time.UTC)
	if okA && okB {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

// Cursor is the watermark of the report feed. It never moves backwards.
type Cursor struct {
	mu    sync.Mutex
	value string
}

func NewCursor(initial string) *Cursor {
	return &Cursor{value: strings.TrimSpace(initial)}
}

func (c *Cursor) Value() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Advance moves the cursor to candidate if it is later, and reports whether
// it moved.
func (c *Cursor) Advance(candidate string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if CompareTimestamps(candidate, c.value) <= 0 {
		return false
	}
	c.value = strings.TrimSpace(candidate)
	return true
}
