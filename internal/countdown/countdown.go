package countdown

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryLayout is the day/month/year form the ban page shows.
const ExpiryLayout = "02/01/2006 15:04"

const ExpiredText = "Ban has expired."

// ParseExpiry reads a ban expiry in loc.
func ParseExpiry(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(ExpiryLayout, strings.TrimSpace(text), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ban expiry %q: %w", text, err)
	}
	return t, nil
}

// Countdown renders the time left on a ban. Once it reaches zero it stays
// expired.
type Countdown struct {
	expiry  time.Time
	expired bool
}

func New(expiry time.Time) *Countdown {
	return &Countdown{expiry: expiry}
}

func (c *Countdown) Expired() bool { return c.expired }

// Tick recomputes the text for now.
func (c *Countdown) Tick(now time.Time) string {
	if c.expired {
		return ExpiredText
	}
	remaining := c.expiry.Sub(now)
	if remaining <= 0 {
		c.expired = true
		return ExpiredText
	}
	return "Time remaining: " + Format(remaining)
}

// Format renders d with leading zero units dropped. Seconds are always shown,
// and minutes are kept once hours are dropped.
func Format(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	hours := total / 3600 % 24
	minutes := total / 60 % 60
	seconds := total % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
